// Package dofsctl queries a running DoF service from the command line.
package dofsctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	entrypoint "github.com/louisbranch/dofsim/internal/platform/cmd"
	"github.com/louisbranch/dofsim/internal/platform/discovery"
	platformgrpc "github.com/louisbranch/dofsim/internal/platform/grpc"
	"github.com/louisbranch/dofsim/internal/platform/timeouts"
	dofsservice "github.com/louisbranch/dofsim/internal/services/dofs/api/grpc/dofs"
)

// Commands understood by Run.
const (
	CommandList     = "list"
	CommandDescribe = "describe"
	CommandUpdate   = "update"
	CommandReduced  = "reduced"
	CommandReload   = "reload"
)

// Config holds dofsctl command configuration.
type Config struct {
	Addr    string `env:"DOFS_ADDR"`
	Verbose bool
	Command string
	Args    []string
}

// ParseConfig parses environment and flags into Config. The first
// positional argument is the command, the rest are its arguments.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "DoF service address (default: dofs service convention)")
	fs.BoolVar(&cfg.Verbose, "v", false, "log dial progress")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Addr = discovery.OrDefaultGRPCAddr(cfg.Addr, discovery.ServiceDofs)
	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, errors.New("command is required (list, describe, update, reduced, reload)")
	}
	cfg.Command = rest[0]
	cfg.Args = rest[1:]
	return cfg, nil
}

// Run dials the service and executes cfg.Command, writing results to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if out == nil {
		out = io.Discard
	}
	logf := func(string, ...any) {}
	if cfg.Verbose {
		logf = log.Printf
	}

	conn, err := platformgrpc.DialWithHealth(ctx, cfg.Addr, dofsservice.ServiceName, timeouts.GRPCDial, logf)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}
	defer conn.Close()
	client := dofsservice.NewClient(conn)

	switch cfg.Command {
	case CommandList:
		return list(ctx, client, strings.Join(cfg.Args, " "), out)
	case CommandDescribe:
		name, _, err := nameAndState(cfg.Args, false)
		if err != nil {
			return err
		}
		return describe(ctx, client, name, out)
	case CommandUpdate:
		name, state, err := nameAndState(cfg.Args, true)
		if err != nil {
			return err
		}
		return update(ctx, client, name, state, out)
	case CommandReduced:
		name, state, err := nameAndState(cfg.Args, true)
		if err != nil {
			return err
		}
		return reduced(ctx, client, name, state, out)
	case CommandReload:
		return reload(ctx, client, out)
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

func list(ctx context.Context, client *dofsservice.Client, filter string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	names, err := client.ListModels(ctx, filter)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func describe(ctx context.Context, client *dofsservice.Client, name string, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	description, err := client.GetDescription(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, strings.TrimRight(description, "\n"))
	return nil
}

func update(ctx context.Context, client *dofsservice.Client, name string, state []float64, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	set, err := client.UpdateDofs(ctx, name, state)
	if err != nil {
		return err
	}
	for i, dof := range set.Dofs {
		value := 0.0
		if i < len(set.Eigenvalues) {
			value = set.Eigenvalues[i]
		}
		fmt.Fprintf(out, "%s\t%s\n", formatFloat(value), formatFloats(dof))
	}
	return nil
}

func reduced(ctx context.Context, client *dofsservice.Client, name string, state []float64, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.GRPCRequest)
	defer cancel()
	tensor, err := client.GetReducedOutput(ctx, name, state)
	if err != nil {
		return err
	}
	shape := make([]string, len(tensor.Shape))
	for i, dim := range tensor.Shape {
		shape[i] = strconv.Itoa(dim)
	}
	fmt.Fprintf(out, "shape\t%s\n", strings.Join(shape, "x"))
	fmt.Fprintf(out, "values\t%s\n", formatFloats(tensor.Data))
	return nil
}

func reload(ctx context.Context, client *dofsservice.Client, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Reload)
	defer cancel()
	report, err := client.ReloadModels(ctx)
	if err != nil {
		return err
	}
	for _, name := range report.Loaded {
		fmt.Fprintf(out, "loaded\t%s\n", name)
	}
	failed := make([]string, 0, len(report.Failed))
	for name := range report.Failed {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	for _, name := range failed {
		fmt.Fprintf(out, "failed\t%s\t%v\n", name, report.Failed[name])
	}
	return nil
}

// nameAndState reads a model name and, when withState is set, the scene
// state components that follow it.
func nameAndState(args []string, withState bool) (string, []float64, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", nil, errors.New("model name is required")
	}
	if !withState {
		return args[0], nil, nil
	}
	if len(args) == 1 {
		return "", nil, errors.New("scene state is required")
	}
	state := make([]float64, 0, len(args)-1)
	for _, arg := range args[1:] {
		for _, field := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return "", nil, fmt.Errorf("parse state component %q: %w", field, err)
			}
			state = append(state, v)
		}
	}
	return args[0], state, nil
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, " ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

