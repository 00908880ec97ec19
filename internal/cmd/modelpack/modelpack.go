// Package modelpack writes a servable model directory from a network
// definition and freshly initialized weights.
package modelpack

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/dofsim/internal/platform/cmd"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
)

// Config holds modelpack command configuration.
type Config struct {
	Root       string `env:"MODEL_ROOT" envDefault:"namedModels"`
	Name       string
	Definition string
	About      string
	Seed       int64
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Root, "root", cfg.Root, "directory holding named models")
	fs.StringVar(&cfg.Name, "name", "", "model name (directory under -root)")
	fs.StringVar(&cfg.Definition, "def", "", "path to the network definition JSON")
	fs.StringVar(&cfg.About, "about", "", "path to a text file describing the model")
	fs.Int64Var(&cfg.Seed, "seed", 0, "random seed for weight initialization (0 = random)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("model name is required")
	}
	if strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == ".." {
		return fmt.Errorf("invalid model name %q", c.Name)
	}
	if strings.TrimSpace(c.Definition) == "" {
		return errors.New("definition path is required")
	}
	if strings.TrimSpace(c.Root) == "" {
		return errors.New("model root is required")
	}
	return nil
}

// Run writes the model directory described by cfg.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceModelPack, func(ctx context.Context) error {
		return pack(ctx, cfg, out)
	})
}

func pack(ctx context.Context, cfg Config, out io.Writer) error {
	raw, err := os.ReadFile(cfg.Definition)
	if err != nil {
		return fmt.Errorf("read definition: %w", err)
	}
	def, err := network.ParseDefinition(raw)
	if err != nil {
		return err
	}

	about := ""
	if cfg.About != "" {
		content, err := os.ReadFile(cfg.About)
		if err != nil {
			return fmt.Errorf("read about: %w", err)
		}
		about = string(content)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	weights, err := model.InitWeights(def, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	dir := filepath.Join(cfg.Root, cfg.Name)
	if err := model.WriteDirectory(ctx, dir, def, weights, about); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote model %s to %s (seed %d)\n", cfg.Name, dir, seed)
	return nil
}
