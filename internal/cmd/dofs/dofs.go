// Package dofs parses DoF service flags and launches the service.
package dofs

import (
	"context"
	"flag"
	"fmt"
	"strings"

	entrypoint "github.com/louisbranch/dofsim/internal/platform/cmd"
	server "github.com/louisbranch/dofsim/internal/services/dofs/app"
)

// Config holds dofs command configuration.
type Config struct {
	Port int    `env:"DOFS_PORT" envDefault:"8095"`
	Addr string `env:"DOFS_ADDR"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The DoF gRPC server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The DoF gRPC listen address (overrides -port)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ListenAddr returns the address the server binds.
func (c Config) ListenAddr() string {
	if addr := strings.TrimSpace(c.Addr); addr != "" {
		return addr
	}
	return fmt.Sprintf(":%d", c.Port)
}

// Run starts the DoF gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceDofs, func(ctx context.Context) error {
		return server.Run(ctx, cfg.ListenAddr())
	})
}
