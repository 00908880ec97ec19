// Package server wires the DoF model registry and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/louisbranch/dofsim/internal/platform/config"
	"github.com/louisbranch/dofsim/internal/platform/timeouts"
	dofsservice "github.com/louisbranch/dofsim/internal/services/dofs/api/grpc/dofs"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"github.com/louisbranch/dofsim/internal/services/dofs/registry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

type serverEnv struct {
	ModelRoot    string `env:"MODEL_ROOT" envDefault:"namedModels"`
	ReducedDepth int    `env:"REDUCED_DEPTH" envDefault:"2"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	if err := config.ParseEnv(&cfg); err != nil {
		log.Printf("dofs server env: %v", err)
	}
	if strings.TrimSpace(cfg.ModelRoot) == "" {
		cfg.ModelRoot = "namedModels"
	}
	if cfg.ReducedDepth <= 0 {
		cfg.ReducedDepth = model.DefaultReducedDepth
	}
	return cfg
}

// Server hosts the DoF gRPC API over a model registry.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	registry   *registry.Registry
}

// NewWithAddr creates a configured DoF server for the provided address.
// Models under the configured root are loaded before it returns.
func NewWithAddr(ctx context.Context, addr string) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	env := loadServerEnv()
	if _, err := os.Stat(env.ModelRoot); err != nil {
		return nil, fmt.Errorf("model root %s: %w", env.ModelRoot, err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	reg := registry.New(env.ModelRoot, model.LoadOptions{
		Reduced:      true,
		ReducedDepth: env.ReducedDepth,
	})
	loadCtx, cancel := context.WithTimeout(ctx, timeouts.Reload)
	defer cancel()
	report, err := reg.ReloadAll(loadCtx)
	if err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("load models: %w", err)
	}
	log.Printf("loaded %d models from %s (%d failed)", len(report.Loaded), env.ModelRoot, len(report.Failed))

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	apiService := dofsservice.NewService(dofsservice.RegistryModels{Registry: reg})
	healthServer := health.NewServer()
	dofsservice.RegisterDofServiceServer(grpcServer, apiService)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(dofsservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		registry:   reg,
	}, nil
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Registry returns the model registry the server serves from.
func (s *Server) Registry() *registry.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

// Run creates and serves a DoF server on addr until context cancellation.
func Run(ctx context.Context, addr string) error {
	server, err := NewWithAddr(ctx, addr)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("dofs server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.gracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// gracefulStop drains in-flight calls, forcing a stop after timeouts.Shutdown.
func (s *Server) gracefulStop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeouts.Shutdown):
		log.Printf("dofs server: graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
		<-done
	}
}

// Close releases DoF server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
