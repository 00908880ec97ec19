// Package registry discovers the models under a root directory and serves
// loaded handles from an atomically swapped snapshot.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	platformotel "github.com/louisbranch/dofsim/internal/platform/otel"
	"github.com/louisbranch/dofsim/internal/services/dofs/model"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/louisbranch/dofsim/internal/services/dofs/registry"

// Snapshot is one immutable generation of loaded models.
type Snapshot struct {
	Models   map[string]*model.Handle
	Failures map[string]error
}

// Report summarizes one reload.
type Report struct {
	Loaded []string
	Failed map[string]error
}

// Registry owns the model root and the current snapshot.
type Registry struct {
	root     string
	opts     model.LoadOptions
	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
}

// New returns an empty registry for root. Every handle it loads shares one
// device unless opts already names one.
func New(root string, opts model.LoadOptions) *Registry {
	if opts.Device == nil {
		opts.Device = model.NewDevice()
	}
	r := &Registry{root: root, opts: opts}
	r.current.Store(&Snapshot{Models: map[string]*model.Handle{}, Failures: map[string]error{}})
	return r
}

// Root returns the model root directory.
func (r *Registry) Root() string {
	return r.root
}

// Discover lists the immediate subdirectories of the root, sorted.
func (r *Registry) Discover() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read model root %s: %w", r.root, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ReloadAll loads every discovered model and swaps in a fresh snapshot. A
// model that fails to load is reported and skipped; only a failure to read
// the root itself is returned as an error, leaving the old snapshot in place.
func (r *Registry) ReloadAll(ctx context.Context) (report Report, err error) {
	ctx, span := platformotel.Tracer(tracerName).Start(ctx, "dofs.registry.ReloadAll")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("dofs.models.loaded", len(report.Loaded)),
			attribute.Int("dofs.models.failed", len(report.Failed)),
		)
		span.End()
	}()

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	names, err := r.Discover()
	if err != nil {
		return Report{}, err
	}
	next := &Snapshot{
		Models:   make(map[string]*model.Handle, len(names)),
		Failures: make(map[string]error),
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		h, err := model.Load(ctx, r.root, name, r.opts)
		if err != nil {
			log.Printf("load model %s: %v", name, err)
			next.Failures[name] = err
			continue
		}
		next.Models[name] = h
	}
	r.current.Store(next)

	report = Report{Loaded: sortedKeys(next.Models), Failed: copyFailures(next.Failures)}
	return report, nil
}

// Snapshot returns the current generation.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// ListAvailable returns the sorted names of every model directory found by
// the last reload, including those that failed to load.
func (r *Registry) ListAvailable() []string {
	return r.current.Load().Names()
}

// Names returns the sorted names of loaded and failed models.
func (s *Snapshot) Names() []string {
	names := sortedKeys(s.Models)
	for name := range s.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Model returns a loaded handle. A model that failed to load reports its
// load error.
func (r *Registry) Model(name string) (*model.Handle, error) {
	snap := r.current.Load()
	if h, ok := snap.Models[name]; ok {
		return h, nil
	}
	var domainErr *apperrors.Error
	if errors.As(snap.Failures[name], &domainErr) {
		return nil, domainErr
	}
	return nil, apperrors.WithMetadata(apperrors.CodeModelNotFound,
		"model "+name+" is not loaded", map[string]string{"Model": name})
}

// Failures returns the load errors of the current snapshot by model name.
func (r *Registry) Failures() map[string]error {
	return copyFailures(r.current.Load().Failures)
}

func sortedKeys(models map[string]*model.Handle) []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyFailures(failures map[string]error) map[string]error {
	out := make(map[string]error, len(failures))
	for name, err := range failures {
		out[name] = err
	}
	return out
}
