// Package model loads a named DoF model from disk and turns scene states into
// ordered degrees of freedom.
package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	platformotel "github.com/louisbranch/dofsim/internal/platform/otel"
	"github.com/louisbranch/dofsim/internal/services/dofs/eigen"
	"github.com/louisbranch/dofsim/internal/services/dofs/geometry"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"github.com/louisbranch/dofsim/internal/services/dofs/storage"
	"github.com/louisbranch/dofsim/internal/services/dofs/storage/sqlite"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Files of a model directory.
const (
	DefinitionFile = "model.json"
	WeightsFile    = "model_weights.db"
	AboutFile      = "about.txt"
)

// MissingAbout is the description of a model without an about file.
const MissingAbout = "About file not found"

// DefaultReducedDepth is the number of final layers a reduced network drops.
const DefaultReducedDepth = 2

const polesMarker = "_poles"

const tracerName = "github.com/louisbranch/dofsim/internal/services/dofs/model"

// Device serializes forward passes. Handles sharing a Device never run
// concurrently.
type Device struct {
	mu sync.Mutex
}

// NewDevice returns an idle device.
func NewDevice() *Device {
	return &Device{}
}

func (d *Device) forward(net *network.Network, in network.Tensor) (network.Tensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return net.Forward(in)
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Reduced keeps a truncated network for ReducedOutput.
	Reduced bool
	// ReducedDepth is the number of final layers the truncated network drops.
	// Zero means DefaultReducedDepth. A network too shallow to drop them
	// still loads, without reduced output.
	ReducedDepth int
	// Device is shared by every handle of one registry. Nil gives the handle
	// its own.
	Device *Device
}

// Projection selects how a scene state becomes network input.
type Projection int

const (
	// ProjectionVector feeds the 8-component feature vector.
	ProjectionVector Projection = iota
	// ProjectionImage feeds the 600x600x3 feature image.
	ProjectionImage
)

// String returns the projection name.
func (p Projection) String() string {
	if p == ProjectionImage {
		return "image"
	}
	return "vector"
}

// Handle is an immutable loaded model. A reload builds new handles; calls in
// flight keep the one they started with.
type Handle struct {
	name        string
	description string
	net         *network.Network
	reduced     *network.Network
	usesSigma   bool
	projection  Projection
	image       geometry.ImageOptions
	extractor   eigen.Extractor
	device      *Device
}

// Load reads root/name and builds a handle.
func Load(ctx context.Context, root, name string, opts LoadOptions) (_ *Handle, err error) {
	ctx, span := platformotel.Tracer(tracerName).Start(ctx, "dofs.model.Load",
		trace.WithAttributes(attribute.String("dofs.model", name)))
	defer func() { endSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta := map[string]string{"Model": name}
	if !validName(name) {
		return nil, apperrors.WithMetadata(apperrors.CodeModelNotFound,
			fmt.Sprintf("model name %q is not a directory name", name), meta)
	}
	dir := filepath.Join(root, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, apperrors.WrapWithMetadata(apperrors.CodeModelNotFound,
			fmt.Sprintf("model directory %s not found", dir), meta, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, DefinitionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.WrapWithMetadata(apperrors.CodeModelNotFound,
				fmt.Sprintf("model %s has no %s", name, DefinitionFile), meta, err)
		}
		return nil, corrupt(name, "read definition", err)
	}
	def, err := network.ParseDefinition(raw)
	if err != nil {
		return nil, corrupt(name, "parse definition", err)
	}

	weights, err := readWeights(ctx, filepath.Join(dir, WeightsFile))
	if err != nil {
		return nil, corrupt(name, "read weights", err)
	}
	net, err := network.Build(def, weights)
	if err != nil {
		return nil, corrupt(name, "bind weights", err)
	}

	h := &Handle{
		name:        name,
		description: readAbout(filepath.Join(dir, AboutFile)),
		net:         net,
		usesSigma:   net.LastClass() == network.ClassCovariance,
		image:       geometry.ImageOptions{Poles: strings.Contains(name, polesMarker)},
		extractor:   eigen.NewExtractor(eigen.ModeWithValues),
		device:      opts.Device,
	}
	if h.device == nil {
		h.device = NewDevice()
	}
	if err := h.checkShapes(); err != nil {
		return nil, corrupt(name, "check shapes", err)
	}
	if opts.Reduced {
		depth := opts.ReducedDepth
		if depth == 0 {
			depth = DefaultReducedDepth
		}
		if h.reduced, err = net.Truncate(depth); err != nil {
			log.Printf("model %s: no reduced output: %v", name, err)
			h.reduced = nil
		}
	}
	span.SetAttributes(
		attribute.Bool("dofs.uses_sigma", h.usesSigma),
		attribute.String("dofs.projection", h.projection.String()),
	)
	return h, nil
}

// checkShapes picks the projection from the input rank and verifies the
// output fits the eigen stage.
func (h *Handle) checkShapes() error {
	input := h.net.InputShape()
	switch {
	case len(input) == 3:
		want := []int{geometry.ImageHeight, geometry.ImageWidth, geometry.ImageChannels}
		if !slices.Equal(input, want) {
			return fmt.Errorf("image input %v, want %v", input, want)
		}
		h.projection = ProjectionImage
	case len(input) == 1 && input[0] == geometry.StateLen:
		h.projection = ProjectionVector
	default:
		return fmt.Errorf("unsupported input shape %v", input)
	}

	output := h.net.OutputShape()
	if h.usesSigma {
		if len(output) != 2 || output[0] != output[1] {
			return fmt.Errorf("covariance output %v is not square", output)
		}
		return nil
	}
	if len(output) != 1 && len(output) != 2 {
		return fmt.Errorf("vector output %v must be (n) or (m,n)", output)
	}
	return nil
}

func readWeights(ctx context.Context, path string) (network.Weights, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return loadWeights(ctx, store)
}

func loadWeights(ctx context.Context, reader storage.WeightsReader) (network.Weights, error) {
	tensors, err := reader.ListTensors(ctx)
	if err != nil {
		return nil, err
	}
	weights := network.Weights{}
	for _, stored := range tensors {
		tensor, err := network.NewTensor(stored.Shape, stored.Data)
		if err != nil {
			return nil, fmt.Errorf("tensor %s/%s: %w", stored.Layer, stored.Name, err)
		}
		weights.Set(stored.Layer, stored.Name, tensor)
	}
	return weights, nil
}

func readAbout(path string) string {
	about, err := os.ReadFile(path)
	if err != nil {
		return MissingAbout
	}
	return string(about)
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

func corrupt(name, step string, err error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeModelCorrupt,
		fmt.Sprintf("model %s: %s", name, step), map[string]string{"Model": name}, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

// Name returns the model directory name.
func (h *Handle) Name() string { return h.name }

// Description returns the about text, or MissingAbout.
func (h *Handle) Description() string { return h.description }

// UsesSigma reports whether the network predicts a covariance directly.
func (h *Handle) UsesSigma() bool { return h.usesSigma }

// Projection reports how scene states are fed to the network.
func (h *Handle) Projection() Projection { return h.projection }

// ImageOptions reports the raster options of image models.
func (h *Handle) ImageOptions() geometry.ImageOptions { return h.image }

// HasReducedOutput reports whether the handle was loaded with a truncated network.
func (h *Handle) HasReducedOutput() bool { return h.reduced != nil }
