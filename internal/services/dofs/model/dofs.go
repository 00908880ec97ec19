package model

import (
	"context"

	apperrors "github.com/louisbranch/dofsim/internal/platform/errors"
	platformotel "github.com/louisbranch/dofsim/internal/platform/otel"
	"github.com/louisbranch/dofsim/internal/services/dofs/eigen"
	"github.com/louisbranch/dofsim/internal/services/dofs/geometry"
	"github.com/louisbranch/dofsim/internal/services/dofs/network"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"
)

// DofSet holds the degrees of freedom of one prediction. Dofs[i] is the
// eigenvector of Eigenvalues[i]; eigenvalues descend.
type DofSet struct {
	Dofs        [][]float64
	Eigenvalues []float64
}

// UpdateDofs projects the scene state, runs one forward pass and decomposes
// the result.
func (h *Handle) UpdateDofs(ctx context.Context, state geometry.SceneState) (_ DofSet, err error) {
	ctx, span := platformotel.Tracer(tracerName).Start(ctx, "dofs.model.UpdateDofs",
		trace.WithAttributes(attribute.String("dofs.model", h.name)))
	defer func() { endSpan(span, err) }()

	out, err := h.run(ctx, h.net, state)
	if err != nil {
		return DofSet{}, err
	}
	if h.usesSigma {
		return h.sigmaDofs(out)
	}
	return h.vectorDofs(out)
}

// ReducedOutput returns the raw output of the truncated network.
func (h *Handle) ReducedOutput(ctx context.Context, state geometry.SceneState) (_ network.Tensor, err error) {
	ctx, span := platformotel.Tracer(tracerName).Start(ctx, "dofs.model.ReducedOutput",
		trace.WithAttributes(attribute.String("dofs.model", h.name)))
	defer func() { endSpan(span, err) }()

	if h.reduced == nil {
		return network.Tensor{}, apperrors.WithMetadata(apperrors.CodeNotConfigured,
			"model "+h.name+" has no reduced output",
			map[string]string{"Model": h.name})
	}
	return h.run(ctx, h.reduced, state)
}

// run projects the state and evaluates net on the shared device. The context
// is only checked before the pass starts.
func (h *Handle) run(ctx context.Context, net *network.Network, state geometry.SceneState) (network.Tensor, error) {
	input, err := h.project(state)
	if err != nil {
		return network.Tensor{}, err
	}
	if err := ctx.Err(); err != nil {
		return network.Tensor{}, err
	}
	out, err := h.device.forward(net, input)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeUnknown {
			return network.Tensor{}, err
		}
		return network.Tensor{}, corrupt(h.name, "forward pass", err)
	}
	return out, nil
}

func (h *Handle) project(state geometry.SceneState) (network.Tensor, error) {
	if h.projection == ProjectionImage {
		img, err := geometry.ToFeatureImage(state, h.image)
		if err != nil {
			return network.Tensor{}, err
		}
		return network.NewTensor(img.Shape(), img.Pix)
	}
	features, err := geometry.ToFeatureVector(state)
	if err != nil {
		return network.Tensor{}, err
	}
	return network.NewTensor([]int{geometry.StateLen}, features.Slice())
}

// sigmaDofs decomposes a predicted covariance, read from its lower triangle.
func (h *Handle) sigmaDofs(out network.Tensor) (DofSet, error) {
	n := out.Shape[0]
	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sigma.SetSym(i, j, out.Data[i*n+j])
		}
	}
	values, vectors, err := eigen.Decompose(sigma)
	if err != nil {
		return DofSet{}, err
	}
	return DofSet{Dofs: rowsOf(vectors), Eigenvalues: values}, nil
}

// vectorDofs treats the output as m predicted vectors; a rank-1 output is
// one vector.
func (h *Handle) vectorDofs(out network.Tensor) (DofSet, error) {
	m, n := 1, out.Shape[0]
	if out.Rank() == 2 {
		m, n = out.Shape[0], out.Shape[1]
	}
	res, err := h.extractor.Extract(mat.NewDense(m, n, out.Data))
	if err != nil {
		return DofSet{}, err
	}
	return DofSet{Dofs: rowsOf(res.Vectors), Eigenvalues: res.Values}, nil
}

// rowsOf transposes eigenvector columns into rows.
func rowsOf(vectors *mat.Dense) [][]float64 {
	r, c := vectors.Dims()
	rows := make([][]float64, c)
	for j := 0; j < c; j++ {
		rows[j] = make([]float64, r)
		mat.Col(rows[j], j, vectors)
	}
	return rows
}
