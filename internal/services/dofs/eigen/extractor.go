package eigen

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Mode selects what an Extractor returns.
type Mode int

const (
	// ModeWithValues returns every eigenvector with its eigenvalue.
	ModeWithValues Mode = iota
	// ModeSingleVector returns only the eigenvector of the largest eigenvalue.
	ModeSingleVector
	// ModeVectorsOnly returns every eigenvector without eigenvalues.
	ModeVectorsOnly
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeWithValues:
		return "with_values"
	case ModeSingleVector:
		return "single_vector"
	case ModeVectorsOnly:
		return "vectors_only"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Result holds the eigenvectors as columns in descending eigenvalue order.
// Values is nil unless the extractor runs in ModeWithValues.
type Result struct {
	Vectors *mat.Dense
	Values  []float64
}

// Extractor turns a batch of predicted vectors into the eigenvectors of
// their covariance.
type Extractor struct {
	mode Mode
}

// NewExtractor returns an extractor fixed to mode.
func NewExtractor(mode Mode) Extractor {
	return Extractor{mode: mode}
}

// Mode reports the extractor mode.
func (e Extractor) Mode() Mode {
	return e.mode
}

// Extract computes the covariance of the m x n row vectors and decomposes it.
func (e Extractor) Extract(vectors *mat.Dense) (Result, error) {
	sigma, err := Covariance(vectors)
	if err != nil {
		return Result{}, err
	}
	values, eigvecs, err := Decompose(sigma)
	if err != nil {
		return Result{}, err
	}

	switch e.mode {
	case ModeSingleVector:
		n, _ := eigvecs.Dims()
		return Result{Vectors: mat.DenseCopyOf(eigvecs.Slice(0, n, 0, 1))}, nil
	case ModeVectorsOnly:
		return Result{Vectors: eigvecs}, nil
	default:
		return Result{Vectors: eigvecs, Values: values}, nil
	}
}
