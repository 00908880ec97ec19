// Package network evaluates sequential feed-forward networks described by a
// Keras-style model definition with weights bound from a tensor store.
package network

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a dense row-major array. The batch dimension is never stored.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor checks that data fills shape exactly.
func NewTensor(shape []int, data []float64) (Tensor, error) {
	if size := shapeSize(shape); size != len(data) {
		return Tensor{}, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShapeMismatch, shape, size, len(data))
	}
	return Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

// Zeros returns a zero tensor of the given shape.
func Zeros(shape ...int) Tensor {
	return Tensor{Shape: slices.Clone(shape), Data: make([]float64, shapeSize(shape))}
}

// Rank returns the number of dimensions.
func (t Tensor) Rank() int {
	return len(t.Shape)
}

// Size returns the number of values.
func (t Tensor) Size() int {
	return len(t.Data)
}

// Reshape returns a view with a new shape holding the same values.
func (t Tensor) Reshape(shape ...int) (Tensor, error) {
	return NewTensor(shape, t.Data)
}

// Matrix views a rank-2 tensor as a gonum matrix sharing its data.
func (t Tensor) Matrix() (*mat.Dense, error) {
	if t.Rank() != 2 {
		return nil, fmt.Errorf("%w: want rank 2, got shape %v", ErrShapeMismatch, t.Shape)
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Data), nil
}

// Clone returns a deep copy.
func (t Tensor) Clone() Tensor {
	return Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// rows flattens every leading axis, returning (rows, last axis).
func (t Tensor) rows() (int, int) {
	if t.Rank() == 0 {
		return 1, 1
	}
	last := t.Shape[t.Rank()-1]
	if last == 0 {
		return 0, 0
	}
	return len(t.Data) / last, last
}

func shapeSize(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}
