// Package storage defines persistence contracts for model weights.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested weights file or tensor is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a tensor with the same layer and name is stored.
	ErrAlreadyExists = errors.New("record already exists")
)

// Tensor is one named parameter of one layer.
type Tensor struct {
	Layer     string
	Name      string
	Shape     []int
	Data      []float64
	CreatedAt time.Time
}

// WeightsReader reads stored layer parameters.
type WeightsReader interface {
	ListTensors(ctx context.Context) ([]Tensor, error)
	GetTensor(ctx context.Context, layer, name string) (Tensor, error)
}

// WeightsWriter stores layer parameters.
type WeightsWriter interface {
	PutTensor(ctx context.Context, tensor Tensor) error
}
