package network

import "errors"

var (
	// ErrUnsupported indicates a layer, activation or option the runtime cannot evaluate.
	ErrUnsupported = errors.New("unsupported")
	// ErrInvalidDefinition indicates a structurally invalid model definition.
	ErrInvalidDefinition = errors.New("invalid model definition")
	// ErrShapeMismatch indicates incompatible tensor shapes.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrMissingWeight indicates a layer parameter absent from the weights.
	ErrMissingWeight = errors.New("missing weight")
)
