// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Input errors
	CodeInvalidInput Code = "INVALID_INPUT"

	// Model lifecycle errors
	CodeModelNotFound Code = "MODEL_NOT_FOUND"
	CodeModelCorrupt  Code = "MODEL_CORRUPT"
	CodeNotConfigured Code = "NOT_CONFIGURED"

	// Numeric errors
	CodeNumericDegenerate Code = "NUMERIC_DEGENERATE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - malformed scene state or request
	case CodeInvalidInput:
		return codes.InvalidArgument

	// NotFound - no such named model
	case CodeModelNotFound:
		return codes.NotFound

	// FailedPrecondition - model present but cannot serve the operation
	case CodeModelCorrupt,
		CodeNotConfigured:
		return codes.FailedPrecondition

	default:
		return codes.Internal
	}
}
