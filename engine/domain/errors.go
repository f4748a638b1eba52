package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for pipeline failures. Classification drives the
// propagation policy: ingestion errors surface to the caller, retrieval and
// generation errors degrade into the answer text.
var (
	// ErrEmptyDocument means a document produced no extractable text.
	// Fatal to that upload; surfaced to the uploader.
	ErrEmptyDocument = errors.New("document has no extractable text")

	// ErrUnreadableDocument means the source file could not be parsed at all.
	ErrUnreadableDocument = errors.New("document could not be parsed")

	// ErrIndexUnavailable means the vector store is unreachable. The
	// retriever absorbs it into a no-context sentinel string.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGeneration means the language-model provider call failed. The
	// orchestrator absorbs it into a visible apology reply.
	ErrGeneration = errors.New("answer generation failed")

	// ErrDimensionMismatch means the configured embedding dimensionality does
	// not match the index. Operator misconfiguration; fatal at startup.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNoQuestion means a conversation does not end with a user message.
	ErrNoQuestion = errors.New("conversation does not end with a user question")
)

// ValidationError wraps a sentinel with the field and value that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
