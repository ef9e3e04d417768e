package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed build so users know what to fix.
type ErrorKind string

// Build failure categories.
const (
	ErrorKindSourceUnavailable  ErrorKind = "source_unavailable"
	ErrorKindEmbeddingFailure   ErrorKind = "embedding_failure"
	ErrorKindIndexInconsistency ErrorKind = "index_inconsistency"
	ErrorKindConfiguration      ErrorKind = "configuration_error"
	ErrorKindUnclassified       ErrorKind = "unclassified"
)

// Hint returns the remediation hint for the category.
func (k ErrorKind) Hint() string {
	switch k {
	case ErrorKindSourceUnavailable:
		return "check the document source configuration and connectivity"
	case ErrorKindEmbeddingFailure:
		return "check embedding provider API keys and endpoints"
	case ErrorKindIndexInconsistency:
		return "rebuild the fabric to recreate its vector collection"
	case ErrorKindConfiguration:
		return "check chunk size, overlap and model settings"
	default:
		return ""
	}
}

// BuildError is the failure recorded on a fabric in the Error state.
type BuildError struct {
	Kind    ErrorKind
	Message string
	Hint    string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Hint)
}

// Classify maps an error onto a build failure category.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return ErrorKindSourceUnavailable
	case errors.Is(err, ErrEmbeddingFailure):
		return ErrorKindEmbeddingFailure
	case errors.Is(err, ErrIndexInconsistency), errors.Is(err, ErrDimensionMismatch):
		return ErrorKindIndexInconsistency
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	default:
		return ErrorKindUnclassified
	}
}

// Hinter is implemented by errors that carry a specific remediation, such
// as a source rejecting credentials.
type Hinter interface {
	Hint() string
}

// NewBuildError wraps err into a classified BuildError. A hint carried by
// err takes precedence over the category hint.
func NewBuildError(err error) *BuildError {
	kind := Classify(err)
	hint := kind.Hint()

	var h Hinter
	if errors.As(err, &h) && h.Hint() != "" {
		hint = h.Hint()
	}

	return &BuildError{
		Kind:    kind,
		Message: err.Error(),
		Hint:    hint,
	}
}
