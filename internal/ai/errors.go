package ai

import (
	"errors"
	"fmt"
)

// ProviderErrorKind classifies provider failures
type ProviderErrorKind string

const (
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderUnavailable ProviderErrorKind = "unavailable"
	// ProviderRejected is a 4xx other than 408/429: bad request, auth, unknown model
	ProviderRejected ProviderErrorKind = "rejected"
)

// ProviderError is a failed call to the model provider. Every kind except
// ProviderRejected is retried.
type ProviderError struct {
	Kind  ProviderErrorKind
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (model %s): %v", e.Kind, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transient reports whether another attempt may succeed
func (e *ProviderError) Transient() bool {
	return e.Kind != ProviderRejected
}

// Generation failure reasons
const (
	ReasonInvalidResponse = "invalid_response"
	ReasonEmptyResponse   = "empty_response"
)

// GenerationError is model output that could not be parsed or validated.
// Raw holds the text for fallback handling by the caller.
type GenerationError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation failed: " + e.Reason
	}
	return fmt.Sprintf("generation failed: %s: %v", e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a *ProviderError
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsGenerationError reports whether err is (or wraps) a *GenerationError
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
