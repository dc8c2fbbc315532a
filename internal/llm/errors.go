package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed generation call.
type Kind string

const (
	KindTimeout   Kind = "Timeout"
	KindAPI       Kind = "ApiError"
	KindTransport Kind = "TransportError"
)

// GenerationError is returned once a generation call has exhausted its
// attempts, or immediately for a non-transient API failure.
type GenerationError struct {
	Kind      Kind
	Transient bool
	Attempts  int
	Err       error
}

func (e *GenerationError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("model request timed out after %d attempt(s): %v", e.Attempts, e.Err)
	case KindAPI:
		return fmt.Sprintf("model API error after %d attempt(s): %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("model call failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Timeout reports a per-call deadline expiry.
func Timeout(err error) *GenerationError {
	return &GenerationError{Kind: KindTimeout, Transient: true, Err: err}
}

// APIError reports a failure returned by the model provider. Transient API
// errors are retried; the rest fail the call immediately.
func APIError(err error, transient bool) *GenerationError {
	return &GenerationError{Kind: KindAPI, Transient: transient, Err: err}
}

// TransportError reports a network or client-side failure.
func TransportError(err error) *GenerationError {
	return &GenerationError{Kind: KindTransport, Transient: true, Err: err}
}

// classify turns whatever a backend returned into a GenerationError.
// Backends may pre-classify; anything else is inspected for deadline and
// network timeouts before falling back to a transport failure. callErr is
// the per-call context's error observed right after the call returned.
func classify(err, callErr error) *GenerationError {
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		cp := *gerr
		return &cp
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callErr, context.DeadlineExceeded) {
		return Timeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout(err)
	}
	return TransportError(err)
}
