package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for tokens unknown to the registry.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks bad config or query input.
	ErrValidation = errors.New("validation error")
	// ErrUpstreamUnavailable marks collaborator failures surfaced to a caller.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrComputationFailure marks NaN, infinite or overflowing prices.
	ErrComputationFailure = errors.New("computation failure")
	// ErrSourceDisabled stands in for a collaborator that is switched off.
	ErrSourceDisabled = errors.New("source disabled")
)

// SourceFailure records which collaborators failed during one aggregation.
type SourceFailure struct {
	TokenID        string
	ContentErr     error
	AttestationErr error
}

func (e *SourceFailure) Error() string {
	switch {
	case e.ContentErr != nil && e.AttestationErr != nil:
		return fmt.Sprintf("token %s: content store: %v; attestation: %v", e.TokenID, e.ContentErr, e.AttestationErr)
	case e.ContentErr != nil:
		return fmt.Sprintf("token %s: content store: %v", e.TokenID, e.ContentErr)
	default:
		return fmt.Sprintf("token %s: attestation: %v", e.TokenID, e.AttestationErr)
	}
}

// Unwrap exposes ErrUpstreamUnavailable and the underlying source errors.
func (e *SourceFailure) Unwrap() []error {
	errs := []error{ErrUpstreamUnavailable}
	if e.ContentErr != nil {
		errs = append(errs, e.ContentErr)
	}
	if e.AttestationErr != nil {
		errs = append(errs, e.AttestationErr)
	}
	return errs
}

// BothFailed reports whether neither collaborator produced data.
func (e *SourceFailure) BothFailed() bool {
	return e.ContentErr != nil && e.AttestationErr != nil
}
