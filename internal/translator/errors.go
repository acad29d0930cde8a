package translator

import (
	"errors"
	"fmt"
)

// Kind enumerates the failure categories a translation run can end with.
type Kind string

const (
	KindTransient       Kind = "transient_provider_error"
	KindDailyLimit      Kind = "daily_limit_reached"
	KindPaymentRequired Kind = "payment_required"
	KindInvalidResponse Kind = "invalid_provider_response"
	KindIntegrityFailed Kind = "integrity_failed"
	KindMalformed       Kind = "malformed_subtitle"
	KindProbeFailed     Kind = "probe_failed"
	KindExtractFailed   Kind = "extraction_failed"
	KindNoSource        Kind = "no_suitable_source"
	KindCancelled       Kind = "cancelled"
	KindTimedOut        Kind = "timed_out"
	KindInternal        Kind = "internal_error"
)

// Error carries a failure kind across the pipeline so the worker boundary
// can decide the terminal request status and log wording.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" && e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a kinded error.
func NewError(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the Kind from err, or KindInternal for unkinded errors.
func KindOf(err error) Kind {
	var kinded *Error
	if errors.As(err, &kinded) {
		return kinded.Kind
	}
	return KindInternal
}
