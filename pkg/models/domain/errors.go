package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrIllegalTransition marks an attempted finding status transition outside
// the legal graph. This is a programming error, not a runtime condition.
var ErrIllegalTransition = errors.New("illegal finding status transition")

// ValidationError rejects a malformed request before any side effect.
type ValidationError struct {
	Msg string
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError rejects a request against a finding that is not in the
// required state or is already mid-transition. The caller must re-fetch and
// retry deliberately.
type ConflictError struct {
	FindingID string
	Msg       string
}

func NewConflictError(findingID, format string, args ...any) *ConflictError {
	return &ConflictError{FindingID: findingID, Msg: fmt.Sprintf(format, args...)}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("finding %s: %s", e.FindingID, e.Msg)
}

type ProviderErrorCode string

const (
	ProviderAuth        ProviderErrorCode = "auth"
	ProviderRateLimited ProviderErrorCode = "rate_limited"
	ProviderNotFound    ProviderErrorCode = "not_found"
	ProviderUnavailable ProviderErrorCode = "unavailable"
)

// ProviderError is a typed failure from an external cloud call, so control
// code can distinguish "the call failed" from "the resource is compliant".
type ProviderError struct {
	Provider string
	Code     ProviderErrorCode
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %s (%s): %v", e.Provider, e.Op, e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError means the finding store or the ledger could not durably
// complete a write. The surrounding operation must not report success.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
