// Package faults carries the error taxonomy of the routing core. A fault is
// an error tagged with a Kind the caller can branch on: correct the input,
// retry, or give up. Unschedulable stops are NOT faults — they come back as
// structured data on the optimizer result.
package faults

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	// A stop's own constraints are contradictory (negative service time,
	// window start after window end).
	InfeasibleInput Kind = "INFEASIBLE_INPUT"

	// Distance provider or solver unreachable or timed out. No partial
	// state was changed; safe to retry.
	DependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"

	// A state-machine precondition was violated.
	InvalidTransition Kind = "INVALID_TRANSITION"

	// Completion attempted without a required signature or photo.
	MissingProof Kind = "MISSING_PROOF"

	// The optimistic check failed while applying a computed plan; the plan
	// was discarded, nothing was applied. Safe to retry.
	ConcurrentModification Kind = "CONCURRENT_MODIFICATION"

	// The referenced route, journey or stop does not exist.
	NotFound Kind = "NOT_FOUND"
)

// Retryable reports whether repeating the same call may succeed without the
// caller changing anything.
func (k Kind) Retryable() bool {
	switch k {
	case DependencyUnavailable, ConcurrentModification:
		return true
	case InfeasibleInput, InvalidTransition, MissingProof, NotFound:
		return false
	}
	return false
}

type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the Kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
