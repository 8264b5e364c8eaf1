// Package pipelineerr defines the typed error taxonomy used throughout the
// fix pipeline. Stages classify failures into one of these kinds so the
// orchestrator can map them onto the run status machine without relying on
// exceptions-as-control-flow.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error into the taxonomy of spec §7.
type Kind string

const (
	KindIngestion   Kind = "ingestion"    // bad signature, malformed payload
	KindParse       Kind = "parse"        // LLM output / diff parsing, recoverable via repair-retry
	KindPolicy      Kind = "policy"       // deterministic safety-policy block
	KindSandbox     Kind = "sandbox"      // container failure, timeout
	KindTransient   Kind = "transient"    // DB/Redis/HTTP/network, retriable with backoff
	KindStateConflict Kind = "state_conflict" // backwards transition or duplicate run
	KindFatalConfig Kind = "fatal_config" // missing secret/policy in prod, process must exit
)

// Error is the common shape for all classified pipeline errors.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf classifies an underlying error with a formatted message.
func Wrapf(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err was classified with the given kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from a classified error, or "" if err is not one.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Sentinel errors used with errors.Is for common, non-contextual conditions.
var (
	// ErrDuplicateRun indicates a second caller raced to create the same run;
	// the existing row must be returned instead (spec §3 "one run per event").
	ErrDuplicateRun = errors.New("fix pipeline run already exists for event")

	// ErrBackwardTransition indicates a worker attempted to move a run's
	// status backwards along the state graph; callers must no-op.
	ErrBackwardTransition = errors.New("status transition would move backwards")

	// ErrPRAlreadyCreated indicates the run already has a last_pr_url set;
	// re-entering the PR stage must return the existing URL.
	ErrPRAlreadyCreated = errors.New("pull request already created for this run")

	// ErrNoLease indicates the per-repo concurrency lease could not be
	// acquired; the caller should back off and re-schedule.
	ErrNoLease = errors.New("per-repo concurrency lease unavailable")
)
