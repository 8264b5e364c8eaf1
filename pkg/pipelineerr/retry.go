package pipelineerr

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// RetryDecision is the outcome of classifying a stage failure for re-enqueue.
type RetryDecision struct {
	ShouldRetry      bool
	CountdownSeconds int
	Reason           string
}

// ComputeBackoff computes min(base * 2^(attempt-1), max), per spec §4.10 rule 5.
// attempt is 1-indexed; attempt <= 1 returns base (capped at max).
func ComputeBackoff(attempt int, base, max time.Duration) time.Duration {
	if attempt <= 1 {
		if base > max {
			return max
		}
		return base
	}
	shift := attempt - 1
	if shift > 32 {
		shift = 32 // guard against overflow on pathological attempt counts
	}
	d := base << uint(shift)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// IsRetryable reports whether err represents a transient I/O condition
// (DB operational error, Redis connection/timeout, HTTP timeout, network)
// that should be retried with backoff rather than failing the stage outright.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, KindTransient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *http.ProtocolError
	if errors.As(err, &urlErr) {
		return true
	}

	return false
}

// Classify turns a raw error into a RetryDecision for the orchestrator's
// dispatch loop, given the attempt number that is about to be made and the
// configured base/max backoff.
func Classify(err error, attempt int, base, max time.Duration) RetryDecision {
	if !IsRetryable(err) {
		return RetryDecision{ShouldRetry: false, Reason: "non_retryable"}
	}
	return RetryDecision{
		ShouldRetry:      true,
		CountdownSeconds: int(ComputeBackoff(attempt, base, max).Seconds()),
		Reason:           "transient_io",
	}
}
