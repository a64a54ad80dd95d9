package llm

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrTimeout is returned when a completion request times out.
	ErrTimeout = errors.New("LLM request timed out")

	// ErrRateLimited is returned when the provider rejects a request with a rate limit.
	ErrRateLimited = errors.New("LLM rate limit exceeded")

	// ErrEmptyResponse is returned when a call succeeds without any content.
	ErrEmptyResponse = errors.New("empty response from LLM")
)

// FailureKind classifies a failed attempt for concurrency adaptation.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureRateLimited FailureKind = "rate_limited"
	FailureOther       FailureKind = "other"
)

// Classify maps an attempt error to its FailureKind.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}

// Retryable reports whether an attempt failing with kind may be retried.
func (k FailureKind) Retryable() bool {
	return k == FailureTimeout || k == FailureRateLimited
}
