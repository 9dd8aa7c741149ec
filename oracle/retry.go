package oracle

import (
	"context"
	"errors"
	"strings"
	"time"
)

// -------------------- Outcome --------------------

// OutcomeKind classifies an invocation attempt. Explicit result kinds
// instead of exceptions-as-control-flow: the call site decides what
// each kind means.
type OutcomeKind uint8

const (
	OK OutcomeKind = iota
	Timeout
	RateLimited
	Malformed
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case OK:
		return "ok"
	case Timeout:
		return "timeout"
	case RateLimited:
		return "rate_limited"
	case Malformed:
		return "malformed"
	default:
		return "failed"
	}
}

// Outcome is what an Invoke hands back: the response when Kind == OK,
// otherwise the classified failure of the final attempt.
type Outcome struct {
	Kind     OutcomeKind
	Response Response
	Err      error
	Attempts int
}

// -------------------- Retry --------------------

// RetryPolicy bounds the oracle call. Every attempt gets its own
// timeout; retries back off linearly.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Timeout: 45 * time.Second, Backoff: 2 * time.Second}
}

// Invoke runs the oracle with bounded retries. The request is
// idempotent, so every failure kind is retryable; the outcome of the
// last attempt wins.
func Invoke(ctx context.Context, c Client, req Request, p RetryPolicy) Outcome {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var out Outcome
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		out.Attempts = attempt

		callCtx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		resp, err := c.Match(callCtx, req)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			out.Kind = OK
			out.Response = resp
			out.Err = nil
			return out
		}

		out.Kind = classify(err)
		out.Err = err

		if ctx.Err() != nil {
			return out // caller's context is gone, stop retrying
		}
		if attempt < p.Attempts && p.Backoff > 0 {
			select {
			case <-time.After(time.Duration(attempt) * p.Backoff):
			case <-ctx.Done():
				return out
			}
		}
	}
	return out
}

func classify(err error) OutcomeKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, ErrBadResponse):
		return Malformed
	case isRateLimit(err):
		return RateLimited
	default:
		return Failed
	}
}

func isRateLimit(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
