// Package resilience classifies outbound-call failures and drives the
// retry/back-off policy shared by the ingestion scheduler and the
// ambient-recall engine (spec.md §7).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// ErrorKind is the error taxonomy named in spec.md §7.
type ErrorKind string

const (
	KindRateLimit      ErrorKind = "rate_limit"
	KindQuotaExceeded  ErrorKind = "quota_exceeded"
	KindAuthFailure    ErrorKind = "auth_failure"
	KindNetworkTimeout ErrorKind = "network_timeout"
	KindGraphEngine    ErrorKind = "graph_engine_error"
	KindInvalidInput   ErrorKind = "invalid_input"
	KindUnclassified   ErrorKind = "unclassified"
)

// Transient reports whether a kind warrants a retry at the next tick.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimit, KindNetworkTimeout:
		return true
	default:
		return false
	}
}

// ClassifiedError pairs an error with its taxonomy kind so layer code can
// return a typed failure instead of letting raw errors cross the RPC
// boundary (spec.md §7 propagation policy).
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (c *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", c.Kind, c.Err)
}

func (c *ClassifiedError) Unwrap() error { return c.Err }

// Classify inspects err using simple heuristics consistent with how the
// embedding/graph/vector clients in this codebase surface failures (status
// text and wrapped sentinel errors), returning a best-effort ErrorKind.
// Callers with a more precise signal (an HTTP status code, a provider error
// code) should build a ClassifiedError directly instead of calling this.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return KindRateLimit
	case strings.Contains(msg, "quota"):
		return KindQuotaExceeded
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "auth"):
		return KindAuthFailure
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return KindNetworkTimeout
	case strings.Contains(msg, "invalid"):
		return KindInvalidInput
	default:
		return KindUnclassified
	}
}

// Wrap annotates err with an explicit kind.
func Wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// Policy configures WithRetry's back-off shape.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy mirrors the sleep-and-retry shape used for embedding/graph
// calls elsewhere in this codebase: a handful of attempts with exponential
// back-off and jitter.
var DefaultPolicy = Policy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}

// WithRetry runs fn, retrying only on transient ErrorKinds, up to
// p.MaxAttempts times with exponential back-off plus jitter. It returns the
// last error fn returned, unwrapped, if every attempt fails (or the first
// non-transient one), and respects ctx cancellation between attempts.
func WithRetry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		kind := Classify(err)
		if !kind.Transient() {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := backoff(p, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func backoff(p Policy, attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy.BaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultPolicy.MaxDelay
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}
