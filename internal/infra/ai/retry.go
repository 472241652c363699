package ai

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Policy defines retry behavior for provider calls.
type Policy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultPolicy provides sensible defaults.
var DefaultPolicy = Policy{
	MaxAttempts:     4,
	InitialDelay:    1 * time.Second,
	MaxDelay:        30 * time.Second,
	BackoffMultiple: 2.0,
}

// UnmarshalYAML decodes delay fields from duration strings like "500ms".
func (p *Policy) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		MaxAttempts     int     `yaml:"max_attempts"`
		InitialDelay    string  `yaml:"initial_delay"`
		MaxDelay        string  `yaml:"max_delay"`
		BackoffMultiple float64 `yaml:"backoff_multiple"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	p.MaxAttempts = raw.MaxAttempts
	p.BackoffMultiple = raw.BackoffMultiple
	if raw.InitialDelay != "" {
		d, err := time.ParseDuration(raw.InitialDelay)
		if err != nil {
			return err
		}
		p.InitialDelay = d
	}
	if raw.MaxDelay != "" {
		d, err := time.ParseDuration(raw.MaxDelay)
		if err != nil {
			return err
		}
		p.MaxDelay = d
	}
	return nil
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	if p.BackoffMultiple <= 1 {
		p.BackoffMultiple = DefaultPolicy.BackoffMultiple
	}
	return p
}

// ErrorClass determines how to handle a provider error.
type ErrorClass int

const (
	ClassRateLimit ErrorClass = iota
	ClassTransient
	ClassFatal
)

// Classify determines the class for a given error. A normalized *APIError is
// consulted first; foreign errors fall back to phrase matching.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassFatal // Should not happen
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return ClassRateLimit
		}
		if apiErr.StatusCode >= 500 && apiErr.StatusCode < 600 {
			return ClassTransient
		}
	}

	s := strings.ToLower(err.Error())

	// Rate-limit signatures
	if strings.Contains(s, "429") || strings.Contains(s, "too many requests") ||
		strings.Contains(s, "resource exhausted") ||
		strings.Contains(s, "quota exceeded") ||
		strings.Contains(s, "rate limit") {
		return ClassRateLimit
	}

	// Transient signatures (network, 5xx)
	if strings.Contains(s, "timeout") || strings.Contains(s, "timed out") ||
		strings.Contains(s, "temporarily unavailable") ||
		strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "502") || strings.Contains(s, "503") ||
		strings.Contains(s, "504") {
		return ClassTransient
	}

	return ClassFatal
}

func (c ErrorClass) retryable() bool {
	return c == ClassRateLimit || c == ClassTransient
}

// String returns the class label, for metrics and logs.
func (c ErrorClass) String() string {
	switch c {
	case ClassRateLimit:
		return "rate_limit"
	case ClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Do executes op with exponential backoff. Retryable errors are retried up to
// policy.MaxAttempts total calls; fatal errors propagate immediately. When
// attempts are exhausted the last error propagates unchanged.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !Classify(err).retryable() {
			return zero, err // Stop immediately, do not retry
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt, p)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// First tries each op in order, with per-op retry, returning the first
// success. A fatal error aborts the chain; retryable exhaustion moves on to
// the next op.
func First[T any](ctx context.Context, policy Policy, ops ...func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for _, op := range ops {
		result, err := Do(ctx, policy, op)
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !Classify(err).retryable() {
			return zero, err
		}
	}

	return zero, lastErr
}

// backoffDelay computes min(initial * multiple^attempt * jitter(0.8-1.2), max).
func backoffDelay(attempt int, p Policy) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiple, float64(attempt))
	delay *= 0.8 + 0.4*rand.Float64()
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}
