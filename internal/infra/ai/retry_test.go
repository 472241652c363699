package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffMultiple: 2.0,
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorClass
	}{
		{&APIError{Provider: "gemini", StatusCode: 429, Message: "slow down"}, ClassRateLimit},
		{&APIError{Provider: "gemini", StatusCode: 503, Message: "overloaded"}, ClassTransient},
		{&APIError{Provider: "gemini", StatusCode: 400, Message: "bad request"}, ClassFatal},
		{&APIError{Provider: "gemini", StatusCode: 401, Message: "bad key"}, ClassFatal},
		{errors.New("429 Too Many Requests"), ClassRateLimit},
		{errors.New("RESOURCE EXHAUSTED: try later"), ClassRateLimit},
		{errors.New("quota exceeded for project"), ClassRateLimit},
		{errors.New("rate limit hit"), ClassRateLimit},
		{errors.New("request timeout"), ClassTransient},
		{errors.New("service unavailable"), ClassTransient},
		{errors.New("connection reset by peer"), ClassTransient},
		{errors.New("502 Bad Gateway"), ClassTransient},
		{errors.New("invalid request payload"), ClassFatal},
		{errors.New("model not found"), ClassFatal},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.expect {
			t.Errorf("Classify(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestClassify_WrappedAPIError(t *testing.T) {
	err := &APIError{Provider: "gemini", StatusCode: 429, Message: "x"}
	wrapped := errors.Join(errors.New("generate text"), err)
	if got := Classify(wrapped); got != ClassRateLimit {
		t.Errorf("Classify(wrapped) = %v, want ClassRateLimit", got)
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(4), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesRateLimitThenSucceeds(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(4), func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", &APIError{Provider: "gemini", StatusCode: 429, Message: "slow down"}
		}
		return "script", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if result != "script" {
		t.Errorf("expected script, got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 retries), got %d", calls)
	}
}

func TestDo_FatalStopsImmediately(t *testing.T) {
	fatal := &APIError{Provider: "gemini", StatusCode: 401, Message: "bad key"}
	calls := 0
	_, err := Do(context.Background(), fastPolicy(4), func(ctx context.Context) (string, error) {
		calls++
		return "", fatal
	})
	if !errors.Is(err, fatal) {
		t.Errorf("expected the fatal error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call for fatal error, got %d", calls)
	}
}

func TestDo_ExhaustionReturnsLastErrorUnchanged(t *testing.T) {
	last := errors.New("503 still down")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "", last
	})
	if calls != 3 {
		t.Errorf("expected exactly MaxAttempts calls, got %d", calls)
	}
	if err != last {
		t.Errorf("expected the last error unchanged, got %v", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiple: 2}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, policy, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestBackoffDelay_CappedAtMax(t *testing.T) {
	p := Policy{
		MaxAttempts:     10,
		InitialDelay:    time.Second,
		MaxDelay:        3 * time.Second,
		BackoffMultiple: 2.0,
	}
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt, p)
		if d > p.MaxDelay {
			t.Errorf("attempt %d: delay %s exceeds max %s", attempt, d, p.MaxDelay)
		}
		if d <= 0 {
			t.Errorf("attempt %d: non-positive delay %s", attempt, d)
		}
	}
}

func TestBackoffDelay_JitterWithinBounds(t *testing.T) {
	p := Policy{
		MaxAttempts:     4,
		InitialDelay:    time.Second,
		MaxDelay:        time.Hour,
		BackoffMultiple: 2.0,
	}
	// Attempt 1 has base delay 2s; jitter keeps it within [1.6s, 2.4s].
	for i := 0; i < 100; i++ {
		d := backoffDelay(1, p)
		if d < 1600*time.Millisecond || d > 2400*time.Millisecond {
			t.Fatalf("delay %s outside jitter bounds [1.6s, 2.4s]", d)
		}
	}
}

func TestFirst_FailsOverAfterExhaustion(t *testing.T) {
	primaryCalls := 0
	secondaryCalls := 0

	result, err := First(context.Background(), fastPolicy(2),
		func(ctx context.Context) (string, error) {
			primaryCalls++
			return "", &APIError{Provider: "primary", StatusCode: 503, Message: "down"}
		},
		func(ctx context.Context) (string, error) {
			secondaryCalls++
			return "fallback", nil
		},
	)
	if err != nil {
		t.Fatalf("First failed: %v", err)
	}
	if result != "fallback" {
		t.Errorf("expected fallback, got %q", result)
	}
	if primaryCalls != 2 {
		t.Errorf("expected primary exhausted after 2 calls, got %d", primaryCalls)
	}
	if secondaryCalls != 1 {
		t.Errorf("expected 1 secondary call, got %d", secondaryCalls)
	}
}

func TestFirst_FatalAbortsChain(t *testing.T) {
	secondaryCalls := 0
	fatal := &APIError{Provider: "primary", StatusCode: 400, Message: "bad prompt"}

	_, err := First(context.Background(), fastPolicy(3),
		func(ctx context.Context) (string, error) {
			return "", fatal
		},
		func(ctx context.Context) (string, error) {
			secondaryCalls++
			return "fallback", nil
		},
	)
	if !errors.Is(err, fatal) {
		t.Errorf("expected the fatal error, got %v", err)
	}
	if secondaryCalls != 0 {
		t.Errorf("fatal error must not fail over, secondary called %d times", secondaryCalls)
	}
}
