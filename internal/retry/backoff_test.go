package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}
	if config.BaseDelay != time.Second {
		t.Errorf("Expected BaseDelay=1s, got %v", config.BaseDelay)
	}
	if config.MaxDelay != 30*time.Second {
		t.Errorf("Expected MaxDelay=30s, got %v", config.MaxDelay)
	}
	if config.Multiplier != 2.0 {
		t.Errorf("Expected Multiplier=2.0, got %f", config.Multiplier)
	}
	if !config.Jitter {
		t.Error("Expected Jitter=true")
	}
}

func TestProviderConfig(t *testing.T) {
	config := ProviderConfig()

	if config.BaseDelay != 2*time.Second {
		t.Errorf("Expected BaseDelay=2s, got %v", config.BaseDelay)
	}
	if config.MaxDelay != 60*time.Second {
		t.Errorf("Expected MaxDelay=60s, got %v", config.MaxDelay)
	}
	if config.Multiplier != 2.5 {
		t.Errorf("Expected Multiplier=2.5, got %f", config.Multiplier)
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), DefaultConfig(), func() error {
		calls++
		return nil
	})

	if !result.Success {
		t.Error("Expected success")
	}
	if calls != 1 || result.Attempts != 1 {
		t.Errorf("Expected one attempt, got calls=%d attempts=%d", calls, result.Attempts)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := Do(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if !result.Success {
		t.Errorf("Expected eventual success, last error: %v", result.LastError)
	}
	if result.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", result.Attempts)
	}
	if len(result.Reasons) != 2 {
		t.Errorf("Expected 2 recorded failures, got %v", result.Reasons)
	}
}

func TestDo_NonRetryableFailsFast(t *testing.T) {
	cfg := Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("invalid request payload")
	})

	if result.Success {
		t.Error("Expected failure")
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt for a non-retryable error, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	cfg := Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	calls := 0
	result := Do(context.Background(), cfg, func() error {
		calls++
		return errors.New("service unavailable")
	})

	if result.Success {
		t.Error("Expected failure after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	cfg := Config{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, cfg, func() error {
		return errors.New("timeout")
	})

	if result.Success {
		t.Error("Expected failure on cancelled context")
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", result.LastError)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("HTTP 503 Service Unavailable"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("status 429"), true},
		{errors.New("dial tcp: no such host"), true},
		{errors.New("unauthorized"), false},
		{errors.New("bad request"), false},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("IsRetryable(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}

func TestBackoffDelay_CappedAndGrowing(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	if d := backoffDelay(cfg, 0); d != time.Second {
		t.Errorf("Expected base delay on attempt 0, got %v", d)
	}
	if d := backoffDelay(cfg, 1); d != 2*time.Second {
		t.Errorf("Expected doubled delay on attempt 1, got %v", d)
	}
	if d := backoffDelay(cfg, 10); d != 5*time.Second {
		t.Errorf("Expected delay capped at MaxDelay, got %v", d)
	}
}
