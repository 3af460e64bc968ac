package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/beacx/acx-api-client/pkg/backoff"
	"github.com/beacx/acx-api-client/pkg/notify"
)

// terminalError is a non-retryable test error.
type terminalError struct{ msg string }

func (e *terminalError) Error() string   { return e.msg }
func (e *terminalError) Retryable() bool { return false }

func testConfig(base time.Duration) Config {
	return Config{
		MaxAttempts: 5,
		Policy:      backoff.Policy{Base: base},
		Slots:       1,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
	}
	if cfg.Policy.Base != backoff.DefaultBase {
		t.Errorf("Policy.Base = %v, want %v", cfg.Policy.Base, backoff.DefaultBase)
	}
	if cfg.Slots != 1 {
		t.Errorf("Slots = %d, want 1", cfg.Slots)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"plain error defaults to retryable", errors.New("boom"), true},
		{"terminal error is not retryable", &terminalError{"denied"}, false},
		{"wrapped terminal error is not retryable", fmt.Errorf("patch: %w", &terminalError{"denied"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	exec := NewExecutor(testConfig(time.Second), nil)

	calls := 0
	start := time.Now()
	err := exec.Do(context.Background(), "rec-1", func(context.Context) error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("No backoff expected for immediate success, took %v", elapsed)
	}
}

func TestExecutor_SuccessAfterRetries(t *testing.T) {
	exec := NewExecutor(testConfig(20*time.Millisecond), nil)

	calls := 0
	start := time.Now()
	err := exec.Do(context.Background(), "rec-1", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Do returned %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	// Two waits: 20ms then 40ms.
	if elapsed < 60*time.Millisecond {
		t.Errorf("Expected at least 60ms of backoff, got %v", elapsed)
	}
}

func TestExecutor_Exhaustion(t *testing.T) {
	exec := NewExecutor(testConfig(time.Millisecond), nil)

	calls := 0
	testErr := errors.New("persistent")
	err := exec.Do(context.Background(), "rec-1", func(context.Context) error {
		calls++
		return testErr
	})

	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Do returned %v, want ErrExhausted", err)
	}
	if calls != 5 {
		t.Errorf("Expected exactly MaxAttempts=5 calls, got %d", calls)
	}
	if !strings.Contains(err.Error(), "persistent") {
		t.Errorf("Exhaustion error should carry the last error, got %q", err)
	}
}

func TestExecutor_NonRetryableStopsImmediately(t *testing.T) {
	exec := NewExecutor(testConfig(time.Second), nil)

	calls := 0
	err := exec.Do(context.Background(), "rec-1", func(context.Context) error {
		calls++
		return &terminalError{"permission denied"}
	})

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("Non-retryable failure must not be reported as exhaustion")
	}
	var te *terminalError
	if !errors.As(err, &te) {
		t.Errorf("Expected the terminal error to propagate, got %v", err)
	}
}

func TestExecutor_NotificationsPerAttempt(t *testing.T) {
	capture := &notify.Capture{}
	exec := NewExecutor(testConfig(time.Millisecond), capture)

	calls := 0
	_ = exec.Do(context.Background(), "rec-7", func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	msgs := capture.Messages()
	// attempt 1 failed, retrying, attempt 2 succeeded.
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 notifications, got %d: %v", len(msgs), msgs)
	}
	for _, m := range msgs {
		if !strings.Contains(m, "rec-7") {
			t.Errorf("Notification missing item identifier: %q", m)
		}
	}
	if !strings.Contains(msgs[len(msgs)-1], "succeeded") {
		t.Errorf("Last notification should report success, got %q", msgs[len(msgs)-1])
	}
}

func TestExecutor_ExhaustionNotification(t *testing.T) {
	capture := &notify.Capture{}
	cfg := testConfig(time.Millisecond)
	cfg.MaxAttempts = 2
	exec := NewExecutor(cfg, capture)

	_ = exec.Do(context.Background(), "rec-9", func(context.Context) error {
		return errors.New("down")
	})

	msgs := capture.Messages()
	last := msgs[len(msgs)-1]
	if !strings.Contains(last, "giving up after 2 attempts") {
		t.Errorf("Expected exhaustion notification, got %q", last)
	}
}

func TestExecutor_SingleSlotSerializesRetryLoops(t *testing.T) {
	cfg := Config{
		MaxAttempts: 2,
		Policy:      backoff.Policy{Base: 60 * time.Millisecond},
		Slots:       1,
	}
	exec := NewExecutor(cfg, nil)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = exec.Do(context.Background(), fmt.Sprintf("rec-%d", id), func(context.Context) error {
				return errors.New("always fails")
			})
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// Each item waits 60ms inside the gate; with one slot the waits cannot
	// overlap, so the run takes at least 120ms.
	if elapsed < 120*time.Millisecond {
		t.Errorf("Retry loops overlapped with Slots=1: elapsed %v", elapsed)
	}
}

func TestExecutor_WiderGateAllowsParallelRetries(t *testing.T) {
	cfg := Config{
		MaxAttempts: 2,
		Policy:      backoff.Policy{Base: 80 * time.Millisecond},
		Slots:       4,
	}
	exec := NewExecutor(cfg, nil)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = exec.Do(context.Background(), fmt.Sprintf("rec-%d", id), func(context.Context) error {
				return errors.New("always fails")
			})
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// All four waits run in parallel; well under the 320ms serial total.
	if elapsed > 250*time.Millisecond {
		t.Errorf("Expected parallel retry waits with Slots=4, elapsed %v", elapsed)
	}
}

func TestExecutor_ContextCancelledDuringBackoff(t *testing.T) {
	exec := NewExecutor(testConfig(time.Hour), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- exec.Do(ctx, "rec-1", func(context.Context) error {
			return errors.New("transient")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrAborted) {
			t.Errorf("Do returned %v, want ErrAborted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}
