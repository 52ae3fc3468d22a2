package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func testConfig(maxFailures int) FallbackConfig {
	return FallbackConfig{CircuitBreaker: CircuitBreakerConfig{
		MaxFailures:  maxFailures,
		ResetTimeout: time.Hour,
		Clock:        clockwork.NewFakeClock(),
	}}
}

func TestFallbackGroup_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{name: "primary succeeds", failing: map[string]bool{}, want: "primary"},
		{name: "primary fails", failing: map[string]bool{"primary": true}, want: "secondary"},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := NewFallbackGroup("primary", "primary", testConfig(3))
			fg.AddFallback("secondary", "secondary")

			var called string
			err := fg.Execute(context.Background(), func(v string) error {
				if tt.failing[v] {
					return errTest
				}
				called = v
				return nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Fatalf("err = %v, want ErrAllFailed", err)
				}
				if !errors.Is(err, errTest) {
					t.Errorf("err = %v, want it to wrap the last provider error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if called != tt.want {
				t.Errorf("called = %q, want %q", called, tt.want)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "primary", testConfig(2))
	fg.AddFallback("secondary", "secondary")

	primaryCalls := 0
	run := func() string {
		var called string
		if err := fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				primaryCalls++
				return errTest
			}
			called = v
			return nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return called
	}

	run()
	run()
	if got := fg.States()["primary"]; got != StateOpen {
		t.Fatalf("primary state = %v, want open", got)
	}
	if got := run(); got != "secondary" {
		t.Errorf("called = %q, want secondary", got)
	}
	if primaryCalls != 2 {
		t.Errorf("primary called %d times, want 2", primaryCalls)
	}
}

func TestExecuteWithResult_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(1, "one", testConfig(3))
	fg.AddFallback("two", 2)

	ctx, cancel := context.WithCancel(context.Background())
	var tried []int
	_, err := ExecuteWithResult(ctx, fg, func(v int) (string, error) {
		tried = append(tried, v)
		cancel()
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Error("cancellation must not be reported as ErrAllFailed")
	}
	if len(tried) != 1 {
		t.Errorf("tried = %v, want only the primary", tried)
	}
}

func TestExecuteWithResult_ReturnsResult(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(10, "ten", testConfig(3))
	fg.AddFallback("twenty", 20)

	got, err := ExecuteWithResult(context.Background(), fg, func(v int) (int, error) {
		if v == 10 {
			return 0, errTest
		}
		return v * 2, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 40 {
		t.Errorf("got %d, want 40", got)
	}
	if fg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", fg.Len())
	}
	if fg.Primary() != 10 {
		t.Errorf("Primary() = %d, want 10", fg.Primary())
	}
}
