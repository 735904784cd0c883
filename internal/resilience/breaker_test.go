package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mirrorcast/mirrorcast/internal/resilience"
)

var errBackend = errors.New("backend down")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 3})

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: err = %v, want errBackend", i, err)
		}
	}
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 2})

	b.Do(func() error { return errBackend })
	b.Do(func() error { return nil })
	b.Do(func() error { return errBackend })

	if got := b.State(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		Cooldown:    10 * time.Millisecond,
	})

	b.Do(func() error { return errBackend })
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != resilience.StateHalfOpen {
		t.Fatalf("state = %v, want half-open", got)
	}

	// Failed probe re-opens.
	if err := b.Do(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe err = %v", err)
	}
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}

	// Successful probe closes.
	time.Sleep(20 * time.Millisecond)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if got := b.State(); got != resilience.StateClosed {
		t.Fatalf("state after good probe = %v, want closed", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := resilience.NewBreaker(resilience.BreakerConfig{Name: "test", MaxFailures: 1})

	b.Do(func() error { return errBackend })
	b.Reset()
	if got := b.State(); got != resilience.StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("err after reset = %v", err)
	}
}
