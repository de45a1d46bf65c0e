package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsOnFinalAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, Capped(time.Millisecond, 3), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success on attempt 3, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	last := errors.New("still broken")
	err := Do(context.Background(), 3, Capped(time.Millisecond, 3), func(context.Context) error {
		calls++
		if calls == 3 {
			return last
		}
		return errors.New("transient")
	})

	if !errors.Is(err, last) {
		t.Fatalf("expected last error to propagate, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", calls)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, 10, Capped(time.Hour, 3), func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the cancelled wait to stop further attempts, got %d calls", calls)
	}
}

func TestCappedBackoffCeiling(t *testing.T) {
	b := Capped(5*time.Second, 3)

	cases := map[int]time.Duration{
		1: 5 * time.Second,
		2: 10 * time.Second,
		3: 15 * time.Second,
		7: 15 * time.Second,
	}
	for attempt, want := range cases {
		if got := b(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
}

func TestCappedScaledBackoff(t *testing.T) {
	b := CappedScaled(3*time.Second, 3)

	if got := b(2); got != 12*time.Second {
		t.Fatalf("attempt 2: expected 12s, got %s", got)
	}
}
