package connection

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("Sequence", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			500 * time.Millisecond,
			500 * time.Millisecond,
		}
		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{})
		if b.Current() != DefaultInitialDelay {
			t.Errorf("Current() = %v, want %v", b.Current(), DefaultInitialDelay)
		}

		var last time.Duration
		for range 20 {
			last = b.Next()
		}
		if last != DefaultMaxDelay {
			t.Errorf("delay after 20 attempts = %v, want %v", last, DefaultMaxDelay)
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: time.Second, Max: time.Second, Jitter: 0.25})

		allSame := true
		first := b.Next()
		for range 20 {
			d := b.Next()
			if d < time.Second || d > 1250*time.Millisecond {
				t.Errorf("delay %v out of range [1s, 1.25s]", d)
			}
			if d != first {
				allSame = false
			}
		}
		if allSame {
			t.Error("all jittered delays are identical")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff(DefaultBackoffConfig())
		for range 5 {
			b.Next()
		}
		if b.Current() <= DefaultInitialDelay {
			t.Error("backoff should have grown")
		}

		b.Reset()
		if b.Current() != DefaultInitialDelay {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), DefaultInitialDelay)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("MaxBelowInitial", func(t *testing.T) {
		b := NewBackoff(BackoffConfig{Initial: time.Minute, Max: time.Second})
		if got := b.Next(); got != time.Minute {
			t.Errorf("first delay = %v, want 1m", got)
		}
	})
}

func TestBackoffWait(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond})
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	slow := NewBackoff(BackoffConfig{Initial: time.Hour, Max: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := slow.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() on cancelled context = %v, want context.Canceled", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{StateReconnecting, "RECONNECTING"},
		{StateClosed, "CLOSED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
