package connection

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, Multiplier: 2, MaxAttempts: 5}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for attempt, w := range want {
		if got := b.Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoff_DelayCap(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}

	if got := b.Delay(2); got != 4*time.Second {
		t.Errorf("Delay(2) = %v, want 4s", got)
	}
	if got := b.Delay(3); got != 5*time.Second {
		t.Errorf("Delay(3) = %v, want cap 5s", got)
	}
	if got := b.Delay(500); got != 5*time.Second {
		t.Errorf("Delay(500) = %v, want cap 5s", got)
	}
}

func TestBackoff_DelayEdgeCases(t *testing.T) {
	b := Backoff{BaseDelay: 100 * time.Millisecond}

	if got := b.Delay(-1); got != 100*time.Millisecond {
		t.Errorf("Delay(-1) = %v, want base", got)
	}
	// Multiplier 0 behaves as a constant delay.
	if got := b.Delay(4); got != 100*time.Millisecond {
		t.Errorf("Delay(4) with zero multiplier = %v, want base", got)
	}

	huge := Backoff{BaseDelay: time.Hour, Multiplier: 10}
	if got := huge.Delay(100); got <= 0 {
		t.Errorf("Delay overflow = %v, want positive", got)
	}
}

func TestBackoff_Exhausted(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		failures int
		want     bool
	}{
		{"first failure", 5, 1, false},
		{"fourth failure", 5, 4, false},
		{"fifth failure", 5, 5, true},
		{"past limit", 5, 9, true},
		{"unlimited", 0, 1000, false},
		{"single attempt", 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Backoff{BaseDelay: time.Second, Multiplier: 2, MaxAttempts: tt.max}
			if got := b.Exhausted(tt.failures); got != tt.want {
				t.Errorf("Exhausted(%d) = %v, want %v", tt.failures, got, tt.want)
			}
		})
	}
}

func TestNewBackoff_Defaults(t *testing.T) {
	b := NewBackoff(DefaultManagerConfig())
	if b.BaseDelay != time.Second || b.Multiplier != 2 || b.MaxAttempts != 5 || b.MaxDelay != 0 {
		t.Errorf("NewBackoff(defaults) = %+v", b)
	}
}
