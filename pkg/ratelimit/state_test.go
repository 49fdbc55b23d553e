package ratelimit

import (
	"testing"
	"time"
)

func TestCooldownStateActive(t *testing.T) {
	tests := []struct {
		name  string
		state CooldownState
		want  bool
	}{
		{
			name:  "window in the future",
			state: CooldownState{CooldownUntil: time.Now().Add(5 * time.Second)},
			want:  true,
		},
		{
			name:  "window passed",
			state: CooldownState{CooldownUntil: time.Now().Add(-5 * time.Second)},
			want:  false,
		},
		{
			name:  "zero state",
			state: CooldownState{},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCooldownStateRemaining(t *testing.T) {
	state := CooldownState{CooldownUntil: time.Now().Add(3 * time.Second)}
	if r := state.Remaining(); r <= 0 || r > 3*time.Second {
		t.Errorf("Remaining() = %v, want within (0, 3s]", r)
	}

	passed := CooldownState{CooldownUntil: time.Now().Add(-time.Second)}
	if r := passed.Remaining(); r != 0 {
		t.Errorf("Remaining() = %v, want 0 for passed window", r)
	}
}

func TestCooldownStateIsStale(t *testing.T) {
	state := CooldownState{LastUpdate: time.Now().Add(-10 * time.Minute)}
	if !state.IsStale(5 * time.Minute) {
		t.Error("state updated 10 minutes ago should be stale at 5m max age")
	}
	if state.IsStale(time.Hour) {
		t.Error("state updated 10 minutes ago should not be stale at 1h max age")
	}
}
