package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateReady, true},
		{StateUninitialized, StateDegraded, true},
		{StateUninitialized, StateStopped, true},
		{StateReady, StateDegraded, true},
		{StateReady, StateStopped, true},
		{StateReady, StateUninitialized, false},
		{StateDegraded, StateReady, true},
		{StateDegraded, StateDegraded, true},
		{StateDegraded, StateStopped, true},
		{StateStopped, StateStopped, true},
		{StateStopped, StateReady, false},
		{StateStopped, StateDegraded, false},
		{StateStopped, StateUninitialized, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}

func TestStoppedIsTerminal(t *testing.T) {
	for _, to := range []State{StateUninitialized, StateReady, StateDegraded} {
		assert.False(t, canTransition(StateStopped, to), "stopped -> %s", to)
	}
}
