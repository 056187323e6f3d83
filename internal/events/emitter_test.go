package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitPreservesOrder(t *testing.T) {
	e := NewEmitter(8)
	e.Emit(PhaseEntered{Phase: "implementation"})
	e.Emit(RetryStart{Attempt: 1, MaxAttempts: 3})
	e.Emit(Done{})
	e.Close()

	var types []string
	for ev := range e.Events() {
		types = append(types, ev.EventType())
	}
	require.Equal(t, []string{"phase_entered", "retry_start", "done"}, types)
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	e := NewEmitter(1)
	e.Close()
	require.NotPanics(t, func() { e.Emit(Ping{}) })
}
