package diffutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDetectsAddedComponent(t *testing.T) {
	old := `<component name="R1" pcbX="10" pcbY="10"/>`
	next := old + "\n" + `<component name="R2" pcbX="20" pcbY="20"/>`

	s := Compute(old, next)
	require.Equal(t, 1, s.AddedComponents)
	require.Equal(t, 0, s.RemovedComponents)
}

func TestComputeDetectsChangedValue(t *testing.T) {
	old := `<component name="R1" pcbX="10" pcbY="10" value="1k"/>`
	next := `<component name="R1" pcbX="10" pcbY="10" value="10k"/>`

	s := Compute(old, next)
	require.Equal(t, 1, s.ChangedComponentValues)
	require.Equal(t, 0, s.AddedComponents)
	require.Equal(t, 0, s.RemovedComponents)
}

func TestComputeTraceCountDelta(t *testing.T) {
	old := `<trace from="a" to="b"/>`
	next := old + "\n" + `<trace from="c" to="d"/>` + "\n" + `<trace from="e" to="f"/>`

	s := Compute(old, next)
	require.Equal(t, 2, s.TraceCountDelta)
}

func TestComputeIsCached(t *testing.T) {
	e := NewEngine()
	old, next := "a\n", "a\nb\n"
	first := e.Compute(old, next)
	second := e.Compute(old, next)
	require.Equal(t, first, second)
}
