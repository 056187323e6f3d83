package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebuildTracesStarTopology(t *testing.T) {
	code := `<connect pin=".U1 > .VIN" net="net.PWR"/><connect pin=".U2 > .VIN" net="net.PWR"/><connect pin=".U3 > .VIN" net="net.PWR"/><trace from="a" to="b"/>`
	out, actions, finding := RebuildTraces(code)
	require.Nil(t, finding)
	require.Len(t, actions, 1)
	require.NotContains(t, out, `from="a" to="b"`)
	require.Contains(t, out, `<trace from=".U1 > .VIN" to=".U2 > .VIN"/>`)
	require.Contains(t, out, `<trace from=".U1 > .VIN" to=".U3 > .VIN"/>`)
	require.Contains(t, out, `<trace from=".U1 > .VIN" to="net.PWR"/>`)
}

func TestRebuildTracesInsufficientIntent(t *testing.T) {
	code := `<connect pin=".U1 > .VIN" net="net.PWR"/>`
	out, actions, finding := RebuildTraces(code)
	require.Equal(t, code, out)
	require.Empty(t, actions)
	require.NotNil(t, finding)
	require.Equal(t, familyTraceRebuildInsufficientIntent, finding.Category)
}

func TestTargetedCongestionRelief(t *testing.T) {
	code := `<board width="100" height="80"/><component name="U1" pcbX="90" pcbY="70"/>`
	out, actions := TargetedCongestionRelief(code, CongestionReliefParams{
		BoardScale:          1,
		MaxBoardGrowthPct:   20,
		ComponentShiftMm:    3,
		ComponentShiftCapMm: 10,
	})
	require.Contains(t, out, `<board width="120" height="96"/>`)
	require.Len(t, actions, 3)
}

func TestStructuralLayoutSpreadRoundsWidth(t *testing.T) {
	code := `<board width="100" height="50"/>`
	out, actions := StructuralLayoutSpread(code)
	require.Contains(t, out, `<board width="120" height="60"/>`)
	require.Len(t, actions, 1)
}
