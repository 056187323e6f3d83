package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferFamily(t *testing.T) {
	cases := []struct {
		name     string
		category string
		message  string
		want     string
	}{
		{"unconnected pin", "KICAD_PIN", "Unconnected pin U3.VIN", "kicad_unconnected_pin"},
		{"floating label", "kicad_net", "Floating label NET1", "floating_label"},
		{"off grid hyphen", "layout", "Component is off-grid by 0.1mm", "off_grid"},
		{"off grid underscore", "layout", "off_grid placement", "off_grid"},
		{"bom", "kicad_bom", "BOM property missing", "kicad_bom_property"},
		{"pin conflict low signal", "electrical", "pin conflict: unspecified connected to unspecified", "pin_conflict_low_signal"},
		{"pin conflict warning", "electrical", "pin conflict on U2", "pin_conflict_warning"},
		{"duplicate reference", "schema", "Duplicate reference GND", "duplicate_reference"},
		{"autorouter alias", "pcb_autorouting_error", "router gave up", "pcb_autorouter_exhaustion"},
		{"fallback to category", "custom_rule", "something else entirely", "custom_rule"},
		{"fallback to validation", "", "no category at all", "validation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, InferFamily(tc.category, tc.message))
		})
	}
}

func TestClassifyHandling(t *testing.T) {
	h, sev := ClassifyHandling("pin_conflict_low_signal", "x", 9)
	require.Equal(t, HandlingShouldDemote, h)
	require.Equal(t, 5, sev)

	h, _ = ClassifyHandling("pin_conflict_warning", "x", 3)
	require.Equal(t, HandlingMustRepair, h)

	h, _ = ClassifyHandling("off_grid", "pad is off grid", 3)
	require.Equal(t, HandlingAutoFixable, h)

	h, _ = ClassifyHandling("off_grid", "pad must connect at junction", 3)
	require.Equal(t, HandlingMustRepair, h)

	h, _ = ClassifyHandling("kicad_unconnected_pin", "U3 pin VIN is unconnected", 3)
	require.Equal(t, HandlingMustRepair, h)

	h, _ = ClassifyHandling("kicad_unconnected_pin", "R12 pin 3 is unconnected", 3)
	require.Equal(t, HandlingAutoFixable, h)

	h, _ = ClassifyHandling("duplicate_reference", "Duplicate reference GND", 4)
	require.Equal(t, HandlingShouldDemote, h)

	h, _ = ClassifyHandling("duplicate_reference", "Duplicate reference U4", 4)
	require.Equal(t, HandlingMustRepair, h)

	h, _ = ClassifyHandling("pcb_trace_error", "trace_error shorted", 3)
	require.Equal(t, HandlingMustRepair, h)

	h, _ = ClassifyHandling("mystery", "nothing special", 9)
	require.Equal(t, HandlingMustRepair, h)

	h, _ = ClassifyHandling("mystery", "nothing special", 3)
	require.Equal(t, HandlingShouldDemote, h)
}

func TestSignatureIdempotent(t *testing.T) {
	msg := "duplicate id 123e4567-e89b-12d3-a456-426614174000  found   twice"
	once := NormalizeMessage(msg)
	twice := NormalizeMessage(once)
	require.Equal(t, once, twice)
}

func TestDedupIsClosure(t *testing.T) {
	diags := []Diagnostic{
		{Signature: "a", Severity: 3},
		{Signature: "a", Severity: 7},
		{Signature: "b", Severity: 2},
	}
	once := Dedup(diags)
	twice := Dedup(once)
	require.Equal(t, once, twice)
	require.Len(t, once, 2)
	require.Equal(t, 7, once[0].Severity)
}

func TestScore(t *testing.T) {
	diags := []Diagnostic{{Severity: 3}, {Severity: 5}}
	require.Equal(t, 800, Score(diags, false))
	require.Equal(t, 5800, Score(diags, true))
}

func TestIsBlocking(t *testing.T) {
	d := Diagnostic{Handling: HandlingMustRepair, Category: "pcb_trace_error", Severity: 2}
	require.True(t, IsBlocking(d))

	d = Diagnostic{Handling: HandlingMustRepair, Category: "misc", Severity: 9}
	require.True(t, IsBlocking(d))

	d = Diagnostic{Handling: HandlingMustRepair, Category: "via_clearance_issue", Severity: 7}
	require.True(t, IsBlocking(d))

	d = Diagnostic{Handling: HandlingShouldDemote, Category: "pcb_trace_error", Severity: 9}
	require.False(t, IsBlocking(d))
}

func TestFocusedCaps(t *testing.T) {
	var diags []Diagnostic
	for i := 0; i < 20; i++ {
		diags = append(diags, Diagnostic{
			Signature: string(rune('a' + i)),
			Handling:  HandlingMustRepair,
			Category:  "compile",
			Severity:  i,
		})
	}
	out := Focused(diags)
	require.Len(t, out, 14)
}
