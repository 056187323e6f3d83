package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectPhase(t *testing.T) {
	cases := []struct {
		name       string
		explicit   string
		prompt     string
		hasHistory bool
		want       Phase
	}{
		{"explicit override wins", "export", "please review the bom", true, PhaseExport},
		{"review keyword", "", "can you review this design", true, PhaseReview},
		{"no history defaults to requirements", "", "add a buck converter", false, PhaseRequirements},
		{"architecture keyword", "", "propose a block diagram", true, PhaseArchitecture},
		{"export keyword", "", "export the gerbers for fab", true, PhaseExport},
		{"review-domain keyword", "", "confirm the bom supply chain is solid", true, PhaseReview},
		{"default to implementation", "", "add a second LED", true, PhaseImplementation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectPhase(tc.explicit, tc.prompt, tc.hasHistory)
			require.Equal(t, tc.want, got)
		})
	}
}
