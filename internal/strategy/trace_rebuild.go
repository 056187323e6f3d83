package strategy

import (
	"fmt"
	"strings"

	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
)

const familyTraceRebuildInsufficientIntent = "source_trace_rebuild_insufficient_intent"

// RebuildTraces discards every existing <trace> element and regenerates a
// star topology per net from explicit <connect> intent bindings: for a net
// with endpoints E0..En-1 it emits a trace from E0 to each other endpoint,
// plus one trace tying E0 to the net itself.
//
// When no net has at least two endpoints, the input is returned unchanged
// along with a raw finding for source_trace_rebuild_insufficient_intent.
func RebuildTraces(code string) (string, []string, *diagnostics.RawFinding) {
	model := parseConnectivity(code)

	var rebuilt []string
	for _, net := range model.netOrder {
		endpoints := model.netEndpoints[net]
		if len(endpoints) < 2 {
			continue
		}
		e0 := endpoints[0]
		for _, ei := range endpoints[1:] {
			rebuilt = append(rebuilt, fmt.Sprintf(`<trace from="%s" to="%s"/>`, e0, ei))
		}
		rebuilt = append(rebuilt, fmt.Sprintf(`<trace from="%s" to="net.%s"/>`, e0, net))
	}

	if len(rebuilt) == 0 {
		return code, nil, &diagnostics.RawFinding{
			Category: familyTraceRebuildInsufficientIntent,
			Message:  "no net had at least two connect-intent endpoints to rebuild traces from",
			Severity: 5,
		}
	}

	withoutTraces := traceTagRe.ReplaceAllString(code, "")
	newCode := strings.TrimRight(withoutTraces, "\n") + "\n" + strings.Join(rebuilt, "\n") + "\n"

	return newCode, []string{fmt.Sprintf("rebuild_traces:%d", len(rebuilt))}, nil
}
