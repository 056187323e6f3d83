// Package perception defines the generation-model collaborator contracts
// and one concrete HTTP-based adapter. The model itself is out of scope
// (see spec); only the shapes the orchestrator depends on live here.
package perception

import "context"

// LLMClient is a simple blocking model call, used for the architecture
// collaborator and the adaptive-guardrails advisory fetch.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StreamEventKind tags one event on a model stream.
type StreamEventKind string

const (
	StreamTextDelta     StreamEventKind = "text_delta"
	StreamToolEvent     StreamEventKind = "tool_event"
	StreamSubagentEvent StreamEventKind = "subagent_event"
	StreamFinalResult   StreamEventKind = "final_result"
)

// ToolEvent mirrors one tool_start/tool_result pair from the model.
type ToolEvent struct {
	Phase  string // "start" | "result"
	CallID string
	Tool   string
	Input  any
	Output any
}

// SubagentEvent mirrors one subagent_start/subagent_stop pair.
type SubagentEvent struct {
	Phase string // "start" | "stop"
	Agent string
}

// FinalResult carries the completed stream's cost.
type FinalResult struct {
	CostUSD float64
}

// StreamEvent is one item on a model stream; exactly one of the payload
// fields is set, matching Kind.
type StreamEvent struct {
	Kind      StreamEventKind
	TextDelta string
	Tool      *ToolEvent
	Subagent  *SubagentEvent
	Final     *FinalResult
	Err       error
}

// ModelStream drives the external generation model and reports deltas,
// tool/subagent activity, and a final cost, or an error, on a channel.
// Cancelling ctx must abort the stream promptly.
type ModelStream interface {
	Stream(ctx context.Context, prompt string) (<-chan StreamEvent, error)
}

// ArchitectureBlockSuggestion is one block the architecture collaborator
// proposes.
type ArchitectureBlockSuggestion struct {
	ID     string
	Label  string
	Status string
}

// ArchitectureModel derives an initial architecture from a prompt.
type ArchitectureModel interface {
	DeriveArchitecture(ctx context.Context, prompt string) ([]ArchitectureBlockSuggestion, error)
}

// AdaptiveGuardrails fetches the current persistent guardrails advisory
// text. It is an advisory-only collaborator: callers treat any error the
// same as an empty string rather than a hard failure.
type AdaptiveGuardrails interface {
	Fetch(ctx context.Context) (string, error)
}
