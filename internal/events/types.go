// Package events defines the tagged, ordered event stream the orchestrator
// pushes to one request's client.
package events

// Event is implemented by every tagged wire payload this system emits.
type Event interface {
	EventType() string
}

type SessionStarted struct {
	SessionID string `json:"sessionId"`
	ProjectID string `json:"projectId,omitempty"`
}

func (SessionStarted) EventType() string { return "session_started" }

type PhaseEntered struct {
	Phase string `json:"phase"`
}

func (PhaseEntered) EventType() string { return "phase_entered" }

type PhaseProgress struct {
	Phase    string  `json:"phase"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
}

func (PhaseProgress) EventType() string { return "phase_progress" }

type PhaseBlockDone struct {
	Phase   string `json:"phase"`
	BlockID string `json:"blockId,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

func (PhaseBlockDone) EventType() string { return "phase_block_done" }

type ToolStart struct {
	CallID string `json:"callId,omitempty"`
	Tool   string `json:"tool"`
	Input  any    `json:"input,omitempty"`
}

func (ToolStart) EventType() string { return "tool_start" }

type ToolResult struct {
	CallID string `json:"callId,omitempty"`
	Tool   string `json:"tool"`
	Output any    `json:"output,omitempty"`
}

func (ToolResult) EventType() string { return "tool_result" }

type SubagentStart struct {
	Agent string `json:"agent"`
}

func (SubagentStart) EventType() string { return "subagent_start" }

type SubagentStop struct {
	Agent string `json:"agent"`
}

func (SubagentStop) EventType() string { return "subagent_stop" }

type Thinking struct {
	Content string `json:"content"`
}

func (Thinking) EventType() string { return "thinking" }

type Text struct {
	Content string `json:"content"`
}

func (Text) EventType() string { return "text" }

type Code struct {
	File    string `json:"file"`
	Content string `json:"content"`
}

func (Code) EventType() string { return "code" }

type IterationDiffPayload struct {
	AddedComponents        int    `json:"addedComponents"`
	RemovedComponents      int    `json:"removedComponents"`
	ChangedComponentValues int    `json:"changedComponentValues"`
	TraceCountDelta        int    `json:"traceCountDelta"`
	Summary                string `json:"summary"`
}

type IterationDiff struct {
	Attempt int                  `json:"attempt"`
	Diff    IterationDiffPayload `json:"diff"`
}

func (IterationDiff) EventType() string { return "iteration_diff" }

type RetryStart struct {
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"maxAttempts"`
}

func (RetryStart) EventType() string { return "retry_start" }

type RetryResult struct {
	Attempt         int    `json:"attempt"`
	Status          string `json:"status"` // clean | retrying | failed
	DiagnosticsCount int   `json:"diagnosticsCount"`
	Score           int    `json:"score"`
	Reason          string `json:"reason,omitempty"`
}

func (RetryResult) EventType() string { return "retry_result" }

type WireDiagnostic struct {
	Category  string `json:"category"`
	Message   string `json:"message"`
	Severity  int    `json:"severity"`
	Source    string `json:"source"`
	Family    string `json:"family"`
	Handling  string `json:"handling"`
}

type ValidationErrors struct {
	Attempt     int              `json:"attempt"`
	Diagnostics []WireDiagnostic `json:"diagnostics"`
}

func (ValidationErrors) EventType() string { return "validation_errors" }

type RepairPlanPayload struct {
	Attempt              int      `json:"attempt"`
	AutoFixableFamilies  []string `json:"autoFixableFamilies"`
	ShouldDemoteFamilies []string `json:"shouldDemoteFamilies"`
	MustRepairFamilies   []string `json:"mustRepairFamilies"`
	Strategy             string   `json:"strategy"`
}

type RepairPlan struct {
	Plan RepairPlanPayload `json:"plan"`
}

func (RepairPlan) EventType() string { return "repair_plan" }

type RepairResultPayload struct {
	Attempt        int      `json:"attempt"`
	BlockingBefore int      `json:"blockingBefore"`
	BlockingAfter  int      `json:"blockingAfter"`
	DemotedCount   int      `json:"demotedCount"`
	AutoFixedCount int      `json:"autoFixedCount"`
	Revalidated    bool     `json:"revalidated"`
	AppliedActions []string `json:"appliedActions"`
}

type RepairResult struct {
	Result RepairResultPayload `json:"result"`
}

func (RepairResult) EventType() string { return "repair_result" }

type ReviewFindingPayload struct {
	ID         string `json:"id"`
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	Message    string `json:"message,omitempty"`
	IsBlocking bool   `json:"isBlocking"`
}

type ReviewFinding struct {
	Finding ReviewFindingPayload `json:"finding"`
}

func (ReviewFinding) EventType() string { return "review_finding" }

type ReviewDecisionPayload struct {
	FindingID string `json:"findingId"`
	Decision  string `json:"decision"` // accept | dismiss
	Reason    string `json:"reason,omitempty"`
}

type ReviewDecision struct {
	Decision ReviewDecisionPayload `json:"decision"`
}

func (ReviewDecision) EventType() string { return "review_decision" }

type GatePassed struct {
	Phase   string `json:"phase"`
	Gate    string `json:"gate"`
	Message string `json:"message,omitempty"`
}

func (GatePassed) EventType() string { return "gate_passed" }

type GateBlocked struct {
	Phase  string `json:"phase"`
	Gate   string `json:"gate"`
	Reason string `json:"reason,omitempty"`
}

func (GateBlocked) EventType() string { return "gate_blocked" }

type TimingMetric struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"durationMs"`
	Attempt    int    `json:"attempt,omitempty"`
}

func (TimingMetric) EventType() string { return "timing_metric" }

type FinalSummaryPayload struct {
	DesignIntent               string   `json:"designIntent"`
	ConfirmedRequirementTitles []string `json:"confirmedRequirementTitles"`
	UnresolvedBlockers         []string `json:"unresolvedBlockers"`
	ManufacturingReadiness     int      `json:"manufacturingReadinessScore"`
	DiagnosticsCount           int      `json:"diagnosticsCount"`
	AttemptsUsed               int      `json:"attemptsUsed"`
}

type FinalSummary struct {
	Summary FinalSummaryPayload `json:"summary"`
}

func (FinalSummary) EventType() string { return "final_summary" }

type Ping struct{}

func (Ping) EventType() string { return "ping" }

type DoneUsage struct {
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`
}

type Done struct {
	Usage DoneUsage `json:"usage"`
}

func (Done) EventType() string { return "done" }

type Error struct {
	Message string `json:"message"`
}

func (Error) EventType() string { return "error" }
