// Package httpapi exposes the design-repair orchestrator over a single SSE
// endpoint, mirroring the plain net/http server idiom this codebase's
// teacher uses for its local OAuth callback listener, with the event
// framing reversed from the teacher's SSE client into an SSE writer.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codenerd-labs/circuitforge/internal/events"
	"github.com/codenerd-labs/circuitforge/internal/logging"
)

// ReviewDecisionInput is one client-supplied decision on a prior review
// finding.
type ReviewDecisionInput struct {
	FindingID string `json:"findingId"`
	Decision  string `json:"decision"` // accept | dismiss
	Reason    string `json:"reason,omitempty"`
}

// DesignRequest is the POST /v1/design request body.
type DesignRequest struct {
	Prompt          string                `json:"prompt"`
	Phase           string                `json:"phase,omitempty"`
	PreviousCode    string                `json:"previousCode,omitempty"`
	ProjectID       string                `json:"projectId,omitempty"`
	SessionID       string                `json:"sessionId,omitempty"`
	ReviewDecisions []ReviewDecisionInput `json:"reviewDecisions,omitempty"`
}

// Orchestrator is the single method the HTTP layer depends on: run one
// design/repair session, pushing every event to emitter, and return when
// the session is done (or ctx is cancelled).
type Orchestrator interface {
	Run(ctx context.Context, req DesignRequest, emitter *events.Emitter)
}

// Server serves the SSE design endpoint. modelAPIKeyPresent reflects
// whether the generation model's credential is configured; the endpoint
// refuses with 500 before ever starting a stream if it isn't, since no
// session on this server could ever complete.
type Server struct {
	orchestrator       Orchestrator
	modelAPIKeyPresent bool
	pulse              time.Duration
}

func NewServer(orchestrator Orchestrator, modelAPIKeyPresent bool, pulse time.Duration) *Server {
	return &Server{orchestrator: orchestrator, modelAPIKeyPresent: modelAPIKeyPresent, pulse: pulse}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/design", s.handleDesign)
	return mux
}

type requestBody struct {
	Prompt          json.RawMessage       `json:"prompt"`
	Phase           string                `json:"phase,omitempty"`
	PreviousCode    string                `json:"previousCode,omitempty"`
	ProjectID       string                `json:"projectId,omitempty"`
	SessionID       string                `json:"sessionId,omitempty"`
	ReviewDecisions []ReviewDecisionInput `json:"reviewDecisions,omitempty"`
}

func (s *Server) handleDesign(w http.ResponseWriter, r *http.Request) {
	log := logging.Get(logging.CategoryHTTP)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	var prompt string
	if len(body.Prompt) > 0 {
		if err := json.Unmarshal(body.Prompt, &prompt); err != nil {
			http.Error(w, "prompt must be a string", http.StatusBadRequest)
			return
		}
	}
	if prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	if !s.modelAPIKeyPresent {
		log.Error("model api key is not configured")
		http.Error(w, "server misconfigured: model api key is not configured", http.StatusInternalServerError)
		return
	}

	req := DesignRequest{
		Prompt:          prompt,
		Phase:           body.Phase,
		PreviousCode:    body.PreviousCode,
		ProjectID:       body.ProjectID,
		SessionID:       body.SessionID,
		ReviewDecisions: body.ReviewDecisions,
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	emitter := events.NewEmitter(64)
	go emitter.RunHeartbeat(ctx, s.pulse)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.orchestrator.Run(ctx, req, emitter)
		emitter.Close()
	}()

	for ev := range emitter.Events() {
		writeEvent(w, ev)
		flusher.Flush()
	}

	<-done
	log.Info("design session finished: projectId=%s", req.ProjectID)
}

func writeEvent(w http.ResponseWriter, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", ev.EventType())
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
