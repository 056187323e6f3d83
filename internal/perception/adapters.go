package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codenerd-labs/circuitforge/internal/config"
)

// LLMArchitectureModel derives an architecture from a plain LLMClient,
// asking for a JSON array of blocks and parsing it defensively — any
// malformed response degrades to an error rather than a partial parse, so
// the orchestrator's heuristic fallback takes over.
type LLMArchitectureModel struct {
	Client LLMClient
}

const architectureSystemPrompt = `You design printed circuit board architectures. Given a design prompt, reply with ONLY a JSON array of blocks, no prose: [{"id":"...","label":"...","status":"open"}]. Use short, lowercase, hyphenated ids. Keep the list to 3-6 blocks.`

func (a LLMArchitectureModel) DeriveArchitecture(ctx context.Context, prompt string) ([]ArchitectureBlockSuggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, config.FastModelTimeouts().HTTPClientTimeout)
	defer cancel()

	raw, err := a.Client.CompleteWithSystem(ctx, architectureSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("perception: architecture model call: %w", err)
	}

	raw = strings.TrimSpace(raw)
	start, end := strings.IndexByte(raw, '['), strings.LastIndexByte(raw, ']')
	if start < 0 || end < start {
		return nil, fmt.Errorf("perception: architecture response had no JSON array")
	}

	var suggestions []ArchitectureBlockSuggestion
	if err := json.Unmarshal([]byte(raw[start:end+1]), &suggestions); err != nil {
		return nil, fmt.Errorf("perception: decode architecture response: %w", err)
	}
	return suggestions, nil
}

// LLMAdaptiveGuardrails fetches a one-shot persistent-guardrails advisory
// from a plain LLMClient. Any error is surfaced to the caller, which treats
// it as "no advisory available" rather than a hard failure.
type LLMAdaptiveGuardrails struct {
	Client LLMClient
}

const guardrailsSystemPrompt = `Reply with a short bullet list of the circuit-design pitfalls most worth watching for right now, based on recently seen repair patterns. No preamble.`

func (a LLMAdaptiveGuardrails) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.FastModelTimeouts().HTTPClientTimeout)
	defer cancel()

	text, err := a.Client.CompleteWithSystem(ctx, guardrailsSystemPrompt, "What should this attempt watch out for?")
	if err != nil {
		return "", fmt.Errorf("perception: guardrails advisory call: %w", err)
	}
	return strings.TrimSpace(text), nil
}
