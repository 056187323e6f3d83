// Package attempt drives one attempt: compose the prompt, stream the
// generation model, extract generated source, and compile+validate it
// under a composed deadline. It never decides retries or strategies —
// that is the orchestrator's job.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
	"github.com/codenerd-labs/circuitforge/internal/events"
	"github.com/codenerd-labs/circuitforge/internal/logging"
	"github.com/codenerd-labs/circuitforge/internal/perception"
	"github.com/codenerd-labs/circuitforge/internal/validate"
)

const defaultCompileValidateTimeout = 240 * time.Second

// Input is everything one attempt needs from the orchestrator.
type Input struct {
	Prompt                  string
	Stream                  perception.ModelStream
	Checker                 validate.Checker
	Emitter                 *events.Emitter
	CompileValidateTimeout  time.Duration
	SpeculativeCompileEnabled bool
}

// Result is what the orchestrator consumes once an attempt finishes. The
// runner never classifies diagnostics — Findings is raw, straight from
// either the external checker or a synthesized timeout.
type Result struct {
	Text          string
	ExtractedCode string
	CostUSD       float64
	CompileFailed bool
	Findings      []diagnostics.RawFinding
}

var fenceRe = regexp.MustCompile("```tsx\\n([\\s\\S]*?)```")

// extractCode returns the last fenced ```tsx block in text, mirroring the
// fenced-block extraction idiom this system uses elsewhere for pulling a
// single artifact out of free-form model output.
func extractCode(text string) (string, bool) {
	matches := fenceRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}

// isAbortLike reports whether err represents a cancellation/deadline
// signal rather than a genuine failure worth surfacing as an error event.
func isAbortLike(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Run executes one attempt end to end.
func Run(ctx context.Context, in Input) Result {
	log := logging.Get(logging.CategoryAttempt)

	streamCh, err := in.Stream.Stream(ctx, in.Prompt)
	if err != nil {
		if isAbortLike(err) {
			return timeoutResult("", attemptTimeoutFinding())
		}
		return timeoutResult("", attemptTimeoutFinding())
	}

	var textBuilder strings.Builder
	var cost float64
	var speculative *speculativeCompile

	for ev := range streamCh {
		switch ev.Kind {
		case perception.StreamTextDelta:
			textBuilder.WriteString(ev.TextDelta)
			if in.SpeculativeCompileEnabled && speculative == nil {
				if code, ok := extractCode(textBuilder.String()); ok {
					speculative = startSpeculativeCompile(ctx, in.Checker, code, in.compileTimeout())
				}
			}
		case perception.StreamToolEvent:
			emitToolEvent(in.Emitter, ev.Tool)
		case perception.StreamSubagentEvent:
			emitSubagentEvent(in.Emitter, ev.Subagent)
		case perception.StreamFinalResult:
			if ev.Final != nil {
				cost = ev.Final.CostUSD
			}
		}
		if ev.Err != nil {
			err = ev.Err
		}
	}

	text := textBuilder.String()
	code, ok := extractCode(text)

	if !ok {
		log.Info("attempt produced no code block (err=%v)", err)
		return timeoutResult(text, attemptTimeoutFinding())
	}

	var report validate.Report
	var checkErr error
	if speculative != nil && speculative.code == code {
		report, checkErr = speculative.wait()
	} else {
		if speculative != nil {
			speculative.cancel()
		}
		report, checkErr = runCheck(ctx, in.Checker, code, in.compileTimeout())
	}

	if checkErr != nil {
		if isAbortLike(checkErr) {
			return Result{
				Text:          text,
				ExtractedCode: code,
				CostUSD:       cost,
				CompileFailed: true,
				Findings:      []diagnostics.RawFinding{compileValidateTimeoutFinding()},
			}
		}
	}

	return Result{
		Text:          text,
		ExtractedCode: code,
		CostUSD:       cost,
		CompileFailed: report.CompileFailed,
		Findings:      report.Findings,
	}
}

func (in Input) compileTimeout() time.Duration {
	if in.CompileValidateTimeout > 0 {
		return in.CompileValidateTimeout
	}
	return defaultCompileValidateTimeout
}

func runCheck(ctx context.Context, checker validate.Checker, code string, timeout time.Duration) (validate.Report, error) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return checker.Check(checkCtx, code)
}

type speculativeCompile struct {
	code   string
	cancel context.CancelFunc
	group  *errgroup.Group
	report validate.Report
	err    error
}

func startSpeculativeCompile(ctx context.Context, checker validate.Checker, code string, timeout time.Duration) *speculativeCompile {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	g, gctx := errgroup.WithContext(checkCtx)
	s := &speculativeCompile{code: code, cancel: cancel, group: g}
	g.Go(func() error {
		report, err := checker.Check(gctx, code)
		s.report = report
		s.err = err
		return err
	})
	return s
}

func (s *speculativeCompile) wait() (validate.Report, error) {
	defer s.cancel()
	_ = s.group.Wait()
	return s.report, s.err
}

func attemptTimeoutFinding() diagnostics.RawFinding {
	return diagnostics.RawFinding{
		Category: "attempt_timeout",
		Message:  "model call aborted or timed out before a code block was produced",
		Severity: 9,
		Source:   diagnostics.SourceTscircuit,
	}
}

func compileValidateTimeoutFinding() diagnostics.RawFinding {
	return diagnostics.RawFinding{
		Category: "compile_validate_timeout",
		Message:  "compile+validate did not complete within the configured deadline",
		Severity: 9,
		Source:   diagnostics.SourceTscircuit,
	}
}

func timeoutResult(text string, finding diagnostics.RawFinding) Result {
	return Result{
		Text:          text,
		CompileFailed: true,
		Findings:      []diagnostics.RawFinding{finding},
	}
}

func emitToolEvent(e *events.Emitter, tool *perception.ToolEvent) {
	if e == nil || tool == nil {
		return
	}
	switch tool.Phase {
	case "start":
		e.Emit(events.ToolStart{CallID: tool.CallID, Tool: tool.Tool, Input: tool.Input})
	case "result":
		e.Emit(events.ToolResult{CallID: tool.CallID, Tool: tool.Tool, Output: tool.Output})
	}
}

func emitSubagentEvent(e *events.Emitter, sub *perception.SubagentEvent) {
	if e == nil || sub == nil {
		return
	}
	switch sub.Phase {
	case "start":
		e.Emit(events.SubagentStart{Agent: sub.Agent})
	case "stop":
		e.Emit(events.SubagentStop{Agent: sub.Agent})
	}
}

// ComposePrompt builds the deterministic repair prompt for a non-initial
// attempt from the previous code and its diagnostics, one "- [family]
// message" line per diagnostic.
func ComposePrompt(basePrompt string, previousCode string, findings []diagnostics.Diagnostic, adaptiveGuardrails string) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	if previousCode != "" {
		sb.WriteString("\n\nPrevious attempt:\n```tsx\n")
		sb.WriteString(previousCode)
		sb.WriteString("\n```\n")
	}
	if len(findings) > 0 {
		sb.WriteString("\nFix the following issues:\n")
		for _, f := range findings {
			sb.WriteString(fmt.Sprintf("- [%s] %s\n", f.Family, f.Message))
		}
	}
	if adaptiveGuardrails != "" {
		sb.WriteString("\nAdditional guardrails:\n")
		sb.WriteString(adaptiveGuardrails)
	}
	return sb.String()
}
