// Package validate defines the compile+validate external collaborator
// contract. The actual compiler/validator lives outside this system; only
// the shape the orchestrator and attempt runner depend on lives here.
package validate

import (
	"context"

	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
)

// Report is what one compile+validate pass returns.
type Report struct {
	CompileFailed bool
	Findings      []diagnostics.RawFinding
}

// Checker compiles generated source and runs the connectivity/BOM/DRC
// checks against it. Cancelling ctx must abort promptly; callers apply
// their own timeout (see spec's COMPILE_VALIDATE_TIMEOUT_MS) and treat a
// context.DeadlineExceeded as a synthesized timeout diagnostic rather than
// a hard failure.
type Checker interface {
	Check(ctx context.Context, code string) (Report, error)
}
