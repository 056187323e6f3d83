package config

import "time"

// ModelTimeouts centralizes every timeout the attempt runner and perception
// client apply to a generation-model call. The shortest timeout in a call
// chain wins, so these are kept consistent with each other rather than set
// independently at each call site.
type ModelTimeouts struct {
	HTTPClientTimeout time.Duration
	StreamingTimeout  time.Duration
	AttemptTimeout    time.Duration
	RetryBackoffBase  time.Duration
	RetryBackoffMax   time.Duration
	MaxRetries        int
}

// DefaultModelTimeouts suits a normal repair attempt against a generation
// model with a multi-minute response time.
func DefaultModelTimeouts() ModelTimeouts {
	return ModelTimeouts{
		HTTPClientTimeout: 5 * time.Minute,
		StreamingTimeout:  6 * time.Minute,
		AttemptTimeout:    6 * time.Minute,
		RetryBackoffBase:  1 * time.Second,
		RetryBackoffMax:   10 * time.Second,
		MaxRetries:        2,
	}
}

// FastModelTimeouts suits the adaptive-guardrails advisory fetch and the
// architecture-derivation call, which are single short completions.
func FastModelTimeouts() ModelTimeouts {
	return ModelTimeouts{
		HTTPClientTimeout: 60 * time.Second,
		StreamingTimeout:  60 * time.Second,
		AttemptTimeout:    60 * time.Second,
		RetryBackoffBase:  250 * time.Millisecond,
		RetryBackoffMax:   2 * time.Second,
		MaxRetries:        1,
	}
}

// AggressiveModelTimeouts suits the surgical-edit short-circuit path, which
// still falls through to the model when the instruction doesn't parse.
func AggressiveModelTimeouts() ModelTimeouts {
	return ModelTimeouts{
		HTTPClientTimeout: 30 * time.Second,
		StreamingTimeout:  30 * time.Second,
		AttemptTimeout:    30 * time.Second,
		RetryBackoffBase:  100 * time.Millisecond,
		RetryBackoffMax:   1 * time.Second,
		MaxRetries:        0,
	}
}

// Global singleton for consistent timeout access from collaborators that
// don't carry RuntimeConfig through their constructor (the concrete
// perception adapter's default config, in particular).
var globalModelTimeouts = DefaultModelTimeouts()

// GetModelTimeouts returns the global model timeout configuration.
func GetModelTimeouts() ModelTimeouts {
	return globalModelTimeouts
}

// SetModelTimeouts updates the global model timeout configuration. This
// should be called early in application startup, before any collaborator
// reads it.
func SetModelTimeouts(t ModelTimeouts) {
	globalModelTimeouts = t
}
