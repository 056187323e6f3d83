package session

import (
	"sync"

	"github.com/google/uuid"
)

// CancelFunc signals a run's cancellation scope with a human-readable
// reason (e.g. "superseded").
type CancelFunc func(reason string)

// RunHandle is what the registry tracks for one in-flight run.
type RunHandle struct {
	RunID  string
	Cancel CancelFunc
}

// Registry is the process-wide mapping from session id to its single
// in-flight run. Supersession is swap-and-cancel-old: a new run is only
// inserted after the previous one has been signalled.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*RunHandle
}

func NewRegistry() *Registry {
	return &Registry{runs: map[string]*RunHandle{}}
}

// Register cancels any existing run for sessionID with reason
// "superseded", then inserts and returns the new handle.
func (r *Registry) Register(sessionID string, cancel CancelFunc) *RunHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.runs[sessionID]; ok {
		prev.Cancel("superseded")
	}

	handle := &RunHandle{RunID: uuid.New().String(), Cancel: cancel}
	r.runs[sessionID] = handle
	return handle
}

// Unregister removes the registered run for sessionID, but only if runID
// still matches (a superseded run must not evict its successor).
func (r *Registry) Unregister(sessionID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.runs[sessionID]; ok && cur.RunID == runID {
		delete(r.runs, sessionID)
	}
}

// Current returns the currently registered run for a session, if any.
func (r *Registry) Current(sessionID string) (*RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.runs[sessionID]
	return h, ok
}
