package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the abstract keyed context store. The orchestrator is the only
// writer, and it writes exactly once per run, from its terminal
// finally-block.
type Store interface {
	Get(id string) (Context, bool)
	Put(id string, ctx Context)
	Reset()
}

// MemoryStore is the in-process Store implementation; nothing in this
// system's testable properties requires durability across process
// restarts (see DESIGN.md).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Context
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Context{}}
}

func (s *MemoryStore) Get(id string) (Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, ok := s.data[id]
	return ctx, ok
}

func (s *MemoryStore) Put(id string, ctx Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = ctx
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = map[string]Context{}
}

// NewSessionID generates a short prefixed id for requests that don't
// supply their own.
func NewSessionID(prefix string) string {
	return prefix + "-" + uuid.New().String()[:8]
}
