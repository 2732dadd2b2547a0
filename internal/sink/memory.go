package sink

import (
	"bytes"
	"context"
	"sync"

	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// MemorySink keeps rendered traces in memory, in write order. It is used by
// the tree preview and by tests.
type MemorySink struct {
	mu    sync.Mutex
	keys  []Key
	files map[Key][]byte
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{files: make(map[Key][]byte)}
}

// Write implements Sink.
func (s *MemorySink) Write(ctx context.Context, key Key, phases []types.Phase) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := Render(&buf, phases); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.files[key] = buf.Bytes()
	return "mem://" + key.Path(), nil
}

// Keys returns the written keys in first-write order.
func (s *MemorySink) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns the rendered trace stored under key.
func (s *MemorySink) Get(key Key) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[key]
	return b, ok
}

// Len returns the number of stored traces.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}
