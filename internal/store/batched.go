package store

import (
	"context"
	"sync"

	"github.com/jward/mixweave/internal/dispatch"
)

// TraceBuffer buffers traces in memory and commits them to the Store in
// batches, so hot dispatch paths do not pay one SQLite write per callback.
//
// Thread safety: the mutex protects the buffer. Commits happen outside the
// lock on a detached slice.
type TraceBuffer struct {
	store *Store
	size  int

	mu      sync.Mutex
	pending []Trace
}

// Compile-time check: *TraceBuffer satisfies dispatch.TraceSink.
var _ dispatch.TraceSink = (*TraceBuffer)(nil)

// NewTraceBuffer creates a TraceBuffer that commits every size traces. A
// size below 1 commits on every trace.
func NewTraceBuffer(s *Store, size int) *TraceBuffer {
	if size < 1 {
		size = 1
	}
	return &TraceBuffer{store: s, size: size}
}

// RecordTrace buffers t and commits the buffer once it is full.
func (b *TraceBuffer) RecordTrace(_ context.Context, t dispatch.Trace) error {
	b.mu.Lock()
	b.pending = append(b.pending, fromDispatch(t))
	var batch []Trace
	if len(b.pending) >= b.size {
		batch = b.pending
		b.pending = nil
	}
	b.mu.Unlock()

	if batch == nil {
		return nil
	}
	return b.store.CommitTraces(batch)
}

// Pending reports how many traces wait for the next commit.
func (b *TraceBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush commits everything buffered.
func (b *TraceBuffer) Flush() error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	return b.store.CommitTraces(batch)
}
