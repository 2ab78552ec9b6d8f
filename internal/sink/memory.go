package sink

import (
	"context"
	"sync"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// MemorySink records every PageResult it receives, for use in tests and
// in one-off local runs where nothing needs to be persisted beyond the
// process's own lifetime.
type MemorySink struct {
	mu      sync.RWMutex
	results []crawler.PageResult
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Put appends result.
func (s *MemorySink) Put(_ context.Context, result crawler.PageResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// Close is a no-op.
func (s *MemorySink) Close(context.Context) error { return nil }

// Results returns a copy of everything recorded so far.
func (s *MemorySink) Results() []crawler.PageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.PageResult, len(s.results))
	copy(out, s.results)
	return out
}
