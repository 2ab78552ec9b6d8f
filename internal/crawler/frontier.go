package crawler

import (
	"sync"
	"time"
)

// Frontier holds the single-process Frontier/Visited/InFlight store. All
// three sets share one mutex, treated as one atomically-updated structure
// rather than three independently-locked maps, so a claim can never
// observe a URL as simultaneously queued and in-flight.
type Frontier struct {
	mu       sync.Mutex
	queue    []FrontierEntry
	visited  map[string]struct{}
	inFlight map[string]time.Time
	filter   *AdmissionFilter
	maxPages int
	admitted int
}

// NewFrontier creates an empty Frontier gated by filter. maxPages <= 0
// means unbounded.
func NewFrontier(filter *AdmissionFilter, maxPages int) *Frontier {
	return &Frontier{
		visited:  make(map[string]struct{}),
		inFlight: make(map[string]time.Time),
		filter:   filter,
		maxPages: maxPages,
	}
}

// TryEnqueue admits a discovered link at the given depth. It returns false
// without error when the URL is out of admission scope, already visited,
// already queued/in-flight, or the page budget has been exhausted —
// callers do not need to distinguish these cases, only whether to keep
// discovering.
func (f *Frontier) TryEnqueue(canonicalURL string, depth int, parentURL string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxPages > 0 && f.admitted >= f.maxPages {
		return false
	}
	if _, seen := f.visited[canonicalURL]; seen {
		return false
	}
	if _, inflight := f.inFlight[canonicalURL]; inflight {
		return false
	}
	for _, e := range f.queue {
		if e.URL == canonicalURL {
			return false
		}
	}
	if f.filter != nil && !f.filter.Admit(canonicalURL) {
		return false
	}

	f.queue = append(f.queue, FrontierEntry{
		URL:        canonicalURL,
		Depth:      depth,
		ParentURL:  parentURL,
		Discovered: now,
	})
	f.admitted++
	return true
}

// Claim pops the oldest queued entry and marks it in-flight. The bool is
// false when the queue is empty.
func (f *Frontier) Claim(now time.Time) (FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return FrontierEntry{}, false
	}
	entry := f.queue[0]
	f.queue = f.queue[1:]
	entry.Attempts++
	f.inFlight[entry.URL] = now
	return entry, true
}

// Complete removes a URL from in-flight and records it as visited
// regardless of outcome — a failed fetch still consumes the slot, per the
// spec's "visited means attempted, not necessarily succeeded" invariant.
// Requeue re-admits the entry (with incremented attempt count preserved)
// instead of marking it visited, used for retryable outcomes.
func (f *Frontier) Complete(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, url)
	f.visited[url] = struct{}{}
}

// Requeue returns an in-flight entry to the back of the queue without
// marking it visited, for outcomes the caller decides to retry.
func (f *Frontier) Requeue(entry FrontierEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, entry.URL)
	f.queue = append(f.queue, entry)
}

// Len reports the number of queued (not in-flight, not visited) entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Outstanding reports the number of entries currently claimed by a
// worker. The Worker Pool Manager uses this, together with Len, to decide
// when the crawl has genuinely run dry (queue empty AND nothing in
// flight) versus merely between claims.
func (f *Frontier) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

// VisitedCount reports how many URLs have been fully resolved (success or
// terminal failure).
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// FrontierSnapshot is the serializable view of a Frontier used by the
// Checkpoint Manager.
type FrontierSnapshot struct {
	Queue   []FrontierEntry
	Visited []string
}

// Snapshot returns a point-in-time copy suitable for checkpointing.
// In-flight entries are folded back into the queue: on resume there is no
// worker holding them, so they must be re-claimable.
func (f *Frontier) Snapshot() FrontierSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	queue := make([]FrontierEntry, len(f.queue), len(f.queue)+len(f.inFlight))
	copy(queue, f.queue)
	for url := range f.inFlight {
		queue = append(queue, FrontierEntry{URL: url})
	}
	visited := make([]string, 0, len(f.visited))
	for url := range f.visited {
		visited = append(visited, url)
	}
	return FrontierSnapshot{Queue: queue, Visited: visited}
}

// Restore replaces the Frontier's contents with a previously-snapshotted
// state, used when resuming from a checkpoint. It does not re-run
// admission on restore: entries were admitted once already.
func (f *Frontier) Restore(snap FrontierSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append([]FrontierEntry(nil), snap.Queue...)
	f.inFlight = make(map[string]time.Time)
	f.visited = make(map[string]struct{}, len(snap.Visited))
	for _, url := range snap.Visited {
		f.visited[url] = struct{}{}
	}
	f.admitted = len(snap.Queue) + len(snap.Visited)
}
