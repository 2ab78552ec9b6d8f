package crawler

import (
	"context"
	"time"
)

// ResultSink is where a successfully fetched PageResult is delivered. The
// five implementations in internal/sink (filesystem/CSV, Postgres, GCS,
// Pub/Sub, in-memory) all satisfy this.
type ResultSink interface {
	Put(ctx context.Context, result PageResult) error
	Close(ctx context.Context) error
}

// ContentFilter decides whether a rendered page is worth extracting at
// all, independent of the keyword/markdown split (e.g. content-type and
// size gates).
type ContentFilter interface {
	Accept(contentType string, size int) bool
}

// KeywordMatcher scans page text for configured keywords and returns the
// matches with surrounding context.
type KeywordMatcher interface {
	Find(text string) []KeywordMatch
}

// MarkdownConverter turns a rendered HTML document into the Markdown +
// metadata shape used when the run is in markdown mode.
type MarkdownConverter interface {
	Convert(html, pageURL string) (markdown string, title string, headingCount, linkCount, imageCount, wordCount int, err error)
}

// Clock is the single source of "now" used anywhere a timestamp is
// recorded, so tests can substitute a fake.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque identifiers (run IDs, checkpoint generation
// tags).
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes a content digest used for SPA re-render dedup and
// PageResult.ContentHash.
type Hasher interface {
	Hash(data []byte) (string, error)
}
