package crawler

import "sync"

// ResultDedup enforces result-level uniqueness across an entire run,
// independent of the Frontier's url-level visited set: the same URL can
// legitimately surface the same keyword more than once (a hit on first
// fetch, the same hit again if re-queued after a transient failure), and
// that must not produce duplicate records in a Result Sink.
type ResultDedup struct {
	seen sync.Map
}

// NewResultDedup builds an empty, run-scoped dedup guard.
func NewResultDedup() *ResultDedup {
	return &ResultDedup{}
}

// FilterKeywordHits drops any KeywordMatch whose (url, keyword, context
// sentence) triple has already been admitted, returning only the hits
// that are new to this run.
func (d *ResultDedup) FilterKeywordHits(url string, hits []KeywordMatch) []KeywordMatch {
	if d == nil || len(hits) == 0 {
		return hits
	}
	out := make([]KeywordMatch, 0, len(hits))
	for _, h := range hits {
		key := url + "\x00" + h.Keyword + "\x00" + h.Context
		if _, dup := d.seen.LoadOrStore(key, struct{}{}); !dup {
			out = append(out, h)
		}
	}
	return out
}

// AllowMarkdownDoc reports whether canonicalURL has not already produced
// a markdown document this run, admitting it if so.
func (d *ResultDedup) AllowMarkdownDoc(canonicalURL string) bool {
	if d == nil {
		return true
	}
	_, dup := d.seen.LoadOrStore("markdown_doc\x00"+canonicalURL, struct{}{})
	return !dup
}
