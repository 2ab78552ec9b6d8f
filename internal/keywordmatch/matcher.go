// Package keywordmatch implements the keyword-matching extraction path:
// whole-word, case-insensitive search over a page's visible text, with
// enough surrounding context returned per hit that a result consumer can
// judge relevance without re-fetching the page. Context is a
// sentence-window around the hit rather than a fixed character span.
package keywordmatch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// Matcher implements crawler.KeywordMatcher.
type Matcher struct {
	keywords []string
	patterns []*regexp.Regexp
}

// New compiles a whole-word, case-insensitive pattern per keyword.
func New(keywords []string) *Matcher {
	m := &Matcher{keywords: keywords}
	for _, kw := range keywords {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
	}
	return m
}

// Find extracts visible text from rawHTML via goquery (scripts, styles,
// and comments excluded) and returns every keyword occurrence with its
// containing sentence plus the immediately preceding and following ones.
func (m *Matcher) Find(rawHTML string) []crawler.KeywordMatch {
	text := visibleText(rawHTML)
	sentences := splitSentences(text)
	var matches []crawler.KeywordMatch
	for i, pattern := range m.patterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			start := loc[0]
			idx := sentenceContaining(sentences, start)
			matches = append(matches, crawler.KeywordMatch{
				Keyword: m.keywords[i],
				Context: sentenceWindow(text, sentences, idx),
				Offset:  start,
			})
		}
	}
	return matches
}

func visibleText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// sentenceSpan is a half-open [start, end) byte range into the text a
// Matcher was given, produced by splitSentences.
type sentenceSpan struct {
	start, end int
}

// splitSentences does a simple terminator-based split (., !, ? followed by
// whitespace or end of string), good enough for the rendered, whitespace-
// collapsed visible text Find operates on — it does not attempt to handle
// abbreviations or decimal numbers specially.
func splitSentences(text string) []sentenceSpan {
	var spans []sentenceSpan
	start := 0
	n := len(text)
	for i := 0; i < n; i++ {
		switch text[i] {
		case '.', '!', '?':
			j := i + 1
			for j < n && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
				j++
			}
			spans = append(spans, sentenceSpan{start, j})
			for j < n && text[j] == ' ' {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < n {
		spans = append(spans, sentenceSpan{start, n})
	}
	if len(spans) == 0 {
		spans = append(spans, sentenceSpan{0, n})
	}
	return spans
}

func sentenceContaining(spans []sentenceSpan, pos int) int {
	for i, s := range spans {
		if pos >= s.start && pos < s.end {
			return i
		}
	}
	return len(spans) - 1
}

// sentenceWindow concatenates the sentence at idx with its immediate
// neighbors, matching PageResult.KeywordHit's documented context shape.
func sentenceWindow(text string, spans []sentenceSpan, idx int) string {
	if idx < 0 || idx >= len(spans) {
		return strings.TrimSpace(text)
	}
	lo, hi := idx, idx
	if lo > 0 {
		lo--
	}
	if hi < len(spans)-1 {
		hi++
	}
	return strings.TrimSpace(text[spans[lo].start:spans[hi].end])
}
