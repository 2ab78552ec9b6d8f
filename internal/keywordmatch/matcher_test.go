package keywordmatch

import (
	"strings"
	"testing"
)

func TestFindMatchesWholeWordsCaseInsensitively(t *testing.T) {
	m := New([]string{"invoice"})
	matches := m.Find(`<html><body><p>Your Invoice is ready. Invoicing begins next week.</p></body></html>`)
	if len(matches) != 1 {
		t.Fatalf("expected one whole-word match, got %d: %+v", len(matches), matches)
	}
	if matches[0].Keyword != "invoice" {
		t.Fatalf("unexpected keyword %q", matches[0].Keyword)
	}
}

func TestFindSkipsScriptAndStyleContent(t *testing.T) {
	m := New([]string{"secret"})
	matches := m.Find(`<html><head><style>.secret{}</style></head><body><script>var secret=1;</script><p>visible</p></body></html>`)
	if len(matches) != 0 {
		t.Fatalf("expected no matches from script/style content, got %d", len(matches))
	}
}

func TestFindReturnsSurroundingContext(t *testing.T) {
	m := New([]string{"quarterly"})
	matches := m.Find(`<html><body><p>The quarterly report is attached for review.</p></body></html>`)
	if len(matches) != 1 {
		t.Fatalf("expected one match")
	}
	if matches[0].Context == "" {
		t.Fatalf("expected non-empty context")
	}
}

func TestFindContextIncludesAdjacentSentencesOnly(t *testing.T) {
	m := New([]string{"invoice"})
	html := `<html><body><p>First unrelated sentence. The invoice is overdue. Third sentence follows. Fourth sentence is distant.</p></body></html>`
	matches := m.Find(html)
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %d", len(matches))
	}
	ctx := matches[0].Context
	if !containsAll(ctx, "First unrelated sentence", "invoice is overdue", "Third sentence follows") {
		t.Fatalf("expected context to span the preceding and following sentence, got %q", ctx)
	}
	if strings.Contains(ctx, "Fourth sentence is distant") {
		t.Fatalf("expected context to exclude sentences beyond the immediate neighbors, got %q", ctx)
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
