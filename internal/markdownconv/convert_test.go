package markdownconv

import "testing"

func TestConvertProducesMarkdownAndCounts(t *testing.T) {
	html := `<html><head><title>My Page</title></head><body>
<h1>Welcome</h1>
<p>Hello world, this is a test page.</p>
<ul><li>one</li><li>two</li></ul>
<a href="/a">a</a>
<img src="/x.png" alt="x">
</body></html>`

	c := New()
	md, title, headings, links, images, words, err := c.Convert(html, "https://example.com/")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if title != "My Page" {
		t.Fatalf("got title %q", title)
	}
	if headings != 1 {
		t.Fatalf("got headings %d, want 1", headings)
	}
	if links != 1 {
		t.Fatalf("got links %d, want 1", links)
	}
	if images != 1 {
		t.Fatalf("got images %d, want 1", images)
	}
	if words == 0 {
		t.Fatalf("expected non-zero word count")
	}
	if md == "" {
		t.Fatalf("expected non-empty markdown output")
	}
}
