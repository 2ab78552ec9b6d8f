package worker

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

// minLinksBeforeFallback is the "this DOM tree looks suspiciously bare"
// threshold: a well-formed page with navigation almost never yields fewer
// than this many <a href> elements, so anything under it is worth a second
// opinion from the more tolerant parsers rather than trusting goquery.
const minLinksBeforeFallback = 5

// discoverLinks runs every configured discovery path over the rendered
// HTML and offers each resulting link to the Frontier through admission
// and canonicalization. It never returns an error: a link that fails to
// canonicalize or gets rejected by admission is simply not enqueued.
func (w *Worker) discoverLinks(rawHTML string, from crawler.FrontierEntry) {
	if from.Depth >= w.deps.MaxDepth && w.deps.MaxDepth > 0 {
		return
	}
	links := extractAnchors(rawHTML)
	if len(links) < minLinksBeforeFallback {
		// Safety-net parsers supplement, never replace, what goquery
		// already found — a malformed fragment elsewhere in the page
		// shouldn't cost us links a stricter parser did manage to see.
		links = append(links, extractAnchorsLenient(rawHTML)...)
		links = append(links, extractAnchorsXPath(rawHTML)...)
	}
	links = append(links, extractRouteLiterals(rawHTML)...)

	now := w.now()
	for _, href := range dedupeStrings(links) {
		w.offer(href, from, now)
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (w *Worker) offer(href string, from crawler.FrontierEntry, now time.Time) {
	canon, err := crawler.Canonicalize(href, from.URL, w.deps.StripQueryParams)
	if err != nil {
		return
	}
	if w.deps.Admission != nil && !w.deps.Admission.Admit(canon) {
		return
	}
	w.deps.Frontier.TryEnqueue(canon, from.Depth+1, from.URL, now)
}

// extractAnchors uses goquery's CSS-selector DOM to pull every <a href>.
// This is the primary, well-formed-HTML discovery path.
func extractAnchors(rawHTML string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok {
			href = strings.TrimSpace(href)
			if href != "" && !strings.HasPrefix(href, "javascript:") && !strings.HasPrefix(href, "mailto:") {
				out = append(out, href)
			}
		}
	})
	return out
}

// extractAnchorsLenient falls back to the raw tokenizer when goquery's
// stricter parser chokes on malformed markup, scanning token-by-token for
// href attributes without building a DOM tree at all.
func extractAnchorsLenient(rawHTML string) []string {
	tok := html.NewTokenizer(strings.NewReader(rawHTML))
	var out []string
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			return out
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tag := tok.Token()
		if tag.Data != "a" {
			continue
		}
		for _, attr := range tag.Attr {
			if attr.Key == "href" {
				href := strings.TrimSpace(attr.Val)
				if href != "" && !strings.HasPrefix(href, "javascript:") {
					out = append(out, href)
				}
			}
		}
	}
}

// extractAnchorsXPath re-parses the document with antchfx/htmlquery and
// walks it with a plain XPath query, a third, independent tree-builder
// from the one goquery/cascadia constructs — useful when the dropped
// nodes are dropped because of how goquery's selector engine (not the
// underlying x/net/html parser) resolved an ambiguous selector.
func extractAnchorsXPath(rawHTML string) []string {
	doc, err := htmlquery.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(doc, "//a[@href]")
	if err != nil {
		return nil
	}
	var out []string
	for _, n := range nodes {
		href := strings.TrimSpace(htmlquery.SelectAttr(n, "href"))
		if href != "" && !strings.HasPrefix(href, "javascript:") && !strings.HasPrefix(href, "mailto:") {
			out = append(out, href)
		}
	}
	return out
}

// routeLiteralPattern catches client-router path literals embedded in
// inline <script> blocks (e.g. {"path":"/products/42"} or to:"/about"),
// which never appear as an <a href> in single-page apps that build their
// navigation table in JS.
var routeLiteralPattern = regexp.MustCompile(`\b(?:path|to|href|url)["']?\s*:\s*["'](/[a-zA-Z0-9\-_/]*)["']`)

func extractRouteLiterals(rawHTML string) []string {
	var out []string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range routeLiteralPattern.FindAllStringSubmatch(sel.Text(), -1) {
			if len(m) == 2 {
				out = append(out, m[1])
			}
		}
	})
	return out
}
