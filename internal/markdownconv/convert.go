// Package markdownconv implements the Markdown Converter contract: turn a
// rendered HTML document into GitHub-flavored Markdown plus the metadata
// (title, heading/link/image/word counts) a Result Sink stores alongside
// it. Grounded on nao1215-onionscan's internal/report/markdown.go, whose
// fluent nao1215/markdown builder usage is repointed here from a security
// report's sections to a fetched page's DOM structure.
package markdownconv

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/nao1215/markdown"
)

// Converter implements crawler.MarkdownConverter.
type Converter struct{}

// New creates a Converter.
func New() *Converter {
	return &Converter{}
}

// Convert renders html's body into Markdown, walking block-level elements
// in document order, and returns the document plus the counts a Result
// Sink persists alongside it.
func (c *Converter) Convert(html, pageURL string) (string, string, int, int, int, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", 0, 0, 0, 0, fmt.Errorf("parse html for markdown conversion: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	headingCount := doc.Find("h1, h2, h3, h4, h5, h6").Length()
	linkCount := doc.Find("a[href]").Length()
	imageCount := doc.Find("img[src]").Length()

	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)
	if title != "" {
		md.H1(title)
	} else {
		md.H1(pageURL)
	}
	md.PlainText("")

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Children().Each(func(_ int, sel *goquery.Selection) {
		writeBlock(md, sel)
	})
	md.PlainText("")
	md.HorizontalRule()
	md.PlainTextf("Source: %s", pageURL)

	if err := md.Build(); err != nil {
		return "", "", 0, 0, 0, 0, fmt.Errorf("build markdown: %w", err)
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")
	wordCount := 0
	if text != "" {
		wordCount = len(strings.Fields(text))
	}

	return buf.String(), title, headingCount, linkCount, imageCount, wordCount, nil
}

func writeBlock(md *markdown.Markdown, sel *goquery.Selection) {
	text := strings.TrimSpace(sel.Text())
	switch goquery.NodeName(sel) {
	case "h1":
		md.H1(text)
	case "h2":
		md.H2(text)
	case "h3", "h4", "h5", "h6":
		if text != "" {
			md.PlainText(strings.Repeat("#", headingLevel(goquery.NodeName(sel))) + " " + text)
		}
	case "ul", "ol":
		var items []string
		sel.Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := strings.TrimSpace(li.Text()); t != "" {
				items = append(items, t)
			}
		})
		if len(items) > 0 {
			md.BulletList(items...)
		}
	case "pre", "code":
		if text != "" {
			md.PlainText("```\n" + text + "\n```")
		}
	case "img":
		if src, ok := sel.Attr("src"); ok {
			alt := sel.AttrOr("alt", "")
			md.PlainTextf("![%s](%s)", alt, src)
		}
	default:
		if text != "" {
			md.PlainText(text)
		}
	}
	md.PlainText("")
}

func headingLevel(tag string) int {
	switch tag {
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	default:
		return 6
	}
}
