// Package contentfilter implements the Content Filter contract: a cheap
// gate applied before extraction so non-HTML or oversized responses never
// reach the keyword matcher or Markdown converter, the same content-type
// and size checks run ahead of any heavier per-page work elsewhere in
// this module.
package contentfilter

import "strings"

// Config bounds what Accept lets through.
type Config struct {
	MaxBytes         int64
	AllowedMediaType []string // e.g. "text/html", "application/xhtml+xml"
}

// Filter implements crawler.ContentFilter.
type Filter struct {
	cfg Config
}

// New creates a Filter. An empty AllowedMediaType list defaults to
// accepting anything with "html" in its media type.
func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Accept reports whether a response with the given Content-Type header
// value and body size should proceed to extraction.
func (f *Filter) Accept(contentType string, size int) bool {
	if f.cfg.MaxBytes > 0 && int64(size) > f.cfg.MaxBytes {
		return false
	}
	mediaType := strings.ToLower(strings.SplitN(contentType, ";", 2)[0])
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		// Headless navigation doesn't always surface a Content-Type; the
		// page was still rendered as HTML by the browser, so let it through.
		return true
	}
	if len(f.cfg.AllowedMediaType) == 0 {
		return strings.Contains(mediaType, "html")
	}
	for _, allowed := range f.cfg.AllowedMediaType {
		if mediaType == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
