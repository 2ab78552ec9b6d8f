package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var controlChar = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// Canonicalize resolves raw against base (if raw is relative) and reduces
// it to the canonical form used as the Frontier/Visited key: lowercase
// scheme and host, default ports stripped, fragment dropped unless it
// looks like an SPA route (#/, #! or a synthetic #section-...), duplicate slashes in the
// path collapsed, trailing slash stripped from any non-root path (kept
// only when the path is otherwise empty), and query parameters named in
// stripParams removed before the
// remaining ones are sorted for a stable key.
//
// Only http and https schemes are admitted; anything else is rejected so
// mailto:, javascript:, and data: links never reach the Frontier.
func Canonicalize(raw, base string, stripParams []string) (string, error) {
	if controlChar.MatchString(raw) {
		return "", fmt.Errorf("canonicalize: control characters in url")
	}
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("canonicalize: parse %q: %w", raw, err)
	}
	if base != "" && !parsed.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("canonicalize: parse base %q: %w", base, err)
		}
		parsed = baseURL.ResolveReference(parsed)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("canonicalize: unsupported scheme %q", parsed.Scheme)
	}
	parsed.Host = strings.ToLower(parsed.Host)
	switch {
	case parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80"):
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	case parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443"):
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}

	if isSyntheticRoute(parsed.Fragment) {
		// SPA router fragments (#/path, #!/path) are part of page identity.
	} else {
		parsed.Fragment = ""
	}

	parsed.Path = collapseSlashes(parsed.Path)
	if parsed.Path == "" {
		parsed.Path = "/"
	} else if len(parsed.Path) > 1 && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	if len(stripParams) > 0 {
		q := parsed.Query()
		for _, p := range stripParams {
			q.Del(p)
		}
		parsed.RawQuery = encodeSortedQuery(q)
	} else if parsed.RawQuery != "" {
		parsed.RawQuery = encodeSortedQuery(parsed.Query())
	}

	return parsed.String(), nil
}

func isSyntheticRoute(fragment string) bool {
	return strings.HasPrefix(fragment, "/") || strings.HasPrefix(fragment, "!") || strings.HasPrefix(fragment, "section-")
}

func collapseSlashes(path string) string {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return path
}

func encodeSortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		values := q[k]
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
