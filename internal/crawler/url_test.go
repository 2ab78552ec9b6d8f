package crawler

import "testing"

func TestCanonicalizeStripsDefaultPortAndFragment(t *testing.T) {
	got, err := Canonicalize("HTTPS://Example.COM:443/a//b/#section", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://example.com/a/b"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeStripsTrailingSlashFromNonRootPath(t *testing.T) {
	withSlash, err := Canonicalize("https://example.com/a/b/", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	withoutSlash, err := Canonicalize("https://example.com/a/b", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withSlash != withoutSlash {
		t.Fatalf("expected trailing slash to collapse to the same canonical form, got %q and %q", withSlash, withoutSlash)
	}
}

func TestCanonicalizeKeepsRootPathSlash(t *testing.T) {
	got, err := Canonicalize("https://example.com", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com/" {
		t.Fatalf("got %q", got)
	}
}

func TestCanonicalizeKeepsSyntheticRouteFragment(t *testing.T) {
	got, err := Canonicalize("https://example.com/app#/dashboard", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://example.com/app#/dashboard"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeKeepsSectionFragment(t *testing.T) {
	got, err := Canonicalize("https://example.com/app#section-pricing", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://example.com/app#section-pricing"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeResolvesRelativeAgainstBase(t *testing.T) {
	got, err := Canonicalize("/next", "https://example.com/current", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com/next" {
		t.Fatalf("got %q", got)
	}
}

func TestCanonicalizeRejectsNonHTTPScheme(t *testing.T) {
	if _, err := Canonicalize("mailto:a@example.com", "", nil); err == nil {
		t.Fatalf("expected error for mailto scheme")
	}
}

func TestCanonicalizeStripsConfiguredQueryParams(t *testing.T) {
	got, err := Canonicalize("https://example.com/p?utm_source=x&id=2&b=1", "", []string{"utm_source"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://example.com/p?b=1&id=2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeSortsQueryParamsDeterministically(t *testing.T) {
	a, err := Canonicalize("https://example.com/p?b=1&a=2", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Canonicalize("https://example.com/p?a=2&b=1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected stable canonical form, got %q and %q", a, b)
	}
}
