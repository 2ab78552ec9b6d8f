package contentfilter

import "testing"

func TestAcceptRejectsOversizedBody(t *testing.T) {
	f := New(Config{MaxBytes: 100})
	if f.Accept("text/html", 200) {
		t.Fatalf("expected oversized body to be rejected")
	}
}

func TestAcceptDefaultsToHTMLOnly(t *testing.T) {
	f := New(Config{})
	if !f.Accept("text/html; charset=utf-8", 10) {
		t.Fatalf("expected html content type to be accepted")
	}
	if f.Accept("application/pdf", 10) {
		t.Fatalf("expected non-html content type to be rejected by default")
	}
}

func TestAcceptMissingContentTypeFromHeadlessNavigation(t *testing.T) {
	f := New(Config{})
	if !f.Accept("", 10) {
		t.Fatalf("expected empty content type (common for headless navigations) to be accepted")
	}
}

func TestAcceptHonorsExplicitAllowList(t *testing.T) {
	f := New(Config{AllowedMediaType: []string{"application/xhtml+xml"}})
	if !f.Accept("application/xhtml+xml", 10) {
		t.Fatalf("expected explicitly allowed media type to be accepted")
	}
	if f.Accept("text/html", 10) {
		t.Fatalf("expected media type outside explicit allow list to be rejected")
	}
}
