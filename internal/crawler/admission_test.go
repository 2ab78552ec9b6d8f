package crawler

import "testing"

func TestAdmissionFilterExactHostScope(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:     ScopeExactHost,
		SeedHosts: []string{"example.com"},
	})
	if !f.Admit("https://example.com/a") {
		t.Fatalf("expected exact seed host to be admitted")
	}
	if f.Admit("https://blog.example.com/a") {
		t.Fatalf("expected subdomain to be rejected under exact scope")
	}
}

func TestAdmissionFilterSubdomainScope(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:     ScopeSubdomains,
		SeedHosts: []string{"example.com"},
	})
	if !f.Admit("https://blog.example.com/a") {
		t.Fatalf("expected subdomain to be admitted under subdomain scope")
	}
	if f.Admit("https://example.org/a") {
		t.Fatalf("expected unrelated domain to be rejected")
	}
}

func TestAdmissionFilterSubdomainScopeTwoLabelSuffix(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:     ScopeSubdomains,
		SeedHosts: []string{"example.co.uk"},
	})
	if !f.Admit("https://shop.example.co.uk/a") {
		t.Fatalf("expected co.uk subdomain to be admitted")
	}
}

func TestAdmissionFilterRejectsExcludedExtension(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:     ScopeExactHost,
		SeedHosts: []string{"example.com"},
	})
	if f.Admit("https://example.com/image.png") {
		t.Fatalf("expected excluded extension to be rejected")
	}
}

func TestAdmissionFilterHonorsExplicitAllowedExtensions(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:             ScopeExactHost,
		SeedHosts:         []string{"example.com"},
		AllowedExtensions: []string{".pdf"},
	})
	if !f.Admit("https://example.com/report.pdf") {
		t.Fatalf("expected explicitly allowed extension to be admitted")
	}
	if f.Admit("https://example.com/page.html") {
		t.Fatalf("expected extension outside the explicit allow set to be rejected")
	}
}

func TestAdmissionFilterBlocklist(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:     ScopeExactHost,
		SeedHosts: []string{"example.com"},
		Blocklist: []string{"example.com"},
	})
	if f.Admit("https://example.com/a") {
		t.Fatalf("expected blocklisted host to be rejected even though it is the seed host")
	}
}

func TestAdmissionFilterPathPrefix(t *testing.T) {
	f := NewAdmissionFilter(AdmissionPolicy{
		Scope:      ScopeExactHost,
		SeedHosts:  []string{"example.com"},
		PathPrefix: "/docs",
	})
	if !f.Admit("https://example.com/docs/a") {
		t.Fatalf("expected path under prefix to be admitted")
	}
	if f.Admit("https://example.com/blog/a") {
		t.Fatalf("expected path outside prefix to be rejected")
	}
}
