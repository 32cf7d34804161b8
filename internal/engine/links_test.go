package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/policy"
)

func TestExtractLinks_DisplayMismatch(t *testing.T) {
	html := `<p>Please <a href="http://evil.example/login">http://mybank.com/login</a> now.</p>`

	set := ExtractLinks("", html, policy.Default(), 200)

	if len(set.Links) != 1 {
		t.Fatalf("Expected 1 link, got %d", len(set.Links))
	}
	l := set.Links[0]
	if l.Classification != core.ClassMismatch {
		t.Errorf("Expected mismatch, got %s (%s)", l.Classification, l.Reason)
	}
	if l.DisplayText == nil || *l.DisplayText != "http://mybank.com/login" {
		t.Errorf("Expected display text to be kept, got %v", l.DisplayText)
	}
	if l.URL != "http://evil.example/login" {
		t.Errorf("Expected href as URL, got %s", l.URL)
	}
}

func TestExtractLinks_SameOrganizationIsNotMismatch(t *testing.T) {
	html := `<a href="https://www.example.com/account">example.com</a>`

	set := ExtractLinks("", html, policy.Default(), 200)

	if len(set.Links) != 1 || set.Links[0].Classification != core.ClassSafe {
		t.Fatalf("Expected one safe link, got %+v", set.Links)
	}
}

func TestExtractLinks_FileNameTextIsNotMismatch(t *testing.T) {
	tests := []struct {
		text string
		want core.Classification
	}{
		{"invoice.zip", core.ClassSafe},
		{"setup.sh", core.ClassSafe},
		{"www.invoice.zip", core.ClassMismatch},
		{"invoice.zip/download", core.ClassMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			html := fmt.Sprintf(`<a href="https://files.example.com/dl/123">%s</a>`, tt.text)
			set := ExtractLinks("", html, policy.Default(), 200)
			if len(set.Links) != 1 || set.Links[0].Classification != tt.want {
				t.Fatalf("Expected one %s link, got %+v", tt.want, set.Links)
			}
		})
	}
}

func TestExtractLinks_Classification(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want core.Classification
	}{
		{"plain https", "https://www.example.com/path", core.ClassSafe},
		{"shortener", "https://bit.ly/abc123", core.ClassShortener},
		{"dotted IP", "http://192.168.10.5/login", core.ClassMalicious},
		{"integer IP", "http://3232238085/login", core.ClassMalicious},
		{"digit homoglyph", "https://paypa1.com/signin", core.ClassMalicious},
		{"cyrillic homoglyph", "https://pаypal.com/signin", core.ClassMalicious},
		{"suspicious tld", "https://login.example.xyz/", core.ClassSuspicious},
		{"punycode homograph", "https://xn--80ak6aa92e.com/", core.ClassMalicious},
		{"punycode", "https://xn--mnchen-3ya.de/", core.ClassSuspicious},
		{"deep subdomains", "https://a.b.c.d.example.com/", core.ClassSuspicious},
		{"brand over http", "http://example.com/paypal/login", core.ClassSuspicious},
		{"brand in unrelated host", "https://paypal-secure-login.com/", core.ClassSuspicious},
		{"official brand host", "https://www.paypal.com/signin", core.ClassSafe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := ExtractLinks("Go to "+tt.url+" today", "", policy.Default(), 200)
			if len(set.Links) != 1 {
				t.Fatalf("Expected 1 link, got %d", len(set.Links))
			}
			if got := set.Links[0].Classification; got != tt.want {
				t.Errorf("Expected %s for %s, got %s (%s)", tt.want, tt.url, got, set.Links[0].Reason)
			}
		})
	}
}

func TestExtractLinks_MaliciousHostList(t *testing.T) {
	pol, err := policy.Parse([]byte("malicious_hosts: [bad.example.net]\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	set := ExtractLinks("see https://cdn.bad.example.net/x", "", pol, 200)

	if len(set.Links) != 1 || set.Links[0].Classification != core.ClassMalicious {
		t.Fatalf("Expected malicious link, got %+v", set.Links)
	}
}

func TestExtractLinks_Deduplicates(t *testing.T) {
	text := "https://example.com/a?x=1 and again https://EXAMPLE.com/a?x=2#frag"
	html := `<a href="https://example.com/a">Open</a>`

	set := ExtractLinks(text, html, policy.Default(), 200)

	if len(set.Links) != 1 {
		t.Fatalf("Expected 1 deduplicated link, got %d", len(set.Links))
	}
	if set.Links[0].DisplayText == nil || *set.Links[0].DisplayText != "Open" {
		t.Errorf("Expected display text 'Open', got %v", set.Links[0].DisplayText)
	}
}

func TestExtractLinks_IgnoresNonHTTP(t *testing.T) {
	html := `<a href="mailto:x@example.com">mail</a><a href="tel:123">call</a><a href="#top">top</a>`

	set := ExtractLinks("", html, policy.Default(), 200)

	if len(set.Links) != 0 {
		t.Errorf("Expected no links, got %+v", set.Links)
	}
}

func TestExtractLinks_SchemelessAndTrailingPunctuation(t *testing.T) {
	set := ExtractLinks("Visit www.example.com/start. Or (see https://example.org/a_(b)).", "", policy.Default(), 200)

	if len(set.Links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(set.Links))
	}
	if set.Links[0].URL != "www.example.com/start" {
		t.Errorf("Expected trailing period trimmed, got %s", set.Links[0].URL)
	}
	if set.Links[1].URL != "https://example.org/a_(b)" {
		t.Errorf("Expected balanced parenthesis kept, got %s", set.Links[1].URL)
	}
}

func TestExtractLinks_Limit(t *testing.T) {
	var parts []string
	for i := 0; i < 5; i++ {
		parts = append(parts, fmt.Sprintf("https://example.com/%d", i))
	}

	set := ExtractLinks(strings.Join(parts, " "), "", policy.Default(), 3)

	if len(set.Links) != 3 {
		t.Errorf("Expected 3 links, got %d", len(set.Links))
	}
	if !set.Truncated {
		t.Error("Expected truncation to be reported")
	}
}

func TestExtractLinks_RenderedHTMLText(t *testing.T) {
	html := `<html><head><style>a{}</style><script>var u="https://script.example.com/";</script></head>` +
		`<body><p>Bare link https://bare.example.com/x in text</p><a href="https://anchor.example.com/">click</a></body></html>`

	set := ExtractLinks("", html, policy.Default(), 200)

	if len(set.Links) != 2 {
		t.Fatalf("Expected 2 links, got %+v", set.Links)
	}
	if set.Links[0].Host != "anchor.example.com" || set.Links[1].Host != "bare.example.com" {
		t.Errorf("Unexpected hosts %s, %s", set.Links[0].Host, set.Links[1].Host)
	}
	if strings.Contains(set.HTMLText, "script.example.com") {
		t.Error("Expected script content to be excluded from visible text")
	}
	if !strings.Contains(set.HTMLText, "click") {
		t.Error("Expected anchor text in visible text")
	}
}
