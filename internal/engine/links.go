package engine

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/policy"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// LinkSet is the deduplicated, classified list of links in a body
type LinkSet struct {
	Links     []core.Link
	Truncated bool
	// HTMLText is the visible text of the HTML view
	HTMLText string
}

var (
	urlPattern = regexp.MustCompile("(?i)\\b(?:https?://|www\\.)[^\\s<>\"'`]+")
	domainLike = regexp.MustCompile(`(?i)^(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,63}(?::\d+)?(?:[/?#]\S*)?$`)
)

// fileExtensionTLDs are top-level domains that double as common file
// extensions; bare text ending in one is read as a file name
var fileExtensionTLDs = map[string]bool{
	"zip": true, "mov": true, "sh": true, "py": true, "md": true, "rs": true, "ai": true,
}

type linkEntry struct {
	url        string
	host       string
	path       string
	scheme     string
	schemeless bool
	displays   []string
}

type linkCollector struct {
	max       int
	index     map[string]*linkEntry
	order     []*linkEntry
	truncated bool
}

// ExtractLinks finds every http(s) link in the HTML anchors, the rendered
// HTML text and the plain text, deduplicates them and classifies each one
func ExtractLinks(text, html string, pol *policy.Policy, maxLinks int) LinkSet {
	c := &linkCollector{max: maxLinks, index: map[string]*linkEntry{}}

	var htmlText string
	if html != "" {
		doc := parseHTML(html)
		for _, a := range doc.anchors {
			c.add(a.href, a.text)
		}
		for _, u := range findURLs(doc.outside) {
			c.add(u, "")
		}
		htmlText = doc.text
	}
	for _, u := range findURLs(text) {
		c.add(u, "")
	}

	out := LinkSet{Truncated: c.truncated, HTMLText: htmlText, Links: make([]core.Link, 0, len(c.order))}
	for _, e := range c.order {
		out.Links = append(out.Links, classifyLink(e, pol))
	}
	return out
}

func (c *linkCollector) add(raw, display string) {
	href := strings.TrimSpace(raw)
	lower := strings.ToLower(href)

	e := &linkEntry{url: href}
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "//"):
		href = "http:" + href
		e.schemeless = true
	case strings.HasPrefix(lower, "www."):
		href = "http://" + href
		e.schemeless = true
	default:
		return
	}

	key := lower
	if u, err := url.Parse(href); err == nil && u.Hostname() != "" {
		e.scheme = strings.ToLower(u.Scheme)
		e.host = asciiHost(u.Hostname())
		e.path = u.EscapedPath()
		if e.path == "" {
			e.path = "/"
		}
		key = e.scheme + "://" + e.host + e.path
	}

	existing, ok := c.index[key]
	if !ok {
		if c.max > 0 && len(c.order) >= c.max {
			c.truncated = true
			return
		}
		existing = e
		c.index[key] = e
		c.order = append(c.order, e)
	}
	if display != "" {
		existing.displays = append(existing.displays, display)
	}
}

func findURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = trimURL(m)
	}
	return matches
}

// trimURL drops trailing punctuation, keeping a closing parenthesis that
// balances one inside the URL
func trimURL(s string) string {
	for len(s) > 0 {
		last := s[len(s)-1]
		switch last {
		case '.', ',', ';', ':', '!', '?', ']', '}', '*':
			s = s[:len(s)-1]
		case ')':
			if strings.Count(s, "(") >= strings.Count(s, ")") {
				return s
			}
			s = s[:len(s)-1]
		default:
			return s
		}
	}
	return s
}

func asciiHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for i := 0; i < len(host); i++ {
		if host[i] >= 0x80 {
			if ascii, err := idna.Lookup.ToASCII(host); err == nil {
				return ascii
			}
			return host
		}
	}
	return host
}

func classifyLink(e *linkEntry, pol *policy.Policy) core.Link {
	link := core.Link{URL: e.url, Host: e.host}

	var display string
	if len(e.displays) > 0 {
		display = e.displays[0]
		link.DisplayText = core.StringPtr(display)
	}

	if e.host == "" {
		link.Classification = core.ClassSuspicious
		link.Reason = "URL could not be parsed"
		return link
	}

	for _, d := range e.displays {
		if shown, ok := displayHost(d); ok && !sameOrganization(shown, e.host) {
			link.DisplayText = core.StringPtr(d)
			link.Classification = core.ClassMismatch
			link.Reason = fmt.Sprintf("link text shows %s but points to %s", registrable(shown), registrable(e.host))
			return link
		}
	}

	if reason, ok := maliciousReason(e, pol); ok {
		link.Classification = core.ClassMalicious
		link.Reason = reason
		return link
	}
	if pol.IsShortener(e.host, registrable(e.host)) {
		link.Classification = core.ClassShortener
		link.Reason = "URL shortener hides the destination"
		return link
	}
	if reason, ok := suspiciousReason(e, display, pol); ok {
		link.Classification = core.ClassSuspicious
		link.Reason = reason
		return link
	}

	link.Classification = core.ClassSafe
	return link
}

// displayHost extracts the host a link's visible text claims to lead to
func displayHost(d string) (string, bool) {
	if m := urlPattern.FindString(d); m != "" {
		m = trimURL(m)
		if strings.HasPrefix(strings.ToLower(m), "www.") {
			m = "http://" + m
		}
		u, err := url.Parse(m)
		if err != nil || u.Hostname() == "" {
			return "", false
		}
		return asciiHost(u.Hostname()), true
	}

	t := strings.Trim(strings.TrimSpace(d), ".,;:!?()[]<>\"'")
	if !domainLike.MatchString(t) {
		return "", false
	}
	i := strings.IndexAny(t, "/?#:")
	if i >= 0 {
		t = t[:i]
	}
	host := asciiHost(t)
	if i < 0 && fileExtensionTLDs[host[strings.LastIndexByte(host, '.')+1:]] {
		return "", false
	}
	if _, icann := publicsuffix.PublicSuffix(host); !icann {
		return "", false
	}
	return host, true
}

func maliciousReason(e *linkEntry, pol *policy.Policy) (string, bool) {
	if isIPHost(e.host) {
		return "link points to a bare IP address", true
	}
	if b, d, ok := impersonatedBrand(e.host, pol); ok {
		return fmt.Sprintf("host imitates %s domain %s", b.Name, d), true
	}
	if pol.IsMaliciousHost(e.host) {
		return "host is a known malicious host", true
	}
	if pol.IsShortener(e.host, registrable(e.host)) && pol.IsSuspiciousTLD(e.host) {
		return "URL shortener on a suspicious top-level domain", true
	}
	return "", false
}

func suspiciousReason(e *linkEntry, display string, pol *policy.Policy) (string, bool) {
	labels := strings.Split(e.host, ".")
	for _, l := range labels {
		if strings.HasPrefix(l, "xn--") {
			return "internationalized (punycode) host name", true
		}
	}

	reg := registrable(e.host)
	if sub := strings.TrimSuffix(strings.TrimSuffix(e.host, reg), "."); sub != "" && sub != e.host {
		subLabels := strings.Split(sub, ".")
		if len(subLabels) >= 4 {
			return "deep subdomain chain", true
		}
		for _, l := range subLabels {
			if len(l) >= 12 && entropy(l) >= 3.5 {
				return "random-looking subdomain", true
			}
		}
	}

	if pol.IsSuspiciousTLD(e.host) {
		return "suspicious top-level domain", true
	}

	if e.scheme == "http" || e.schemeless {
		if brands := pol.BrandsMentioned(display + " " + e.host + " " + e.path); len(brands) > 0 {
			return fmt.Sprintf("unencrypted link mentioning %s", brands[0].Name), true
		}
	}

	for _, b := range pol.BrandsMentioned(e.host) {
		if !pol.IsOfficialFor(b, e.host) {
			return fmt.Sprintf("host uses the %s name but is not an official %s domain", b.Name, b.Name), true
		}
	}
	return "", false
}

// isIPHost reports whether host is an IP literal, including integer and
// hex/octal-dotted forms browsers accept
func isIPHost(host string) bool {
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if !isNumericLabel(label) {
			return false
		}
	}
	return host != ""
}

func isNumericLabel(l string) bool {
	if l == "" {
		return false
	}
	lower := strings.ToLower(l)
	if strings.HasPrefix(lower, "0x") {
		lower = lower[2:]
		if lower == "" {
			return false
		}
		for i := 0; i < len(lower); i++ {
			c := lower[i]
			if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
				return false
			}
		}
		return true
	}
	for i := 0; i < len(lower); i++ {
		if lower[i] < '0' || lower[i] > '9' {
			return false
		}
	}
	return true
}
