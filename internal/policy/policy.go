// Package policy holds the data tables the threat analysis engine consults:
// brands and their official domains, URL shorteners, suspicious TLDs, known
// malicious hosts, urgency phrases and confusable characters.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Brand is an organisation commonly impersonated in phishing
type Brand struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Domains  []string `yaml:"domains"`
}

// Policy is the full set of tables. Build one with Default, Load or Parse;
// a compiled Policy is read-only and safe for concurrent use.
type Policy struct {
	ReplaceDefaults     bool              `yaml:"replace_defaults"`
	Brands              []Brand           `yaml:"brands"`
	Shorteners          []string          `yaml:"shorteners"`
	SuspiciousTLDs      []string          `yaml:"suspicious_tlds"`
	MaliciousHosts      []string          `yaml:"malicious_hosts"`
	UrgencyPhrases      []string          `yaml:"urgency_phrases"`
	Confusables         map[string]string `yaml:"confusables"`
	ConfusableSequences map[string]string `yaml:"confusable_sequences"`

	shorteners     map[string]struct{}
	suspiciousTLDs map[string]struct{}
	maliciousHosts map[string]struct{}
	official       map[string]string
	confusables    map[rune]string
	sequences      []sequence
}

type sequence struct {
	from string
	to   string
}

// Default returns the embedded starter policy
func Default() *Policy {
	p, err := Parse(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy is invalid: %v", err))
	}
	return p
}

// Parse decodes a policy document and compiles its lookup tables
func Parse(data []byte) (*Policy, error) {
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

// Load reads an extension file and merges it onto the default policy. An
// empty path returns the defaults.
func Load(path string) (*Policy, error) {
	base := Default()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	ext, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if ext.ReplaceDefaults {
		return ext, nil
	}
	return Merge(base, ext)
}

// Merge appends the entries of ext to base. Brands with the same name are
// combined.
func Merge(base, ext *Policy) (*Policy, error) {
	out := &Policy{
		Shorteners:          appendUnique(base.Shorteners, ext.Shorteners),
		SuspiciousTLDs:      appendUnique(base.SuspiciousTLDs, ext.SuspiciousTLDs),
		MaliciousHosts:      appendUnique(base.MaliciousHosts, ext.MaliciousHosts),
		UrgencyPhrases:      appendUnique(base.UrgencyPhrases, ext.UrgencyPhrases),
		Confusables:         map[string]string{},
		ConfusableSequences: map[string]string{},
	}

	out.Brands = append(out.Brands, base.Brands...)
	for _, b := range ext.Brands {
		merged := false
		for i := range out.Brands {
			if strings.EqualFold(out.Brands[i].Name, b.Name) {
				out.Brands[i] = Brand{
					Name:     out.Brands[i].Name,
					Keywords: appendUnique(out.Brands[i].Keywords, b.Keywords),
					Domains:  appendUnique(out.Brands[i].Domains, b.Domains),
				}
				merged = true
				break
			}
		}
		if !merged {
			out.Brands = append(out.Brands, b)
		}
	}

	for k, v := range base.Confusables {
		out.Confusables[k] = v
	}
	for k, v := range ext.Confusables {
		out.Confusables[k] = v
	}
	for k, v := range base.ConfusableSequences {
		out.ConfusableSequences[k] = v
	}
	for k, v := range ext.ConfusableSequences {
		out.ConfusableSequences[k] = v
	}

	if err := out.compile(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Policy) compile() error {
	p.shorteners = toSet(p.Shorteners)
	p.suspiciousTLDs = make(map[string]struct{}, len(p.SuspiciousTLDs))
	for _, tld := range p.SuspiciousTLDs {
		p.suspiciousTLDs[strings.TrimPrefix(normalize(tld), ".")] = struct{}{}
	}
	p.maliciousHosts = toSet(p.MaliciousHosts)

	p.official = make(map[string]string)
	for i, b := range p.Brands {
		if strings.TrimSpace(b.Name) == "" {
			return fmt.Errorf("brand %d has no name", i)
		}
		for j, kw := range b.Keywords {
			p.Brands[i].Keywords[j] = normalize(kw)
		}
		for j, d := range b.Domains {
			d = normalize(d)
			p.Brands[i].Domains[j] = d
			p.official[d] = b.Name
		}
	}

	p.confusables = make(map[rune]string, len(p.Confusables))
	for k, v := range p.Confusables {
		runes := []rune(k)
		if len(runes) != 1 {
			return fmt.Errorf("confusable %q must be a single character", k)
		}
		p.confusables[runes[0]] = strings.ToLower(v)
	}

	p.sequences = p.sequences[:0]
	for from, to := range p.ConfusableSequences {
		if from == "" {
			return fmt.Errorf("empty confusable sequence")
		}
		p.sequences = append(p.sequences, sequence{from: strings.ToLower(from), to: strings.ToLower(to)})
	}
	// longest first, then lexical, so replacement is independent of map order
	sort.Slice(p.sequences, func(i, j int) bool {
		if len(p.sequences[i].from) != len(p.sequences[j].from) {
			return len(p.sequences[i].from) > len(p.sequences[j].from)
		}
		return p.sequences[i].from < p.sequences[j].from
	})
	return nil
}

// IsShortener reports whether host, or the registrable domain given, is a
// known URL shortener
func (p *Policy) IsShortener(hosts ...string) bool {
	for _, h := range hosts {
		if _, ok := p.shorteners[normalize(h)]; ok {
			return true
		}
	}
	return false
}

// IsSuspiciousTLD reports whether the last label of host is on the list
func (p *Policy) IsSuspiciousTLD(host string) bool {
	host = normalize(host)
	if i := strings.LastIndex(host, "."); i >= 0 {
		host = host[i+1:]
	}
	_, ok := p.suspiciousTLDs[host]
	return ok
}

// IsMaliciousHost reports whether host or any parent domain is listed
func (p *Policy) IsMaliciousHost(host string) bool {
	host = normalize(host)
	for host != "" {
		if _, ok := p.maliciousHosts[host]; ok {
			return true
		}
		i := strings.Index(host, ".")
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return false
}

// OfficialBrand returns the brand owning domain, if any
func (p *Policy) OfficialBrand(domain string) (string, bool) {
	name, ok := p.official[normalize(domain)]
	return name, ok
}

// IsOfficialFor reports whether domain, or a parent of it, belongs to brand
func (p *Policy) IsOfficialFor(b Brand, domain string) bool {
	domain = normalize(domain)
	for _, d := range b.Domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// BrandsMentioned returns the brands whose keywords appear as whole words in
// text, in policy order
func (p *Policy) BrandsMentioned(text string) []Brand {
	lower := strings.ToLower(text)
	var found []Brand
	for _, b := range p.Brands {
		for _, kw := range b.Keywords {
			if ContainsWord(lower, kw) {
				found = append(found, b)
				break
			}
		}
	}
	return found
}

// UrgencyMatches returns the urgency phrases contained in text, in policy order
func (p *Policy) UrgencyMatches(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range p.UrgencyPhrases {
		if ContainsWord(lower, strings.ToLower(phrase)) {
			found = append(found, phrase)
		}
	}
	return found
}

// Confusable returns the ASCII replacement for r
func (p *Policy) Confusable(r rune) (string, bool) {
	s, ok := p.confusables[r]
	return s, ok
}

// ReplaceSequences applies the multi-character confusable replacements
func (p *Policy) ReplaceSequences(s string) string {
	for _, seq := range p.sequences {
		s = strings.ReplaceAll(s, seq.from, seq.to)
	}
	return s
}

// ContainsWord reports whether needle occurs in haystack bounded by
// non-alphanumeric characters. Both arguments must already be lower-case.
func ContainsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	start := 0
	for {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		if boundaryBefore(haystack, i) && boundaryAfter(haystack, end) {
			return true
		}
		start = i + 1
		if start >= len(haystack) {
			return false
		}
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func normalize(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[normalize(item)] = struct{}{}
	}
	return set
}

func appendUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, item := range list {
			key := normalize(item)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
