package core

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades how strongly an indicator suggests the message is hostile
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Weight returns the score contribution of a single indicator of this severity
func (s Severity) Weight() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityLow:
		return 5
	case SeverityMedium:
		return 15
	case SeverityHigh:
		return 30
	case SeverityCritical:
		return 50
	default:
		return 0
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "info":
		*s = SeverityInfo
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", string(text))
	}
	return nil
}

// Classification is the verdict for a single embedded link
type Classification int

const (
	ClassSafe Classification = iota
	ClassSuspicious
	ClassMalicious
	ClassShortener
	ClassMismatch
)

func (c Classification) String() string {
	switch c {
	case ClassSafe:
		return "safe"
	case ClassSuspicious:
		return "suspicious"
	case ClassMalicious:
		return "malicious"
	case ClassShortener:
		return "shortener"
	case ClassMismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// MarshalText implements encoding.TextMarshaler
func (c Classification) MarshalText() ([]byte, error) {
	switch c {
	case ClassSafe, ClassSuspicious, ClassMalicious, ClassShortener, ClassMismatch:
		return []byte(c.String()), nil
	default:
		return nil, fmt.Errorf("invalid classification %d", int(c))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Classification) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "safe":
		*c = ClassSafe
	case "suspicious":
		*c = ClassSuspicious
	case "malicious":
		*c = ClassMalicious
	case "shortener":
		*c = ClassShortener
	case "mismatch":
		*c = ClassMismatch
	default:
		return fmt.Errorf("unknown classification %q", string(text))
	}
	return nil
}

// Mechanism names an email authentication mechanism
type Mechanism string

const (
	MechanismSPF   Mechanism = "spf"
	MechanismDKIM  Mechanism = "dkim"
	MechanismDMARC Mechanism = "dmarc"
)

// Mechanisms lists every mechanism in reporting order
var Mechanisms = []Mechanism{MechanismSPF, MechanismDKIM, MechanismDMARC}

// RiskLevel is the presentation band for a score
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "Minimal"
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// Header is one header field as it appeared in the source
type Header struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	RawIndex int    `json:"rawIndex"`
}

// Headers is an ordered header multimap; duplicates are kept in source order
type Headers []Header

// Get returns the first value for name, compared case-insensitively
func (h Headers) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in source order
func (h Headers) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Has reports whether at least one field called name exists
func (h Headers) Has(name string) bool {
	return h.Count(name) > 0
}

// Count returns how many fields called name exist
func (h Headers) Count(name string) int {
	n := 0
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			n++
		}
	}
	return n
}

// Map groups values by lower-cased header name
func (h Headers) Map() map[string][]string {
	m := make(map[string][]string, len(h))
	for _, f := range h {
		key := strings.ToLower(f.Name)
		m[key] = append(m[key], f.Value)
	}
	return m
}

// MimePart describes one leaf or container part of a MIME tree
type MimePart struct {
	ContentType string `json:"contentType"`
	Charset     string `json:"charset,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Depth       int    `json:"depth"`
	Size        int    `json:"size"`
}

// ParsedEmail is the structured view of a raw message for a single analysis
type ParsedEmail struct {
	Headers     Headers
	BodyText    string
	BodyHTML    string
	ContentType string
	Parts       []MimePart
}

// HasHTML reports whether an HTML body view exists
func (p *ParsedEmail) HasHTML() bool {
	return p.BodyHTML != ""
}

// AuthSignal is the interpreted outcome of one authentication mechanism
type AuthSignal struct {
	Mechanism Mechanism `json:"mechanism"`
	Pass      bool      `json:"pass"`
	RawResult *string   `json:"rawResult"`
	Domain    string    `json:"domain,omitempty"`
}

// Absent reports whether no result at all was observed for the mechanism
func (a AuthSignal) Absent() bool {
	return a.RawResult == nil
}

// Result returns the raw result or "none" when absent
func (a AuthSignal) Result() string {
	if a.RawResult == nil {
		return "none"
	}
	return *a.RawResult
}

// AuthSignals holds one signal per mechanism
type AuthSignals struct {
	SPF   AuthSignal `json:"spf"`
	DKIM  AuthSignal `json:"dkim"`
	DMARC AuthSignal `json:"dmarc"`
}

// Get returns the signal for a mechanism
func (s AuthSignals) Get(m Mechanism) AuthSignal {
	switch m {
	case MechanismSPF:
		return s.SPF
	case MechanismDKIM:
		return s.DKIM
	case MechanismDMARC:
		return s.DMARC
	default:
		return AuthSignal{Mechanism: m}
	}
}

// Link is one distinct URL found in the body
type Link struct {
	URL            string         `json:"url"`
	DisplayText    *string        `json:"displayText"`
	Classification Classification `json:"classification"`
	Host           string         `json:"host,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// Indicator is one severity-tagged finding
type Indicator struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Summary carries the display headers; nil marks an absent header
type Summary struct {
	From    *string `json:"from"`
	To      *string `json:"to"`
	Subject *string `json:"subject"`
}

// AnalysisResult is the complete, deterministic output of one analysis
type AnalysisResult struct {
	Score      int                 `json:"score"`
	RiskLevel  RiskLevel           `json:"riskLevel"`
	Summary    Summary             `json:"summary"`
	Signals    AuthSignals         `json:"signals"`
	Indicators []Indicator         `json:"indicators"`
	Links      []Link              `json:"links"`
	Headers    map[string][]string `json:"headers"`
}

// HasIndicator reports whether an indicator with the given code is present
func (r *AnalysisResult) HasIndicator(code string) bool {
	for _, ind := range r.Indicators {
		if ind.Code == code {
			return true
		}
	}
	return false
}

// IndicatorCodes returns the indicator codes in order
func (r *AnalysisResult) IndicatorCodes() []string {
	codes := make([]string, 0, len(r.Indicators))
	for _, ind := range r.Indicators {
		codes = append(codes, ind.Code)
	}
	return codes
}

// Assessment wraps an analysis result with service-level verdict data
type Assessment struct {
	ProcessingID string          `json:"processingId"`
	Digest       string          `json:"digest"`
	Result       *AnalysisResult `json:"result"`
	IsThreat     bool            `json:"isThreat"`
	Trusted      bool            `json:"trusted"`
	Cached       bool            `json:"cached"`
	AnalyzedAt   time.Time       `json:"analyzedAt"`
}

// CacheEntry is a stored analysis keyed by the digest of the raw input
type CacheEntry struct {
	Digest    string
	Result    *AnalysisResult
	LastSeen  time.Time
	ExpiresAt time.Time
}

// StringPtr returns a pointer to a copy of s
func StringPtr(s string) *string {
	return &s
}
