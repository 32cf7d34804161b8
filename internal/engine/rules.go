package engine

import (
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/policy"
)

// Indicator codes
const (
	CodeMalformedHeader        = "MALFORMED_HEADER"
	CodeUnknownEncoding        = "UNKNOWN_ENCODING"
	CodeDecodeError            = "DECODE_ERROR"
	CodeMalformedMIME          = "MALFORMED_MIME"
	CodeTruncatedAnalysis      = "TRUNCATED_ANALYSIS"
	CodeAnalysisError          = "ANALYSIS_ERROR"
	CodeMissingFrom            = "MISSING_FROM"
	CodeMissingTo              = "MISSING_TO"
	CodeMissingSubject         = "MISSING_SUBJECT"
	CodeMissingDate            = "MISSING_DATE"
	CodeMissingMessageID       = "MISSING_MESSAGE_ID"
	CodeDuplicateHeader        = "DUPLICATE_HEADER"
	CodeMissingAuthResults     = "MISSING_AUTH_RESULTS"
	CodeSPFFail                = "SPF_FAIL"
	CodeDKIMFail               = "DKIM_FAIL"
	CodeDMARCFail              = "DMARC_FAIL"
	CodeAllAuthFail            = "ALL_AUTH_FAIL"
	CodeConflictingAuthResults = "CONFLICTING_AUTH_RESULTS"
	CodeFromReplyToMismatch    = "FROM_REPLYTO_MISMATCH"
	CodeReturnPathMismatch     = "RETURN_PATH_MISMATCH"
	CodeDisplayNameSpoof       = "DISPLAY_NAME_SPOOF"
	CodeDisplayNameAddress     = "DISPLAY_NAME_ADDRESS"
	CodeSuspiciousLink         = "SUSPICIOUS_LINK"
	CodeURLShortener           = "URL_SHORTENER"
	CodeSuspiciousLinkHost     = "SUSPICIOUS_LINK_HOST"
	CodeUrgencyLanguage        = "URGENCY_LANGUAGE"
	CodeExcessiveHops          = "EXCESSIVE_HOPS"
)

// Context is everything a rule may inspect. Rules must treat it as read-only.
type Context struct {
	Email          *core.ParsedEmail
	HasHeaderBlock bool
	Auth           AuthResult
	Links          []core.Link
	// VisibleText is the plain-text view plus the rendered HTML view
	VisibleText string
	Diagnostics Diagnostics
	Policy      *policy.Policy
}

// Rule inspects a Context and reports zero or more indicators
type Rule interface {
	Name() string
	Evaluate(ctx *Context) []core.Indicator
}

type ruleFunc struct {
	name string
	fn   func(ctx *Context) []core.Indicator
}

func (r ruleFunc) Name() string {
	return r.name
}

func (r ruleFunc) Evaluate(ctx *Context) []core.Indicator {
	return r.fn(ctx)
}

// NewRule adapts a function to the Rule interface
func NewRule(name string, fn func(ctx *Context) []core.Indicator) Rule {
	return ruleFunc{name: name, fn: fn}
}

// DefaultRules returns the built-in rules in evaluation order
func DefaultRules() []Rule {
	return []Rule{
		NewRule("parse-diagnostics", parseDiagnosticsRule),
		NewRule("missing-headers", missingHeadersRule),
		NewRule("duplicate-headers", duplicateHeadersRule),
		NewRule("authentication", authenticationRule),
		NewRule("reply-path", replyPathRule),
		NewRule("display-name", displayNameRule),
		NewRule("links", linksRule),
		NewRule("urgency", urgencyRule),
		NewRule("received-chain", receivedChainRule),
	}
}

// Evaluate runs rules in order and concatenates their indicators
func Evaluate(rules []Rule, ctx *Context) []core.Indicator {
	indicators := make([]core.Indicator, 0)
	for _, r := range rules {
		indicators = append(indicators, r.Evaluate(ctx)...)
	}
	return indicators
}

func indicator(sev core.Severity, code, message string) core.Indicator {
	return core.Indicator{Severity: sev, Code: code, Message: message}
}
