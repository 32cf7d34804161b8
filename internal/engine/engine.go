// Package engine implements the email threat analysis pipeline: header
// parsing, body extraction, authentication signals, link classification,
// indicator rules and risk scoring. Analysis is a pure function of the raw
// message and the engine's policy; it performs no I/O.
package engine

import (
	"fmt"
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/policy"
)

// Limits bounds the work done for a single message
type Limits struct {
	MaxHeaders int
	MaxParts   int
	MaxDepth   int
	MaxLinks   int
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{
		MaxHeaders: 500,
		MaxParts:   100,
		MaxDepth:   8,
		MaxLinks:   200,
	}
}

// Engine analyzes raw messages. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	policy *policy.Policy
	limits Limits
	rules  []Rule
}

// Option configures an Engine
type Option func(*Engine)

// WithLimits overrides the default limits
func WithLimits(l Limits) Option {
	return func(e *Engine) {
		e.limits = l
	}
}

// WithRules replaces the default rule set
func WithRules(rules ...Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

// New creates an engine using pol, or the default policy when pol is nil
func New(pol *policy.Policy, opts ...Option) *Engine {
	if pol == nil {
		pol = policy.Default()
	}
	e := &Engine{
		policy: pol,
		limits: DefaultLimits(),
		rules:  DefaultRules(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New(nil)

// Analyze runs the default engine over raw
func Analyze(raw string) *core.AnalysisResult {
	return defaultEngine.Analyze(raw)
}

// Analyze produces the threat assessment for one raw message. It never
// returns nil; an internal fault yields a result with an ANALYSIS_ERROR
// indicator.
func (e *Engine) Analyze(raw string) (result *core.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(fmt.Sprintf("analysis aborted: %v", r))
		}
	}()

	blk := ParseHeaders(raw, e.limits.MaxHeaders)
	body := ExtractBody(blk.Headers, blk.Body, e.limits)

	email := &core.ParsedEmail{
		Headers:     blk.Headers,
		BodyText:    body.Text,
		BodyHTML:    body.HTML,
		ContentType: body.ContentType,
		Parts:       body.Parts,
	}

	links := ExtractLinks(email.BodyText, email.BodyHTML, e.policy, e.limits.MaxLinks)

	diag := mergeDiagnostics(blk.Diagnostics, body.Diagnostics)
	if links.Truncated {
		diag.truncated("link limit reached")
	}

	ctx := &Context{
		Email:          email,
		HasHeaderBlock: blk.HasHeaderBlock,
		Auth:           ExtractAuthSignals(raw, blk.Headers),
		Links:          links.Links,
		VisibleText:    strings.TrimSpace(email.BodyText + "\n" + links.HTMLText),
		Diagnostics:    diag,
		Policy:         e.policy,
	}

	indicators := Evaluate(e.rules, ctx)
	score := Score(indicators)

	headers := blk.Headers.Map()
	return &core.AnalysisResult{
		Score:      score,
		RiskLevel:  RiskLevelFor(score),
		Summary:    summarize(blk.Headers),
		Signals:    ctx.Auth.Signals,
		Indicators: indicators,
		Links:      links.Links,
		Headers:    headers,
	}
}

func summarize(h core.Headers) core.Summary {
	field := func(name string) *string {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			return nil
		}
		return core.StringPtr(decodeHeader(v))
	}
	return core.Summary{
		From:    field("From"),
		To:      field("To"),
		Subject: field("Subject"),
	}
}

func mergeDiagnostics(parts ...Diagnostics) Diagnostics {
	var out Diagnostics
	for _, d := range parts {
		if d.MalformedHeaders > 0 && out.MalformedHeaders == 0 {
			out.FirstMalformedLine = d.FirstMalformedLine
		}
		out.MalformedHeaders += d.MalformedHeaders
		for _, v := range d.UnknownEncodings {
			out.unknownEncoding(v)
		}
		for _, v := range d.DecodeErrors {
			out.decodeError(v)
		}
		for _, v := range d.MalformedMIME {
			out.malformedMIME(v)
		}
		for _, v := range d.Truncations {
			out.truncated(v)
		}
	}
	return out
}

func failedResult(message string) *core.AnalysisResult {
	indicators := []core.Indicator{indicator(core.SeverityLow, CodeAnalysisError, message)}
	score := Score(indicators)
	return &core.AnalysisResult{
		Score:     score,
		RiskLevel: RiskLevelFor(score),
		Signals: core.AuthSignals{
			SPF:   core.AuthSignal{Mechanism: core.MechanismSPF},
			DKIM:  core.AuthSignal{Mechanism: core.MechanismDKIM},
			DMARC: core.AuthSignal{Mechanism: core.MechanismDMARC},
		},
		Indicators: indicators,
		Links:      []core.Link{},
		Headers:    map[string][]string{},
	}
}
