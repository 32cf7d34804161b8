package engine

import (
	"fmt"
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// maxReceivedHops is the Received count above which the route is unusual
const maxReceivedHops = 8

func parseDiagnosticsRule(ctx *Context) []core.Indicator {
	d := ctx.Diagnostics
	var out []core.Indicator
	if d.MalformedHeaders > 0 {
		out = append(out, indicator(core.SeverityLow, CodeMalformedHeader,
			fmt.Sprintf("%d malformed header line(s) skipped, first at line %d", d.MalformedHeaders, d.FirstMalformedLine)))
	}
	if len(d.UnknownEncodings) > 0 {
		out = append(out, indicator(core.SeverityInfo, CodeUnknownEncoding,
			"Unknown Content-Transfer-Encoding: "+strings.Join(d.UnknownEncodings, ", ")))
	}
	if len(d.DecodeErrors) > 0 {
		out = append(out, indicator(core.SeverityLow, CodeDecodeError,
			"Body could not be fully decoded: "+strings.Join(d.DecodeErrors, "; ")))
	}
	if len(d.MalformedMIME) > 0 {
		out = append(out, indicator(core.SeverityLow, CodeMalformedMIME,
			"Malformed MIME structure: "+strings.Join(d.MalformedMIME, "; ")))
	}
	if len(d.Truncations) > 0 {
		out = append(out, indicator(core.SeverityLow, CodeTruncatedAnalysis,
			"Analysis was limited: "+strings.Join(d.Truncations, "; ")))
	}
	return out
}

func missingHeadersRule(ctx *Context) []core.Indicator {
	h := ctx.Email.Headers
	var out []core.Indicator
	for _, req := range []struct {
		name string
		code string
	}{
		{"From", CodeMissingFrom},
		{"To", CodeMissingTo},
		{"Subject", CodeMissingSubject},
	} {
		if strings.TrimSpace(h.Get(req.name)) == "" {
			out = append(out, indicator(core.SeverityLow, req.code, fmt.Sprintf("Missing %s header", req.name)))
		}
	}

	if !ctx.HasHeaderBlock {
		return out
	}
	if !h.Has("Date") {
		out = append(out, indicator(core.SeverityInfo, CodeMissingDate, "Missing Date header"))
	}
	if !h.Has("Message-ID") {
		out = append(out, indicator(core.SeverityInfo, CodeMissingMessageID, "Missing Message-ID header"))
	}
	return out
}

func duplicateHeadersRule(ctx *Context) []core.Indicator {
	h := ctx.Email.Headers
	var out []core.Indicator
	for _, d := range []struct {
		name     string
		severity core.Severity
	}{
		{"From", core.SeverityHigh},
		{"To", core.SeverityMedium},
		{"Subject", core.SeverityMedium},
		{"Date", core.SeverityMedium},
		{"Reply-To", core.SeverityMedium},
		{"Sender", core.SeverityMedium},
		{"Message-ID", core.SeverityMedium},
	} {
		if n := h.Count(d.name); n > 1 {
			out = append(out, indicator(d.severity, CodeDuplicateHeader,
				fmt.Sprintf("%s header appears %d times", d.name, n)))
		}
	}
	return out
}

func receivedChainRule(ctx *Context) []core.Indicator {
	if n := ctx.Email.Headers.Count("Received"); n > maxReceivedHops {
		return []core.Indicator{indicator(core.SeverityInfo, CodeExcessiveHops,
			fmt.Sprintf("Message passed through %d mail servers", n))}
	}
	return nil
}
