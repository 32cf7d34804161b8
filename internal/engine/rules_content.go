package engine

import (
	"fmt"
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// maxListedPhrases caps how many urgency phrases an indicator names
const maxListedPhrases = 5

func linksRule(ctx *Context) []core.Indicator {
	var out []core.Indicator
	for _, l := range ctx.Links {
		switch l.Classification {
		case core.ClassMalicious:
			out = append(out, indicator(core.SeverityCritical, CodeSuspiciousLink,
				fmt.Sprintf("Malicious link %s: %s", l.URL, l.Reason)))
		case core.ClassMismatch:
			out = append(out, indicator(core.SeverityHigh, CodeSuspiciousLink,
				fmt.Sprintf("Deceptive link %s: %s", l.URL, l.Reason)))
		case core.ClassShortener:
			out = append(out, indicator(core.SeverityLow, CodeURLShortener,
				fmt.Sprintf("Shortened link %s hides its destination", l.URL)))
		case core.ClassSuspicious:
			out = append(out, indicator(core.SeverityLow, CodeSuspiciousLinkHost,
				fmt.Sprintf("Suspicious link %s: %s", l.URL, l.Reason)))
		case core.ClassSafe:
		}
	}
	return out
}

func urgencyRule(ctx *Context) []core.Indicator {
	text := ctx.Email.Headers.Get("Subject") + "\n" + ctx.VisibleText
	matches := ctx.Policy.UrgencyMatches(text)
	if len(matches) == 0 {
		return nil
	}

	listed := matches
	if len(listed) > maxListedPhrases {
		listed = listed[:maxListedPhrases]
	}
	quoted := make([]string, len(listed))
	for i, m := range listed {
		quoted[i] = fmt.Sprintf("%q", m)
	}
	msg := "Urgency or pressure language: " + strings.Join(quoted, ", ")
	if extra := len(matches) - len(listed); extra > 0 {
		msg += fmt.Sprintf(" and %d more", extra)
	}
	return []core.Indicator{indicator(core.SeverityLow, CodeUrgencyLanguage, msg)}
}
