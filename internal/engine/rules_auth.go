package engine

import (
	"fmt"
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/core"
)

var failCodes = map[core.Mechanism]string{
	core.MechanismSPF:   CodeSPFFail,
	core.MechanismDKIM:  CodeDKIMFail,
	core.MechanismDMARC: CodeDMARCFail,
}

func authenticationRule(ctx *Context) []core.Indicator {
	auth := ctx.Auth
	var out []core.Indicator

	if !auth.HasAuthResults {
		out = append(out, indicator(core.SeverityLow, CodeMissingAuthResults,
			"No Authentication-Results header found"))
	}

	// A bare body has no trace headers to judge
	if ctx.HasHeaderBlock && len(ctx.Email.Headers) > 0 {
		var failing []core.AuthSignal
		for _, m := range core.Mechanisms {
			if s := auth.Signals.Get(m); !s.Pass {
				failing = append(failing, s)
			}
		}

		if len(failing) == len(core.Mechanisms) {
			parts := make([]string, 0, len(failing))
			for _, s := range failing {
				parts = append(parts, fmt.Sprintf("%s=%s", s.Mechanism, s.Result()))
			}
			out = append(out, indicator(core.SeverityHigh, CodeAllAuthFail,
				"SPF, DKIM and DMARC all failed ("+strings.Join(parts, ", ")+")"))
		} else {
			for _, s := range failing {
				out = append(out, indicator(core.SeverityMedium, failCodes[s.Mechanism],
					fmt.Sprintf("%s did not pass (result: %s)", strings.ToUpper(string(s.Mechanism)), s.Result())))
			}
		}
	}

	if len(auth.Conflicts) > 0 {
		names := make([]string, 0, len(auth.Conflicts))
		for _, m := range auth.Conflicts {
			names = append(names, strings.ToUpper(string(m)))
		}
		out = append(out, indicator(core.SeverityMedium, CodeConflictingAuthResults,
			"Authentication-Results headers disagree on "+strings.Join(names, ", ")))
	}
	return out
}
