package engine

import (
	"errors"
	"regexp"
	"strings"

	"github.com/emersion/go-msgauth/authres"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// UnverifiedSignature is the raw DKIM result reported when a signature is
// present but no verifier recorded an outcome
const UnverifiedSignature = "unverified-signature-present"

// AuthResult is the merged authentication evidence of one message
type AuthResult struct {
	Signals core.AuthSignals
	// HasAuthResults is true when at least one Authentication-Results header exists
	HasAuthResults bool
	// Conflicts lists mechanisms whose results differ between headers
	Conflicts []core.Mechanism
}

type observation struct {
	result string
	domain string
}

var (
	lenientResultRe = regexp.MustCompile(`(?i)\b(spf|dkim|dmarc)\s*=\s*([a-z]+)`)
	lenientDomainRe = regexp.MustCompile(`(?i)\b(?:header\.d|header\.from|smtp\.mailfrom)\s*=\s*([^\s;()]+)`)
)

// ExtractAuthSignals derives SPF, DKIM and DMARC outcomes from the trace
// headers. The last Authentication-Results header in source order wins per
// mechanism. No network lookups are performed.
func ExtractAuthSignals(raw string, headers core.Headers) AuthResult {
	var res AuthResult
	observed := map[core.Mechanism][]observation{}

	for _, v := range headers.Values("Authentication-Results") {
		res.HasAuthResults = true
		for m, obs := range parseAuthenticationResults(v) {
			observed[m] = append(observed[m], obs)
		}
	}

	receivedSPF := headers.Values("Received-SPF")
	hasSignature := headers.Has("DKIM-Signature")

	for _, m := range core.Mechanisms {
		signal := core.AuthSignal{Mechanism: m}
		if obs := observed[m]; len(obs) > 0 {
			last := obs[len(obs)-1]
			signal.RawResult = core.StringPtr(last.result)
			signal.Pass = last.result == "pass"
			signal.Domain = last.domain
			for _, o := range obs[:len(obs)-1] {
				if o.result != last.result {
					res.Conflicts = append(res.Conflicts, m)
					break
				}
			}
		} else {
			switch m {
			case core.MechanismSPF:
				if len(receivedSPF) > 0 {
					signal.RawResult = core.StringPtr(receivedSPFResult(receivedSPF[len(receivedSPF)-1]))
					signal.Pass = *signal.RawResult == "pass"
				}
			case core.MechanismDKIM:
				if hasSignature {
					signal.RawResult = core.StringPtr(UnverifiedSignature)
					signal.Domain = dkimSigningDomain(raw, headers)
				}
			}
		}
		switch m {
		case core.MechanismSPF:
			res.Signals.SPF = signal
		case core.MechanismDKIM:
			res.Signals.DKIM = signal
		case core.MechanismDMARC:
			res.Signals.DMARC = signal
		}
	}
	return res
}

// parseAuthenticationResults interprets one header value. Mechanisms the
// strict parser did not yield, including every mechanism of a header it
// rejects, are recovered by scanning for mechanism=result tokens.
func parseAuthenticationResults(value string) map[core.Mechanism]observation {
	out := map[core.Mechanism]observation{}

	if _, results, err := authres.Parse(value); err == nil {
		for _, r := range results {
			switch r := r.(type) {
			case *authres.SPFResult:
				if _, ok := out[core.MechanismSPF]; !ok {
					out[core.MechanismSPF] = observation{result: resultValue(string(r.Value)), domain: domainPart(r.From)}
				}
			case *authres.DKIMResult:
				mergeDKIM(out, observation{result: resultValue(string(r.Value)), domain: strings.ToLower(r.Domain)})
			case *authres.DMARCResult:
				if _, ok := out[core.MechanismDMARC]; !ok {
					out[core.MechanismDMARC] = observation{result: resultValue(string(r.Value)), domain: strings.ToLower(r.From)}
				}
			}
		}
	}

	lenient := map[core.Mechanism]observation{}
	for _, segment := range strings.Split(value, ";") {
		match := lenientResultRe.FindStringSubmatch(segment)
		if match == nil {
			continue
		}
		m := core.Mechanism(strings.ToLower(match[1]))
		obs := observation{result: resultValue(match[2])}
		if d := lenientDomainRe.FindStringSubmatch(segment); d != nil {
			obs.domain = domainPart(d[1])
		}
		if m == core.MechanismDKIM {
			mergeDKIM(lenient, obs)
			continue
		}
		if _, ok := lenient[m]; !ok {
			lenient[m] = obs
		}
	}
	for m, obs := range lenient {
		if _, ok := out[m]; !ok {
			out[m] = obs
		}
	}
	return out
}

// mergeDKIM keeps the first DKIM result unless a later one passes
func mergeDKIM(out map[core.Mechanism]observation, obs observation) {
	prev, ok := out[core.MechanismDKIM]
	if !ok || (prev.result != "pass" && obs.result == "pass") {
		out[core.MechanismDKIM] = obs
	}
}

func receivedSPFResult(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "none"
	}
	token := strings.ToLower(strings.Trim(fields[0], "();:,"))
	if token == "" {
		return "none"
	}
	return token
}

var errLookupDisabled = errors.New("dkim key lookup disabled")

// dkimSigningDomain recovers the d= tag of the first DKIM signature. The
// verifier runs with a lookup that always refuses, so nothing ever passes
// and no network access happens.
func dkimSigningDomain(raw string, headers core.Headers) string {
	verifs, err := dkim.VerifyWithOptions(strings.NewReader(raw), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			return nil, errLookupDisabled
		},
	})
	if err == nil {
		for _, v := range verifs {
			if v.Domain != "" {
				return strings.ToLower(v.Domain)
			}
		}
	}

	for _, tag := range strings.Split(headers.Get("DKIM-Signature"), ";") {
		k, v, ok := strings.Cut(tag, "=")
		if ok && strings.TrimSpace(k) == "d" {
			return strings.ToLower(strings.Join(strings.Fields(v), ""))
		}
	}
	return ""
}

func resultValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "none"
	}
	return v
}

// domainPart returns the domain of an address or the value itself
func domainPart(v string) string {
	v = strings.Trim(strings.TrimSpace(v), "<>")
	if i := strings.LastIndex(v, "@"); i >= 0 {
		v = v[i+1:]
	}
	return strings.ToLower(v)
}
