package engine

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/policy"
)

const cleanMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.org\r\n" +
	"Subject: Lunch\r\n" +
	"Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n" +
	"Message-ID: <1@example.com>\r\n" +
	"Authentication-Results: mx.example.org; spf=pass smtp.mailfrom=example.com;\r\n" +
	" dkim=fail header.d=example.com; dmarc=pass header.from=example.com\r\n" +
	"\r\n" +
	"See you at noon.\r\n"

const phishMessage = "From: \"PayPal Support\" <support@random-domain.ru>\r\n" +
	"To: victim@example.org\r\n" +
	"Subject: Urgent: verify your account\r\n" +
	"Reply-To: help@collector.example.net\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"zz\"\r\n" +
	"\r\n" +
	"--zz\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Your account will be suspended. Log in at http://evil.example/login\r\n" +
	"--zz\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<p>Your account will be suspended.</p><a href=3D\"http://evil.example/login\">http://mybank.com/login</a>\r\n" +
	"--zz--\r\n"

func TestAnalyze_AuthenticationExample(t *testing.T) {
	res := Analyze(cleanMessage)

	if !res.Signals.SPF.Pass || res.Signals.DKIM.Pass || !res.Signals.DMARC.Pass {
		t.Errorf("Expected signals {true false true}, got {%v %v %v}",
			res.Signals.SPF.Pass, res.Signals.DKIM.Pass, res.Signals.DMARC.Pass)
	}
	ind, ok := findIndicator(res.Indicators, CodeDKIMFail)
	if !ok || ind.Severity != core.SeverityMedium {
		t.Fatalf("Expected medium DKIM_FAIL, got %+v", res.Indicators)
	}
	if len(res.Indicators) != 1 {
		t.Errorf("Expected only DKIM_FAIL, got %v", res.IndicatorCodes())
	}
	if res.Score != 15 || res.RiskLevel != core.RiskMinimal {
		t.Errorf("Expected score 15 Minimal, got %d %s", res.Score, res.RiskLevel)
	}
	if res.Summary.Subject == nil || *res.Summary.Subject != "Lunch" {
		t.Errorf("Expected subject Lunch, got %v", res.Summary.Subject)
	}
	if got := res.Headers["authentication-results"]; len(got) != 1 {
		t.Errorf("Expected lower-cased header map entry, got %v", res.Headers)
	}
}

func TestAnalyze_PhishingMessage(t *testing.T) {
	res := Analyze(phishMessage)

	for _, want := range []struct {
		code string
		sev  core.Severity
	}{
		{CodeDisplayNameSpoof, core.SeverityCritical},
		{CodeFromReplyToMismatch, core.SeverityHigh},
		{CodeSuspiciousLink, core.SeverityHigh},
		{CodeUrgencyLanguage, core.SeverityLow},
		{CodeMissingAuthResults, core.SeverityLow},
	} {
		ind, ok := findIndicator(res.Indicators, want.code)
		if !ok || ind.Severity != want.sev {
			t.Errorf("Expected %s %s, got %v", want.sev, want.code, res.IndicatorCodes())
		}
	}

	if len(res.Links) != 1 {
		t.Fatalf("Expected 1 link, got %+v", res.Links)
	}
	if res.Links[0].Classification != core.ClassMismatch {
		t.Errorf("Expected mismatch link, got %s", res.Links[0].Classification)
	}
	if res.Score != 100 || res.RiskLevel != core.RiskCritical {
		t.Errorf("Expected score 100 Critical, got %d %s", res.Score, res.RiskLevel)
	}
}

func TestAnalyze_HeaderlessInput(t *testing.T) {
	res := Analyze("Hello, this is a plain body with no headers at all.")

	if res.Summary.From != nil || res.Summary.To != nil || res.Summary.Subject != nil {
		t.Errorf("Expected absent summary, got %+v", res.Summary)
	}
	for _, code := range []string{CodeMissingFrom, CodeMissingTo, CodeMissingSubject} {
		ind, ok := findIndicator(res.Indicators, code)
		if !ok || ind.Severity != core.SeverityLow {
			t.Errorf("Expected low %s, got %v", code, res.IndicatorCodes())
		}
	}
	if res.Score >= 40 {
		t.Errorf("Expected score below 40, got %d", res.Score)
	}
}

func TestAnalyze_HeadersWithoutAuthentication(t *testing.T) {
	raw := "From: Alice <alice@example.com>\r\n" +
		"To: bob@example.org\r\n" +
		"Subject: Lunch\r\n" +
		"Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n" +
		"Message-ID: <2@example.com>\r\n" +
		"\r\n" +
		"See you at noon.\r\n"

	res := Analyze(raw)

	ind, ok := findIndicator(res.Indicators, CodeAllAuthFail)
	if !ok || ind.Severity != core.SeverityHigh {
		t.Fatalf("Expected high ALL_AUTH_FAIL, got %v", res.IndicatorCodes())
	}
	if !res.HasIndicator(CodeMissingAuthResults) {
		t.Errorf("Expected MISSING_AUTH_RESULTS, got %v", res.IndicatorCodes())
	}
	if res.Score < 35 {
		t.Errorf("Expected score of at least 35, got %d", res.Score)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	for _, raw := range []string{cleanMessage, phishMessage, "", "garbage\x00\xff"} {
		first, err := json.Marshal(Analyze(raw))
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		second, _ := json.Marshal(Analyze(raw))
		if !bytes.Equal(first, second) {
			t.Errorf("Expected identical output for repeated analysis of %q", raw)
		}
	}
}

func TestAnalyze_NeverFails(t *testing.T) {
	inputs := []string{
		"",
		"\x00\xff\xfe",
		strings.Repeat("From: x\n", 2000),
		"Content-Type: multipart/mixed; boundary=\n\n--",
		"Content-Type: multipart/mixed; boundary=x\n\n--x\nContent-Type: text/plain\n\nunterminated",
		"Content-Type: text/html\n\n<a href=\"http://[::1\">broken</a><a href='javascript:alert(1)'>x</a>",
		"Content-Transfer-Encoding: base64\n\n====",
		strings.Repeat("\n", 100),
		":\n:\n\n",
	}

	for _, raw := range inputs {
		res := Analyze(raw)
		if res == nil {
			t.Fatalf("Analyze returned nil for %q", raw)
		}
		if res.Score < 0 || res.Score > 100 {
			t.Errorf("Score %d out of range for %q", res.Score, raw)
		}
		if res.Indicators == nil || res.Links == nil || res.Headers == nil {
			t.Errorf("Expected non-nil collections for %q", raw)
		}
	}
}

func TestAnalyze_RecoversFromRulePanic(t *testing.T) {
	e := New(nil, WithRules(NewRule("boom", func(*Context) []core.Indicator {
		panic("rule exploded")
	})))

	res := e.Analyze(cleanMessage)

	if !res.HasIndicator(CodeAnalysisError) {
		t.Fatalf("Expected ANALYSIS_ERROR, got %v", res.IndicatorCodes())
	}
	if res.Score != 5 {
		t.Errorf("Expected score 5, got %d", res.Score)
	}
}

func TestAnalyze_CustomRules(t *testing.T) {
	e := New(policy.Default(), WithRules(NewRule("always", func(*Context) []core.Indicator {
		return []core.Indicator{{Severity: core.SeverityHigh, Code: "CUSTOM", Message: "custom rule"}}
	})))

	res := e.Analyze(cleanMessage)

	if len(res.Indicators) != 1 || res.Indicators[0].Code != "CUSTOM" || res.Score != 30 {
		t.Errorf("Expected only the custom indicator, got %+v", res.Indicators)
	}
}

func TestAnalyze_TruncatesLinks(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 5; i++ {
		body.WriteString("https://example.com/page")
		body.WriteByte(byte('a' + i))
		body.WriteString("\n")
	}
	e := New(nil, WithLimits(Limits{MaxHeaders: 10, MaxParts: 10, MaxDepth: 2, MaxLinks: 2}))

	res := e.Analyze("From: a@example.com\nTo: b@example.com\nSubject: s\n\n" + body.String())

	if len(res.Links) != 2 {
		t.Errorf("Expected 2 links, got %d", len(res.Links))
	}
	if !res.HasIndicator(CodeTruncatedAnalysis) {
		t.Errorf("Expected TRUNCATED_ANALYSIS, got %v", res.IndicatorCodes())
	}
}

func TestAnalyze_Concurrent(t *testing.T) {
	want, _ := json.Marshal(Analyze(phishMessage))

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := json.Marshal(Analyze(phishMessage))
			if !bytes.Equal(got, want) {
				errs <- string(got)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("Concurrent analysis diverged: %s", got)
	}
}

func TestAnalyze_JSONShape(t *testing.T) {
	data, err := json.Marshal(Analyze("Hello, this is a plain body with no headers at all."))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	for _, fragment := range []string{
		`"summary":{"from":null,"to":null,"subject":null}`,
		`"riskLevel":"Low"`,
		`"spf":{"mechanism":"spf","pass":false,"rawResult":null}`,
		`"severity":"low","code":"MISSING_FROM"`,
		`"links":[]`,
		`"headers":{}`,
	} {
		if !strings.Contains(s, fragment) {
			t.Errorf("Expected JSON to contain %s, got %s", fragment, s)
		}
	}
}
