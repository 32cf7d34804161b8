package filter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/utils"
	"go.uber.org/zap/zaptest"
)

func newTestPostfixFilter(t *testing.T, cfg config.PostfixConfig) *PostfixFilter {
	logger := zaptest.NewLogger(t)
	return NewPostfixFilter(newTestService(t), logger, utils.NewTextProcessor(logger), cfg)
}

func TestPostfixFilter_Annotate(t *testing.T) {
	f := newTestPostfixFilter(t, config.PostfixConfig{ModifySubject: true})

	a, err := f.ProcessEmail(context.Background(), phishMessage)
	if err != nil {
		t.Fatalf("ProcessEmail failed: %v", err)
	}
	if !a.IsThreat {
		t.Fatalf("Expected the phishing message to be a threat, score %d", a.Result.Score)
	}

	out := string(f.annotate([]byte(phishMessage), a))

	if !strings.HasPrefix(out, "X-Threat-Score: 100\r\nX-Threat-Level: Critical\r\nX-Threat-Indicators: ") {
		t.Errorf("Expected verdict headers first, got %q", out[:80])
	}
	if !strings.Contains(out, "DISPLAY_NAME_SPOOF") {
		t.Error("Expected indicator codes in the header")
	}
	if !strings.Contains(out, "\r\nSubject: [SUSPICIOUS] Urgent: verify your account\r\n") {
		t.Errorf("Expected tagged subject, got %q", out)
	}
	if !strings.HasSuffix(out, "http://mybank.com/login</a>\r\n") {
		t.Error("Expected body to be preserved")
	}
}

func TestPostfixFilter_AnnotateCleanMessage(t *testing.T) {
	f := newTestPostfixFilter(t, config.PostfixConfig{ModifySubject: true})

	a, err := f.ProcessEmail(context.Background(), plainMessage)
	if err != nil {
		t.Fatalf("ProcessEmail failed: %v", err)
	}
	out := string(f.annotate([]byte(plainMessage), a))

	if !strings.Contains(out, "\r\nSubject: Lunch\r\n") {
		t.Errorf("Expected subject untouched for a non-threat, got %q", out)
	}
}

func TestPrefixSubject(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "From: a\nSubject: hi\n\nbody", "From: a\nSubject: [X] hi\n\nbody"},
		{"already tagged", "Subject: [X] hi\n\nbody", "Subject: [X] hi\n\nbody"},
		{"encoded", "Subject: =?UTF-8?Q?caf=C3=A9?=\r\n\r\nbody", "Subject: [X] =?UTF-8?Q?caf=C3=A9?=\r\n\r\nbody"},
		{"missing", "From: a\n\nbody", "Subject: [X]\r\nFrom: a\n\nbody"},
		{"subject only in body", "From: a\n\nSubject: hi", "Subject: [X]\r\nFrom: a\n\nSubject: hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(prefixSubject([]byte(tt.raw), "[X] ")); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestPostfixFilter_BlocksThreats(t *testing.T) {
	f := newTestPostfixFilter(t, config.PostfixConfig{BlockThreats: true})

	err := f.handleMessage(context.Background(), "support@random-domain.ru", []string{"victim@example.org"}, []byte(phishMessage))

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("Expected a 550 rejection, got %v", err)
	}

	if err := f.handleMessage(context.Background(), "alice@example.com", []string{"bob@example.org"}, []byte(plainMessage)); err != nil {
		t.Errorf("Expected clean mail to pass with relaying disabled, got %v", err)
	}
}
