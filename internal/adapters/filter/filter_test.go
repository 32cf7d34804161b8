package filter

import (
	"testing"
	"time"

	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/engine"
	"go.uber.org/zap/zaptest"
)

const phishMessage = "From: \"PayPal Support\" <support@random-domain.ru>\r\n" +
	"To: victim@example.org\r\n" +
	"Subject: Urgent: verify your account\r\n" +
	"Reply-To: help@collector.example.net\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>Your account will be suspended.</p><a href=\"http://evil.example/login\">http://mybank.com/login</a>\r\n"

const plainMessage = "From: Alice <alice@example.com>\r\n" +
	"To: bob@example.org\r\n" +
	"Subject: Lunch\r\n" +
	"\r\n" +
	"See you at noon.\r\n"

func newTestService(t *testing.T) *core.ThreatAnalysisService {
	return core.NewThreatAnalysisService(engine.New(nil), nil, zaptest.NewLogger(t), nil, nil, core.ServiceSettings{
		Threshold:     60,
		MinInputChars: 10,
		MaxInputBytes: 64 * 1024,
		CacheTTL:      time.Hour,
	})
}
