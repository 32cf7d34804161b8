package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/core"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"github.com/mikey/mail-threat-analyzer/internal/utils"
	"go.uber.org/zap"
)

const maxIndicatorsHeader = 900

var subjectDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// PostfixFilter implements a Postfix content filter speaking SMTP on both sides
type PostfixFilter struct {
	service ports.ThreatAnalyzer
	logger  *zap.Logger
	text    *utils.TextProcessor
	cfg     config.PostfixConfig
	server  *smtp.Server
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(service ports.ThreatAnalyzer, logger *zap.Logger, text *utils.TextProcessor, cfg config.PostfixConfig) *PostfixFilter {
	if cfg.SubjectPrefix == "" && cfg.ModifySubject {
		cfg.SubjectPrefix = "[SUSPICIOUS] "
	}
	if cfg.ScoreHeader == "" {
		cfg.ScoreHeader = "X-Threat-Score"
	}
	if cfg.LevelHeader == "" {
		cfg.LevelHeader = "X-Threat-Level"
	}
	if cfg.IndicatorsHeader == "" {
		cfg.IndicatorsHeader = "X-Threat-Indicators"
	}

	return &PostfixFilter{
		service: service,
		logger:  logger,
		text:    text,
		cfg:     cfg,
	}
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})

	f.server.Addr = f.cfg.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("Postfix filter starting", zap.String("address", f.cfg.ListenAddress))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail analyzes raw email source
func (f *PostfixFilter) ProcessEmail(ctx context.Context, raw string) (*core.Assessment, error) {
	return f.service.Analyze(ctx, raw)
}

// annotate prepends the verdict headers and, for threats, optionally tags the subject
func (f *PostfixFilter) annotate(raw []byte, a *core.Assessment) []byte {
	var out bytes.Buffer

	fmt.Fprintf(&out, "%s: %d\r\n", f.cfg.ScoreHeader, a.Result.Score)
	fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.LevelHeader, a.Result.RiskLevel)
	if codes := a.Result.IndicatorCodes(); len(codes) > 0 {
		fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.IndicatorsHeader,
			f.text.HeaderValue(strings.Join(codes, ", "), maxIndicatorsHeader))
	}

	if a.IsThreat && f.cfg.ModifySubject && f.cfg.SubjectPrefix != "" {
		raw = prefixSubject(raw, f.cfg.SubjectPrefix)
	}

	out.Write(raw)
	return out.Bytes()
}

// prefixSubject rewrites the first Subject field of the header section in
// place, adding one when the message has none
func prefixSubject(raw []byte, prefix string) []byte {
	end := bytes.Index(raw, []byte("\r\n\r\n"))
	if lf := bytes.Index(raw, []byte("\n\n")); lf >= 0 && (end < 0 || lf < end) {
		end = lf
	}
	if end < 0 {
		end = len(raw)
	}

	pos := 0
	for pos < end {
		next := bytes.IndexByte(raw[pos:], '\n')
		lineEnd := end
		if next >= 0 && pos+next < end {
			lineEnd = pos + next
		}
		line := raw[pos:lineEnd]

		if len(line) >= 8 && strings.EqualFold(string(line[:8]), "subject:") {
			value := strings.TrimSpace(string(line[8:]))
			decoded, err := subjectDecoder.DecodeHeader(value)
			if err != nil {
				decoded = value
			}
			if strings.HasPrefix(decoded, prefix) {
				return raw
			}

			var out bytes.Buffer
			out.Write(raw[:pos])
			out.WriteString("Subject: ")
			out.WriteString(prefix)
			out.WriteString(value)
			if bytes.HasSuffix(line, []byte("\r")) {
				out.WriteByte('\r')
			}
			out.Write(raw[lineEnd:])
			return out.Bytes()
		}
		pos = lineEnd + 1
	}

	return append([]byte("Subject: "+strings.TrimSpace(prefix)+"\r\n"), raw...)
}

// sendToPostfix relays the processed message back to Postfix
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	addr := net.JoinHostPort(f.cfg.RelayAddress, strconv.Itoa(f.cfg.RelayPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted = true
	}
	if !accepted {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// handleMessage analyzes one received message and decides its fate
func (f *PostfixFilter) handleMessage(ctx context.Context, sender string, recipients []string, raw []byte) error {
	assessment, err := f.service.Analyze(ctx, string(raw))
	if err != nil {
		// Unanalyzable input is delivered untouched
		f.logger.Warn("Failed to analyze email, passing through",
			zap.Error(err),
			zap.String("sender", sender))
		return f.deliver(sender, recipients, raw)
	}

	if assessment.IsThreat && f.cfg.BlockThreats {
		f.logger.Info("Rejecting threat",
			zap.String("sender", sender),
			zap.String("processing_id", assessment.ProcessingID),
			zap.Int("score", assessment.Result.Score),
			zap.Strings("indicators", assessment.Result.IndicatorCodes()))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as a threat (score: %d)", assessment.Result.Score),
		}
	}

	if err := f.deliver(sender, recipients, f.annotate(raw, assessment)); err != nil {
		return err
	}

	f.logger.Info("Processed email",
		zap.String("sender", sender),
		zap.String("processing_id", assessment.ProcessingID),
		zap.Bool("threat", assessment.IsThreat),
		zap.Int("score", assessment.Result.Score))
	return nil
}

func (f *PostfixFilter) deliver(sender string, recipients []string, data []byte) error {
	if !f.cfg.RelayEnabled {
		f.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
		return nil
	}
	if err := f.sendToPostfix(sender, recipients, data); err != nil {
		f.logger.Error("Failed to send email back to Postfix",
			zap.Error(err),
			zap.String("sender", sender))
		return err
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data analyzes the message and relays or rejects it
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.filter.handleMessage(ctx, s.sender, s.recipients, raw)
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
