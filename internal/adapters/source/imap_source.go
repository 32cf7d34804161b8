package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/mikey/mail-threat-analyzer/internal/config"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"go.uber.org/zap"
)

// IMAPSource fetches the most recent messages of a mailbox read-only
type IMAPSource struct {
	cfg     config.IMAPConfig
	logger  *zap.Logger
	c       *client.Client
	pending []*ports.RawMessage
	fetched bool
}

// NewIMAPSource creates an IMAP source; the connection is opened on first use
func NewIMAPSource(cfg config.IMAPConfig, logger *zap.Logger) (*IMAPSource, error) {
	if cfg.Address == "" {
		return nil, errors.New("IMAP address is required")
	}
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	return &IMAPSource{cfg: cfg, logger: logger}, nil
}

// Next returns the next fetched message, or io.EOF when all were returned
func (s *IMAPSource) Next(ctx context.Context) (*ports.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.fetched {
		s.fetched = true
		if err := s.fetch(); err != nil {
			return nil, err
		}
	}
	if len(s.pending) == 0 {
		return nil, io.EOF
	}
	msg := s.pending[0]
	s.pending = s.pending[1:]
	return msg, nil
}

func (s *IMAPSource) fetch() error {
	var err error
	if s.cfg.TLS {
		s.c, err = client.DialTLS(s.cfg.Address, nil)
	} else {
		s.c, err = client.Dial(s.cfg.Address)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := s.c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return fmt.Errorf("failed to log in to IMAP server: %w", err)
	}

	status, err := s.c.Select(s.cfg.Mailbox, true)
	if err != nil {
		return fmt.Errorf("failed to select mailbox %s: %w", s.cfg.Mailbox, err)
	}
	if status.Messages == 0 {
		s.logger.Info("Mailbox is empty", zap.String("mailbox", s.cfg.Mailbox))
		return nil
	}

	from := uint32(1)
	if status.Messages > uint32(s.cfg.Limit) {
		from = status.Messages - uint32(s.cfg.Limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, status.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, messages)
	}()

	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			s.logger.Warn("Server returned no body", zap.Uint32("uid", msg.Uid))
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			s.logger.Warn("Failed to read message body", zap.Uint32("uid", msg.Uid), zap.Error(err))
			continue
		}
		s.pending = append(s.pending, &ports.RawMessage{
			ID:   "uid:" + strconv.FormatUint(uint64(msg.Uid), 10),
			Data: string(data),
		})
	}

	if err := <-done; err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	s.logger.Info("Fetched messages",
		zap.String("mailbox", s.cfg.Mailbox),
		zap.Int("count", len(s.pending)))
	return nil
}

// Close logs out of the IMAP server
func (s *IMAPSource) Close() error {
	if s.c == nil {
		return nil
	}
	if err := s.c.Logout(); err != nil {
		return fmt.Errorf("failed to log out of IMAP server: %w", err)
	}
	return nil
}
