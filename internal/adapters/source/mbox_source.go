package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/emersion/go-mbox"
	"github.com/mikey/mail-threat-analyzer/internal/ports"
	"go.uber.org/zap"
)

// MboxSource yields every message of an mbox file in order
type MboxSource struct {
	closer io.Closer
	reader *mbox.Reader
	logger *zap.Logger
	index  int
}

// NewMboxSource opens an mbox file; "-" reads standard input
func NewMboxSource(path string, logger *zap.Logger) (*MboxSource, error) {
	if path == "-" {
		return NewMboxReaderSource(os.Stdin, nil, logger), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mbox: %w", err)
	}
	return NewMboxReaderSource(f, f, logger), nil
}

// NewMboxReaderSource reads mbox data from r; closer may be nil
func NewMboxReaderSource(r io.Reader, closer io.Closer, logger *zap.Logger) *MboxSource {
	return &MboxSource{
		closer: closer,
		reader: mbox.NewReader(r),
		logger: logger,
	}
}

// Next returns the next message, or io.EOF at the end of the mailbox
func (s *MboxSource) Next(ctx context.Context) (*ports.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := s.reader.NextMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read mbox message: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read mbox message: %w", err)
	}

	s.index++
	s.logger.Debug("Read mbox message", zap.Int("index", s.index), zap.Int("size", len(data)))

	return &ports.RawMessage{ID: "mbox#" + strconv.Itoa(s.index), Data: string(data)}, nil
}

// Close closes the underlying file
func (s *MboxSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
