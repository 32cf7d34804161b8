package ports

import (
	"context"
)

// RawMessage is one message read from a source, as unparsed RFC 5322 text
type RawMessage struct {
	// ID identifies the message within its source, such as a file name,
	// an mbox ordinal or an IMAP UID
	ID   string
	Data string
}

// MessageSource yields raw messages one at a time. Next returns io.EOF when
// the source is exhausted.
type MessageSource interface {
	Next(ctx context.Context) (*RawMessage, error)
	Close() error
}
