package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mikey/mail-threat-analyzer/internal/ports"
)

// FileSource yields a single message read from a file or standard input
type FileSource struct {
	path string
	r    io.Reader
	done bool
}

// NewFileSource creates a source for path; an empty path or "-" reads stdin
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// NewReaderSource creates a source yielding everything read from r
func NewReaderSource(name string, r io.Reader) *FileSource {
	return &FileSource{path: name, r: r}
}

// Next returns the message, then io.EOF
func (s *FileSource) Next(ctx context.Context) (*ports.RawMessage, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.done = true

	r := s.r
	name := s.path
	if r == nil {
		if s.path == "" || s.path == "-" {
			r, name = os.Stdin, "stdin"
		} else {
			f, err := os.Open(s.path)
			if err != nil {
				return nil, fmt.Errorf("failed to open message file: %w", err)
			}
			defer f.Close()
			r = f
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return &ports.RawMessage{ID: name, Data: string(data)}, nil
}

// Close releases nothing; files are closed after reading
func (s *FileSource) Close() error {
	return nil
}
