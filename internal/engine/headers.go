package engine

import (
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// HeaderBlock is the outcome of splitting raw source into headers and body
type HeaderBlock struct {
	Headers    core.Headers
	Body       string
	BodyOffset int
	// HasHeaderBlock is false when the input starts directly with body text
	HasHeaderBlock bool
	Diagnostics    Diagnostics
}

// ParseHeaders splits raw at the first blank line and parses the header
// section into an ordered multimap. It never fails: unparsable lines are
// skipped and counted, and input without a blank line is all headers.
func ParseHeaders(raw string, maxHeaders int) HeaderBlock {
	var blk HeaderBlock

	headerText, offset := splitHeaderSection(raw)
	blk.BodyOffset = offset
	blk.Body = raw[offset:]
	blk.HasHeaderBlock = headerText != ""
	if !blk.HasHeaderBlock {
		return blk
	}

	lines := strings.Split(headerText, "\n")
	lineBase := 0
	if isMboxEnvelope(lines) {
		lines = lines[1:]
		lineBase = 1
	}

	var current *core.Header
	for i, line := range lines {
		lineNo := i + lineBase
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		if line[0] == ' ' || line[0] == '\t' {
			if current == nil {
				blk.Diagnostics.malformedHeader(lineNo + 1)
				continue
			}
			current.Value = joinFolded(current.Value, strings.TrimLeft(line, " \t"))
			continue
		}

		name, value, ok := splitField(line)
		if !ok {
			blk.Diagnostics.malformedHeader(lineNo + 1)
			current = nil
			continue
		}
		if maxHeaders > 0 && len(blk.Headers) >= maxHeaders {
			blk.Diagnostics.truncated("header count limit reached")
			break
		}

		blk.Headers = append(blk.Headers, core.Header{
			Name:     name,
			Value:    value,
			RawIndex: lineNo,
		})
		current = &blk.Headers[len(blk.Headers)-1]
	}

	for i := range blk.Headers {
		blk.Headers[i].Value = strings.TrimSpace(blk.Headers[i].Value)
	}
	return blk
}

// splitHeaderSection returns the header text and the offset where the body
// begins. The separator is whichever of CRLF CRLF or LF LF comes first.
func splitHeaderSection(raw string) (string, int) {
	if strings.HasPrefix(raw, "\r\n") {
		return "", 2
	}
	if strings.HasPrefix(raw, "\n") {
		return "", 1
	}

	firstLine := raw
	if i := strings.IndexByte(raw, '\n'); i >= 0 {
		firstLine = raw[:i]
	}
	firstLine = strings.TrimSuffix(firstLine, "\r")
	if _, _, ok := splitField(firstLine); !ok && !strings.HasPrefix(firstLine, "From ") {
		return "", 0
	}

	crlf := strings.Index(raw, "\r\n\r\n")
	lf := strings.Index(raw, "\n\n")
	switch {
	case crlf < 0 && lf < 0:
		return raw, len(raw)
	case lf < 0 || (crlf >= 0 && crlf < lf):
		return raw[:crlf], crlf + 4
	default:
		return raw[:lf], lf + 2
	}
}

// isMboxEnvelope reports whether the block starts with an mbox "From " line
// followed by a real header field
func isMboxEnvelope(lines []string) bool {
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "From ") {
		return false
	}
	_, _, ok := splitField(strings.TrimSuffix(lines[1], "\r"))
	return ok
}

// splitField splits "Name: value". The name must be non-empty printable
// ASCII without spaces; whitespace before the colon is tolerated.
func splitField(line string) (string, string, bool) {
	idx := strings.IndexByte(line, ':')
	if idx <= 0 {
		return "", "", false
	}
	name := strings.TrimRight(line[:idx], " \t")
	if name == "" {
		return "", "", false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 33 || name[i] > 126 {
			return "", "", false
		}
	}
	return name, line[idx+1:], true
}

func joinFolded(value, continuation string) string {
	if strings.TrimSpace(value) == "" {
		return continuation
	}
	return value + " " + continuation
}
