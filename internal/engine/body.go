package engine

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// BodyContent holds the decoded text views of a message body
type BodyContent struct {
	Text        string
	HTML        string
	ContentType string
	Parts       []core.MimePart
	Diagnostics Diagnostics
}

type headerGetter interface {
	Get(key string) string
}

type bodyExtractor struct {
	limits Limits
	diag   *Diagnostics
	text   []string
	html   []string
	parts  []core.MimePart
}

// ExtractBody walks the MIME tree below headers and returns the concatenated
// plain-text and HTML views. It never fails; problems become diagnostics.
func ExtractBody(headers core.Headers, body string, limits Limits) BodyContent {
	var out BodyContent
	x := &bodyExtractor{limits: limits, diag: &out.Diagnostics}

	out.ContentType, _ = parseContentType(headers.Get("Content-Type"))
	x.walk(headers, []byte(body), 0)

	out.Text = strings.Join(x.text, "\n")
	out.HTML = strings.Join(x.html, "\n")
	out.Parts = x.parts
	return out
}

func (x *bodyExtractor) walk(h headerGetter, body []byte, depth int) {
	if x.limits.MaxParts > 0 && len(x.parts) >= x.limits.MaxParts {
		x.diag.truncated("MIME part limit reached")
		return
	}

	mediaType, params := parseContentType(h.Get("Content-Type"))
	encoding := strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding")))
	disposition, dispParams := parseDisposition(h.Get("Content-Disposition"))
	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	x.parts = append(x.parts, core.MimePart{
		ContentType: mediaType,
		Charset:     strings.ToLower(params["charset"]),
		Encoding:    encoding,
		Disposition: disposition,
		Filename:    filename,
		Depth:       depth,
		Size:        len(body),
	})

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		x.walkMultipart(body, params["boundary"], depth)
	case mediaType == "message/rfc822":
		x.walkEmbedded(x.decodeTransfer(encoding, body, mediaType), depth)
	case mediaType == "text/plain" || mediaType == "text/html":
		if disposition == "attachment" {
			return
		}
		decoded := x.decodeTransfer(encoding, body, mediaType)
		content := decodeCharset(params["charset"], decoded)
		if mediaType == "text/html" {
			x.html = append(x.html, content)
		} else {
			x.text = append(x.text, content)
		}
	}
}

func (x *bodyExtractor) walkMultipart(body []byte, boundary string, depth int) {
	if boundary == "" {
		x.diag.malformedMIME("multipart body without boundary")
		x.text = append(x.text, string(body))
		return
	}
	if x.limits.MaxDepth > 0 && depth+1 > x.limits.MaxDepth {
		x.diag.truncated("MIME nesting limit reached")
		return
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	read := 0
	for {
		p, err := mr.NextRawPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			x.diag.malformedMIME(fmt.Sprintf("broken multipart framing: %v", err))
			if read == 0 {
				x.text = append(x.text, string(body))
			}
			return
		}
		data, err := io.ReadAll(p)
		if err != nil {
			x.diag.malformedMIME(fmt.Sprintf("truncated MIME part: %v", err))
		}
		read++
		x.walk(p.Header, data, depth+1)
		if err != nil {
			return
		}
	}
}

func (x *bodyExtractor) walkEmbedded(body []byte, depth int) {
	if x.limits.MaxDepth > 0 && depth+1 > x.limits.MaxDepth {
		x.diag.truncated("MIME nesting limit reached")
		return
	}
	blk := ParseHeaders(string(body), x.limits.MaxHeaders)
	x.walk(blk.Headers, []byte(blk.Body), depth+1)
}

func (x *bodyExtractor) decodeTransfer(encoding string, body []byte, mediaType string) []byte {
	switch encoding {
	case "", "7bit", "8bit", "binary":
		return body
	case "base64":
		decoded, err := decodeBase64(body)
		if err != nil {
			x.diag.decodeError(fmt.Sprintf("invalid base64 in %s part", mediaType))
		}
		return decoded
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
		if err == nil {
			err = checkQuotedPrintable(body)
		}
		if err != nil {
			x.diag.decodeError(fmt.Sprintf("invalid quoted-printable in %s part", mediaType))
		}
		return decoded
	default:
		x.diag.unknownEncoding(encoding)
		return body
	}
}

// checkQuotedPrintable reports an escape that is neither two hex digits nor
// a soft line break. The stdlib reader passes those through silently.
func checkQuotedPrintable(body []byte) error {
	for i := 0; i < len(body); i++ {
		if body[i] != '=' {
			continue
		}
		rest := bytes.TrimLeft(body[i+1:], " \t")
		if len(rest) == 0 || rest[0] == '\n' || (rest[0] == '\r' && len(rest) > 1 && rest[1] == '\n') {
			continue
		}
		if len(body) < i+3 || !isHex(body[i+1]) || !isHex(body[i+2]) {
			return fmt.Errorf("bad escape at offset %d", i)
		}
		i += 2
	}
	return nil
}

func isHex(b byte) bool {
	return ('0' <= b && b <= '9') || ('a' <= b && b <= 'f') || ('A' <= b && b <= 'F')
}

// decodeBase64 ignores line breaks and padding and returns whatever decoded
// before the first corrupt quantum
func decodeBase64(body []byte) ([]byte, error) {
	cleaned := make([]byte, 0, len(body))
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		cleaned = append(cleaned, b)
	}
	cleaned = bytes.TrimRight(cleaned, "=")

	dst := make([]byte, base64.RawStdEncoding.DecodedLen(len(cleaned)))
	n, err := base64.RawStdEncoding.Decode(dst, cleaned)
	return dst[:n], err
}

func decodeCharset(cs string, data []byte) string {
	switch strings.ToLower(strings.TrimSpace(cs)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return string(data)
	}
	r, err := charset.Reader(cs, bytes.NewReader(data))
	if err != nil {
		return string(data)
	}
	decoded, err := io.ReadAll(r)
	if err != nil && len(decoded) == 0 {
		return string(data)
	}
	return string(decoded)
}

// parseContentType returns the lower-cased media type and its parameters;
// a missing header means text/plain
func parseContentType(value string) (string, map[string]string) {
	if strings.TrimSpace(value) == "" {
		return "text/plain", map[string]string{}
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
		params = lenientParams(value)
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return mediaType, params
}

func parseDisposition(value string) (string, map[string]string) {
	if strings.TrimSpace(value) == "" {
		return "", map[string]string{}
	}
	disp, params, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0])), lenientParams(value)
	}
	return strings.ToLower(disp), params
}

// lenientParams recovers key=value parameters from a header that
// mime.ParseMediaType rejected
func lenientParams(value string) map[string]string {
	params := map[string]string{}
	fields := strings.Split(value, ";")
	for _, f := range fields[1:] {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if k != "" {
			if _, exists := params[k]; !exists {
				params[k] = v
			}
		}
	}
	return params
}
