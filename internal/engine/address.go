package engine

import (
	"mime"
	"net/mail"
	"strings"

	"github.com/emersion/go-message/charset"
	"golang.org/x/net/publicsuffix"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// mailbox is a parsed address header value
type mailbox struct {
	Name    string
	Address string
	Domain  string
}

// decodeHeader decodes RFC 2047 encoded words, returning the input on error
func decodeHeader(v string) string {
	decoded, err := wordDecoder.DecodeHeader(v)
	if err != nil {
		return v
	}
	return decoded
}

// parseMailbox parses the first address in an address header. Values net/mail
// rejects fall back to the last <...> group or any token with an "@".
func parseMailbox(v string) (mailbox, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return mailbox{}, false
	}

	parser := &mail.AddressParser{WordDecoder: wordDecoder}
	if list, err := parser.ParseList(v); err == nil && len(list) > 0 {
		return newMailbox(list[0].Name, list[0].Address), true
	}

	if open := strings.LastIndex(v, "<"); open >= 0 {
		if end := strings.Index(v[open:], ">"); end > 0 {
			name := strings.Trim(strings.TrimSpace(v[:open]), `"'`)
			return newMailbox(decodeHeader(name), v[open+1:open+end]), true
		}
	}
	for _, tok := range strings.Fields(v) {
		if strings.Contains(tok, "@") {
			return newMailbox("", strings.Trim(tok, `<>"',;`)), true
		}
	}
	return mailbox{Name: decodeHeader(v)}, false
}

func newMailbox(name, addr string) mailbox {
	addr = strings.TrimSpace(addr)
	return mailbox{
		Name:    strings.TrimSpace(name),
		Address: addr,
		Domain:  domainPart(addrDomain(addr)),
	}
}

func addrDomain(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return ""
	}
	return strings.TrimSuffix(addr[i+1:], ".")
}

// registrable returns the registrable domain (eTLD+1) of host, or the host
// itself when it has none
func registrable(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}

// sameOrganization reports whether two hosts share a registrable domain
func sameOrganization(a, b string) bool {
	return registrable(a) == registrable(b)
}

// registrableLabel returns the registrable domain without its public suffix,
// e.g. "paypal" for "www.paypal.co.uk"
func registrableLabel(host string) string {
	reg := registrable(host)
	suffix, _ := publicsuffix.PublicSuffix(reg)
	if suffix == "" || suffix == reg {
		return reg
	}
	return strings.TrimSuffix(reg, "."+suffix)
}
