package engine

import (
	"fmt"
	"regexp"

	"github.com/mikey/mail-threat-analyzer/internal/core"
)

var embeddedAddressRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@([A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,})`)

func replyPathRule(ctx *Context) []core.Indicator {
	h := ctx.Email.Headers
	from, ok := parseMailbox(h.Get("From"))
	if !ok || from.Domain == "" {
		return nil
	}

	var out []core.Indicator
	if rt, ok := parseMailbox(h.Get("Reply-To")); ok && rt.Domain != "" && !sameOrganization(rt.Domain, from.Domain) {
		out = append(out, indicator(core.SeverityHigh, CodeFromReplyToMismatch,
			fmt.Sprintf("Reply-To domain %s differs from From domain %s", rt.Domain, from.Domain)))
	}
	if rp, ok := parseMailbox(h.Get("Return-Path")); ok && rp.Domain != "" && !sameOrganization(rp.Domain, from.Domain) {
		out = append(out, indicator(core.SeverityMedium, CodeReturnPathMismatch,
			fmt.Sprintf("Return-Path domain %s differs from From domain %s", rp.Domain, from.Domain)))
	}
	return out
}

func displayNameRule(ctx *Context) []core.Indicator {
	from, ok := parseMailbox(ctx.Email.Headers.Get("From"))
	if !ok || from.Name == "" || from.Domain == "" {
		return nil
	}

	var out []core.Indicator
	for _, b := range ctx.Policy.BrandsMentioned(from.Name) {
		if !ctx.Policy.IsOfficialFor(b, from.Domain) {
			out = append(out, indicator(core.SeverityCritical, CodeDisplayNameSpoof,
				fmt.Sprintf("Display name %q claims %s but the sender domain %s is not an official %s domain",
					from.Name, b.Name, from.Domain, b.Name)))
			break
		}
	}

	if m := embeddedAddressRe.FindStringSubmatch(from.Name); m != nil {
		if shown := domainPart(m[1]); !sameOrganization(shown, from.Domain) {
			out = append(out, indicator(core.SeverityHigh, CodeDisplayNameAddress,
				fmt.Sprintf("Display name shows an address at %s but the message is from %s", shown, from.Domain)))
		}
	}
	return out
}
