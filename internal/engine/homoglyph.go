package engine

import (
	"math"
	"strings"

	"github.com/mikey/mail-threat-analyzer/internal/policy"
	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// skeleton reduces s to a canonical form in which visually confusable
// characters compare equal: punycode is decoded, NFKC applied, confusables
// mapped to ASCII and multi-character lookalikes collapsed.
func skeleton(s string, pol *policy.Policy) string {
	if strings.Contains(s, "xn--") {
		if u, err := idna.Punycode.ToUnicode(s); err == nil {
			s = u
		}
	}
	s = strings.ToLower(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if rep, ok := pol.Confusable(r); ok {
			b.WriteString(rep)
			continue
		}
		b.WriteRune(r)
	}
	return pol.ReplaceSequences(b.String())
}

// impersonatedBrand reports the brand and official domain whose name host
// imitates with confusable characters. Hosts that are official for any brand
// never match, and an exact brand label on another TLD is not a homoglyph.
func impersonatedBrand(host string, pol *policy.Policy) (policy.Brand, string, bool) {
	reg := registrable(host)
	if _, official := pol.OfficialBrand(reg); official {
		return policy.Brand{}, "", false
	}

	label := registrableLabel(reg)
	labelSkeleton := skeleton(label, pol)
	regSkeleton := skeleton(reg, pol)
	for _, b := range pol.Brands {
		for _, d := range b.Domains {
			if regSkeleton == skeleton(d, pol) {
				return b, d, true
			}
			official := registrableLabel(d)
			if len(official) >= 4 && label != official && labelSkeleton == skeleton(official, pol) {
				return b, d, true
			}
		}
	}
	return policy.Brand{}, "", false
}

// entropy returns the Shannon entropy of s in bits per character
func entropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := map[rune]int{}
	n := 0
	for _, r := range s {
		counts[r]++
		n++
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h
}
