package engine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type anchor struct {
	href string
	text string
}

// renderedHTML is what a reader of an HTML body would see
type renderedHTML struct {
	anchors []anchor
	// text is the visible text of the whole document
	text string
	// outside is the visible text with anchors removed
	outside string
}

// parseHTML extracts anchors and visible text; scripts and styles are dropped
func parseHTML(src string) renderedHTML {
	var out renderedHTML
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return out
	}

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		out.anchors = append(out.anchors, anchor{
			href: href,
			text: collapseSpace(s.Text()),
		})
	})

	doc.Find("script, style").Remove()
	out.text = doc.Text()
	doc.Find("a").Remove()
	out.outside = doc.Text()
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
