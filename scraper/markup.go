package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"
)

var tagRegexp = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][a-zA-Z0-9]*[^>]*>`)

// Elements that start a new line when flattened.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "section": true, "table": true, "tbody": true,
	"td": true, "th": true, "thead": true, "title": true, "tr": true, "ul": true,
}

// LooksLikeMarkup reports whether raw contains HTML tags.
func LooksLikeMarkup(raw string) bool {
	return strings.Contains(raw, "<") && tagRegexp.MatchString(raw)
}

// FlattenMarkup renders HTML to plain text: scripts and styles are dropped and
// block elements are separated by newlines so listing cards stay apart.
func FlattenMarkup(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template, svg, iframe").Remove()

	var b strings.Builder
	flatten(doc.Selection, &b)
	return b.String(), nil
}

func flatten(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); {
		case name == "#text":
			b.WriteString(s.Text())
		case name == "#comment":
		case name == "br":
			b.WriteByte('\n')
		case blockElements[name]:
			b.WriteByte('\n')
			flatten(s, b)
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
			flatten(s, b)
		}
	})
}

// NormalizeText turns raw page content into the text the patterns run on:
// markup is flattened, full-width ASCII folded to narrow and non-breaking
// spaces replaced.
func NormalizeText(raw string) string {
	text := raw
	if LooksLikeMarkup(raw) {
		if flat, err := FlattenMarkup(raw); err == nil {
			text = flat
		}
	}
	text = width.Fold.String(text)
	return strings.NewReplacer("\u00a0", " ", "\u3000", " ", "\r", "").Replace(text)
}
