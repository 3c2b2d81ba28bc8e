// Package pagetext turns rendered HTML snapshots into the visible text a reader would see.
// It centralizes the goquery parsing used by the profile scraper for sections, detail pages
// and the raw full-page fallback.
package pagetext

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseTags never contribute visible text.
var noiseTags = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// noiseClasses hold screen-reader duplicates of text that is already rendered.
var noiseClasses = []string{"visually-hidden", "a11y-text"}

// blockTags start a new line in the extracted text.
var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true,
}

// DefaultHeaderSelectors locate the profile top card, most specific first.
func DefaultHeaderSelectors() []string {
	return []string{
		".pv-top-card",
		`[data-section="summary"]`,
		"section.artdeco-card",
	}
}

// Document is a parsed page snapshot.
type Document struct {
	doc *goquery.Document
}

// Parse parses an HTML snapshot.
func Parse(htmlStr string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{doc: doc}, nil
}

// MainText returns the visible text of <main>, or of <body> when the page has no main element.
func (d *Document) MainText() string {
	if main := d.doc.Find("main").First(); main.Length() > 0 {
		return VisibleText(main)
	}
	return d.BodyText()
}

// BodyText returns the visible text of the whole body.
func (d *Document) BodyText() string {
	return VisibleText(d.doc.Find("body").First())
}

// SectionText finds the element with the given id, walks up to its enclosing <section>
// and returns that section's visible text. It returns "" when either is missing.
func (d *Document) SectionText(anchorID string) string {
	anchor := d.doc.Find(fmt.Sprintf("[id=%q]", anchorID)).First()
	if anchor.Length() == 0 {
		return ""
	}
	section := anchor.Closest("section")
	if section.Length() == 0 {
		return ""
	}
	return VisibleText(section)
}

// HeaderText returns the text of the first matching header selector, falling back to the
// first child of <main>.
func (d *Document) HeaderText(selectors []string) string {
	for _, selector := range selectors {
		if sel := d.doc.Find(selector).First(); sel.Length() > 0 {
			return VisibleText(sel)
		}
	}
	if first := d.doc.Find("main").First().Children().First(); first.Length() > 0 {
		return VisibleText(first)
	}
	return ""
}

// VisibleText renders sel as plain text: noise removed, one line per block element,
// whitespace collapsed.
func VisibleText(sel *goquery.Selection) string {
	var sb strings.Builder
	for _, n := range sel.Nodes {
		writeText(&sb, n)
	}
	return cleanWhitespace(sb.String())
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if isNoise(n) {
			return
		}
		if n.Data == "br" {
			sb.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if block {
		sb.WriteByte('\n')
	}
}

func isNoise(n *html.Node) bool {
	if noiseTags[n.Data] {
		return true
	}
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, class := range strings.Fields(attr.Val) {
			for _, noisy := range noiseClasses {
				if class == noisy {
					return true
				}
			}
		}
	}
	return false
}

// cleanWhitespace collapses runs of spaces inside lines and drops blank lines.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
