package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/leadership-finder/internal/validate"
)

func normalize(s string) string { return validate.Normalize(s) }

// textNodes returns the trimmed, non-empty text nodes under the selection in
// document order.
func textNodes(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := normalize(n.Data); t != "" {
				out = append(out, t)
			}
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// spacedText joins the text nodes under sel with single spaces, so adjacent
// elements do not run together.
func spacedText(sel *goquery.Selection) string {
	return strings.Join(textNodes(sel), " ")
}

// Lines renders the page body as one line per text node.
func Lines(doc *goquery.Document) []string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return textNodes(doc.Selection)
	}
	return textNodes(body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
