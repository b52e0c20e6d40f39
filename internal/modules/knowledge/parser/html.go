package parser

import (
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractHTML keeps headings and body text from <main>/<article> when
// present, otherwise from the whole page.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	var parts []string
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" && root.Find("h1").Length() == 0 {
		parts = append(parts, "# "+title)
	}
	root.Find("h1, h2, h3, p, li, pre, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if goquery.NodeName(s) == "pre" {
			text = strings.TrimSpace(s.Text())
		}
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			text = "# " + text
		case "h2":
			text = "## " + text
		case "h3":
			text = "### " + text
		case "li":
			text = "- " + text
		}
		parts = append(parts, text)
	})
	return strings.Join(parts, "\n\n"), nil
}
