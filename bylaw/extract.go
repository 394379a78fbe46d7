package bylaw

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Extraction methods, reported in debug logs.
const (
	methodTable    = "table"
	methodMarkdown = "markdown"
	methodText     = "text"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// noiseTags never carry provision text.
var noiseTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"header": true, "footer": true, "aside": true, "form": true,
	"iframe": true, "button": true,
}

// extract pulls provision text out of a bylaw page. Provision pages are a
// two-column table whose second cell holds the text; any other layout
// falls back to the page's main content.
func (f *Fetcher) extract(page []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", "", err
	}

	var rows []string
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		if text := strings.TrimSpace(cells.Eq(1).Text()); text != "" {
			rows = append(rows, text)
		}
	})
	if len(rows) > 0 {
		return strings.Join(rows, "\n"), methodTable, nil
	}

	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", err
	}
	removeNoise(root)

	// Readable pages go through markdown so headings and lists survive as
	// separators; short or boilerplate pages are taken as plain text.
	if readability.CheckDocument(root) {
		var buf bytes.Buffer
		if err := html.Render(&buf, mainContent(root)); err == nil {
			if markdown, err := f.converter.ConvertString(buf.String()); err == nil && strings.TrimSpace(markdown) != "" {
				return markdown, methodMarkdown, nil
			}
		}
	}

	return goquery.NewDocumentFromNode(root).Text(), methodText, nil
}

// mainContent returns the first main, article or [role=main] element, else
// the body, else the document itself.
func mainContent(root *html.Node) *html.Node {
	for _, match := range []func(*html.Node) bool{
		func(n *html.Node) bool { return n.Data == "main" },
		func(n *html.Node) bool { return n.Data == "article" },
		func(n *html.Node) bool { return attr(n, "role") == "main" },
		func(n *html.Node) bool { return n.Data == "body" },
	} {
		if n := find(root, match); n != nil {
			return n
		}
	}
	return root
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func removeNoise(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && noiseTags[c.Data] {
			n.RemoveChild(c)
			continue
		}
		removeNoise(c)
	}
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
