package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"learning-assistant/internal/models"
)

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Noscript: true,
	atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true, atom.Table: true,
}

// ParseHTML extracts the readable text of a page and chunks it. The page
// title, or the URL when there is none, is recorded as metadata.
func ParseHTML(r io.Reader, sourceURL string, opts Options) ([]models.Chunk, string, error) {
	opts = opts.withDefaults()

	doc, err := html.Parse(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse html: %w", err)
	}

	title := sourceURL
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Title {
				if n.FirstChild != nil && strings.TrimSpace(n.FirstChild.Data) != "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	text := cleanLines(b.String())
	chunks := buildChunks(text, opts, models.Metadata{
		models.MetaSource: sourceURL,
		models.MetaType:   "url",
		models.MetaTitle:  title,
	})
	return chunks, title, nil
}

// cleanLines trims every line and drops the empty ones.
func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
