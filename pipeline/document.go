package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InlineBundle parses template, drops every <script type="module"> element
// and appends an inline <script> holding code as the last child of <body>.
// It returns the rendered document.
func InlineBundle(template, code string) (string, error) {
	doc, err := html.Parse(strings.NewReader(template))
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var body *html.Node
	var modules []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Body && body == nil:
				body = n
			case n.DataAtom == atom.Script && isModuleScript(n):
				modules = append(modules, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if body == nil {
		// html.Parse always synthesizes a body.
		return "", fmt.Errorf("parse template: no <body> element")
	}

	for _, n := range modules {
		n.Parent.RemoveChild(n)
	}

	script := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: code})
	body.AppendChild(script)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return sb.String(), nil
}

func isModuleScript(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == "type" {
			return strings.EqualFold(strings.TrimSpace(a.Val), "module")
		}
	}
	return false
}

// commentOrRawText matches HTML comments plus whole script and style
// elements, whose contents are raw text and must not be touched.
var commentOrRawText = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>|<style\b[^>]*>.*?</style\s*>|<!--.*?-->`)

// StripComments removes HTML comments from markup. Everything else,
// whitespace included, is kept as is.
func StripComments(markup string) string {
	return commentOrRawText.ReplaceAllStringFunc(markup, func(m string) string {
		if strings.HasPrefix(m, "<!--") {
			return ""
		}
		return m
	})
}
