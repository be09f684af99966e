package tools

import (
	"strings"

	"golang.org/x/net/html"
)

type matcher func(*html.Node) bool

func byTag(tag string) matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func byClass(class string) matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasClass(n, class)
	}
}

func byAttr(key, value string) matcher {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, key) == value
	}
}

func both(a, b matcher) matcher {
	return func(n *html.Node) bool {
		return a(n) && b(n)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findAll returns matching descendants of n in document order.
func findAll(n *html.Node, match matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// find returns the first matching descendant of n, or nil.
func find(n *html.Node, match matcher) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// childElements returns matching direct children of n.
func childElements(n *html.Node, match matcher) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func isAncestor(ancestor, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

var hiddenText = map[string]bool{"script": true, "style": true, "template": true, "noscript": true}

func textNodes(n *html.Node, visit func(string)) {
	if n.Type == html.TextNode {
		visit(n.Data)
		return
	}
	if n.Type == html.ElementNode && hiddenText[n.Data] {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		textNodes(c, visit)
	}
}

// textOf concatenates all text under n.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	textNodes(n, func(s string) { b.WriteString(s) })
	return b.String()
}

// strippedText joins the trimmed, non-empty text fragments under n.
func strippedText(n *html.Node, sep string) string {
	var parts []string
	textNodes(n, func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	})
	return strings.Join(parts, sep)
}

func hasContent(n *html.Node) bool {
	return n != nil && n.FirstChild != nil
}
