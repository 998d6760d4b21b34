package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type readable struct {
	Title string
	Text  string
	// Image is the absolute URL of the lead image, if the page has one.
	Image string
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Template: true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
	atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Figcaption: true,
}

// parseReadable pulls the page title, the main readable text and the lead
// image out of an HTML document. Content comes from the first <article>, else
// <main>, else <body>, without navigation chrome. Relative image sources are
// resolved against base.
func parseReadable(body []byte, base *url.URL) (readable, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return readable{}, fmt.Errorf("parse html: %w", err)
	}
	root := findFirst(doc, atom.Article)
	if root == nil {
		root = findFirst(doc, atom.Main)
	}
	if root == nil {
		root = findFirst(doc, atom.Body)
	}
	if root == nil {
		root = doc
	}
	image := leadImage(root, base)
	if image == "" && root != doc {
		image = leadImage(doc, base)
	}
	return readable{
		Title: extractTitle(doc),
		Text:  normalizeTextPreserveNewlines(extractText(root)),
		Image: image,
	}, nil
}

// leadImage returns the first <img> under n whose source resolves to an
// http(s) URL. Inline data URIs are skipped.
func leadImage(n *html.Node, base *url.URL) string {
	var found string
	walkNodes(n, func(node *html.Node) bool {
		if node.DataAtom != atom.Img {
			return true
		}
		src := strings.TrimSpace(attr(node, "src"))
		if src == "" {
			return true
		}
		ref, err := url.Parse(src)
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if (ref.Scheme == "http" || ref.Scheme == "https") && ref.Host != "" {
			found = ref.String()
			return false
		}
		return true
	})
	return found
}

func extractTitle(doc *html.Node) string {
	if n := findFirst(doc, atom.Title); n != nil {
		if t := collapse(textOf(n)); t != "" {
			return t
		}
	}
	var og string
	walkNodes(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Meta && attr(n, "property") == "og:title" {
			og = collapse(attr(n, "content"))
			return og == ""
		}
		return true
	})
	if og != "" {
		return og
	}
	if n := findFirst(doc, atom.H1); n != nil {
		return collapse(textOf(n))
	}
	return ""
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			if skipped[node.DataAtom] {
				return
			}
			if blocks[node.DataAtom] {
				buf.WriteString("\n")
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && blocks[node.DataAtom] {
			buf.WriteString("\n")
		}
	}
	walk(n)
	return buf.String()
}

// findPDFFrame returns the src of iframe#pdf or embed#pdf.
func findPDFFrame(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var src string
	walkNodes(doc, func(n *html.Node) bool {
		if (n.DataAtom == atom.Iframe || n.DataAtom == atom.Embed) && attr(n, "id") == "pdf" {
			src = strings.TrimSpace(attr(n, "src"))
			return src == ""
		}
		return true
	})
	if src == "" {
		return "", fmt.Errorf("no pdf frame in resolver page")
	}
	return src, nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walkNodes(n, func(node *html.Node) bool {
		if node.DataAtom == a {
			found = node
			return false
		}
		return true
	})
	return found
}

// walkNodes visits element nodes depth-first until fn returns false.
func walkNodes(n *html.Node, fn func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && !fn(n) {
		return false
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if !walkNodes(child, fn) {
			return false
		}
	}
	return true
}

func textOf(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return buf.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
