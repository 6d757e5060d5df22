package telegraph

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node is either a plain string or an *Element, matching the Telegraph content format.
type Node any

// Element is a tagged Telegraph node.
type Element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

var allowedAttrs = map[string]bool{"href": true, "src": true}

// HTMLToNodes converts an HTML fragment into Telegraph nodes. Only href and src
// attributes are kept; comments are dropped.
func HTMLToNodes(fragment string) ([]Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse article html: %w", err)
	}

	nodes := make([]Node, 0, len(parsed))
	for _, n := range parsed {
		if out, ok := convert(n); ok {
			nodes = append(nodes, out)
		}
	}
	return nodes, nil
}

func convert(n *html.Node) (Node, bool) {
	switch n.Type {
	case html.TextNode:
		if n.Data == "" {
			return nil, false
		}
		return n.Data, true
	case html.ElementNode:
		el := &Element{Tag: n.Data}
		for _, a := range n.Attr {
			if allowedAttrs[a.Key] {
				if el.Attrs == nil {
					el.Attrs = map[string]string{}
				}
				el.Attrs[a.Key] = a.Val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child, ok := convert(c); ok {
				el.Children = append(el.Children, child)
			}
		}
		return el, true
	default:
		return nil, false
	}
}
