package importer

import (
	"context"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/nikbrunner/bmsort/internal/backup"
)

// entry is a node under construction; children are pointers so open folders
// stay addressable while their parents grow.
type entry struct {
	node     backup.Node
	children []*entry
}

func (e *entry) add(n backup.Node) *entry {
	c := &entry{node: n}
	e.children = append(e.children, c)
	return c
}

func (e *entry) build() []backup.Node {
	out := make([]backup.Node, 0, len(e.children))
	for _, c := range e.children {
		n := c.node
		if n.IsFolder() {
			n.Children = c.build()
		}
		out = append(out, n)
	}
	return out
}

// ParseHTML parses Netscape bookmark HTML into a nested node list.
func ParseHTML(r io.Reader) ([]backup.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	root := &entry{}
	// Stack of folders being filled; the bottom is the synthetic root.
	stack := []*entry{root}
	// Folder declared by an H3, pushed when its DL opens.
	var pending *entry

	var parse func(*html.Node)
	parse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				name := getTextContent(n)
				if name != "" {
					pending = stack[len(stack)-1].add(backup.Node{
						Title:     name,
						DateAdded: addDate(n),
					})
				}
				return

			case "a":
				href := getAttr(n, "href")
				if href == "" {
					return
				}
				title := getTextContent(n)
				if title == "" {
					title = href
				}
				stack[len(stack)-1].add(backup.Node{
					Title:     title,
					URL:       href,
					DateAdded: addDate(n),
				})
				return

			case "dl":
				pushed := false
				if pending != nil {
					stack = append(stack, pending)
					pending = nil
					pushed = true
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					parse(c)
				}
				if pushed {
					stack = stack[:len(stack)-1]
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}

	parse(doc)
	return root.build(), nil
}

// Import parses r and restores its contents under parentID. URLs already in
// the store are skipped and folders are merged by title.
func Import(ctx context.Context, store backup.Store, r io.Reader, parentID string) (backup.Result, error) {
	nodes, err := ParseHTML(r)
	if err != nil {
		return backup.Result{}, err
	}
	return backup.RestoreNodes(ctx, store, nodes, parentID)
}

// addDate returns ADD_DATE (Unix seconds) in milliseconds, or 0.
func addDate(n *html.Node) int64 {
	v := getAttr(n, "add_date")
	if v == "" {
		return 0
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return ts * 1000
}

// getTextContent returns the text content of a node.
func getTextContent(n *html.Node) string {
	var text strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(text.String())
}

// getAttr returns the value of an attribute, case-insensitive.
func getAttr(n *html.Node, key string) string {
	key = strings.ToLower(key)
	for _, attr := range n.Attr {
		if strings.ToLower(attr.Key) == key {
			return attr.Val
		}
	}
	return ""
}
