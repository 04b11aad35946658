// Package dom is a small mutable document model over golang.org/x/net/html
// trees. Nodes are addressed by integer ids so script wrappers can refer
// to them across the engine boundary.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Node types as exposed to script (Node.nodeType).
const (
	ElementNode  = 1
	TextNode     = 3
	CommentNode  = 8
	DocumentNode = 9
)

var (
	ErrNotFound      = errors.New("dom: node not found")
	ErrHierarchy     = errors.New("dom: hierarchy request error")
	ErrNotChild      = errors.New("dom: node is not a child")
	ErrInvalidSelect = errors.New("dom: invalid selector")
)

// Document owns a parsed tree and the id table for its nodes. It is not
// safe for concurrent use; a page touches it only from its script
// goroutine.
type Document struct {
	root    *html.Node
	ids     map[*html.Node]int
	nodes   map[int]*html.Node
	next    int
	claimed map[*html.Node]bool
}

// Parse builds a Document from HTML source. Missing html/head/body
// elements are synthesized by the parser.
func Parse(src string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	return &Document{
		root:    root,
		ids:     make(map[*html.Node]int),
		nodes:   make(map[int]*html.Node),
		claimed: make(map[*html.Node]bool),
	}, nil
}

// ID returns the node's id, assigning one on first use. nil maps to 0.
func (d *Document) ID(n *html.Node) int {
	if n == nil {
		return 0
	}
	if id, ok := d.ids[n]; ok {
		return id
	}
	d.next++
	d.ids[n] = d.next
	d.nodes[d.next] = n
	return d.next
}

// Node resolves an id.
func (d *Document) Node(id int) (*html.Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return n, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// DocumentElement returns <html>.
func (d *Document) DocumentElement() *html.Node {
	return firstChildElement(d.root, atom.Html)
}

// Head returns <head>.
func (d *Document) Head() *html.Node {
	return firstChildElement(d.DocumentElement(), atom.Head)
}

// Body returns <body>.
func (d *Document) Body() *html.Node {
	return firstChildElement(d.DocumentElement(), atom.Body)
}

func firstChildElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// NodeType maps an html.NodeType onto the DOM constant.
func NodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return ElementNode
	case html.TextNode:
		return TextNode
	case html.CommentNode:
		return CommentNode
	case html.DocumentNode:
		return DocumentNode
	}
	return 0
}

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

// CreateTextNode returns a detached text node.
func (d *Document) CreateTextNode(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

func contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// AppendChild moves child to the end of parent's children.
func (d *Document) AppendChild(parent, child *html.Node) error {
	if contains(child, parent) {
		return ErrHierarchy
	}
	detach(child)
	parent.AppendChild(child)
	return nil
}

// InsertBefore moves child in front of ref. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if ref == nil {
		return d.AppendChild(parent, child)
	}
	if ref.Parent != parent {
		return ErrNotChild
	}
	if contains(child, parent) {
		return ErrHierarchy
	}
	if child == ref {
		return nil
	}
	detach(child)
	parent.InsertBefore(child, ref)
	return nil
}

// RemoveChild detaches child from parent.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if child.Parent != parent {
		return ErrNotChild
	}
	parent.RemoveChild(child)
	return nil
}

// Connected reports whether n is attached to the document.
func (d *Document) Connected(n *html.Node) bool {
	return contains(d.root, n)
}

// Attr returns the value of an attribute.
func Attr(n *html.Node, name string) (string, bool) {
	name = strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, name, value string) {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, name string) {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// TextContent concatenates all descendant text.
func TextContent(n *html.Node) string {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for ; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
			walk(c.FirstChild)
		}
	}
	walk(n.FirstChild)
	return sb.String()
}

// SetTextContent replaces all children with a single text node.
func SetTextContent(n *html.Node, text string) {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		n.Data = text
		return
	}
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// SetInnerHTML replaces the children of n with parsed markup.
func SetInnerHTML(n *html.Node, markup string) error {
	children, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return fmt.Errorf("parsing fragment: %w", err)
	}
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return nil
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// ChildNodes returns all children of n.
func ChildNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// GetElementByID returns the first connected element with the given id.
func (d *Document) GetElementByID(id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				if v, ok := Attr(c, "id"); ok && v == id {
					found = c
					return true
				}
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(d.root)
	return found
}

func compile(sel string) (cascadia.Sel, error) {
	s, err := cascadia.Parse(sel)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelect, sel, err)
	}
	return s, nil
}

// QuerySelector returns the first descendant of scope matching sel.
func (d *Document) QuerySelector(scope *html.Node, sel string) (*html.Node, error) {
	s, err := compile(sel)
	if err != nil {
		return nil, err
	}
	return cascadia.Query(scope, s), nil
}

// QuerySelectorAll returns every descendant of scope matching sel, in
// document order.
func (d *Document) QuerySelectorAll(scope *html.Node, sel string) ([]*html.Node, error) {
	s, err := compile(sel)
	if err != nil {
		return nil, err
	}
	return cascadia.QueryAll(scope, s), nil
}

// Title returns the text of the first <title> element, whitespace-trimmed.
func (d *Document) Title() string {
	t, _ := d.QuerySelector(d.root, "title")
	if t == nil {
		return ""
	}
	return strings.TrimSpace(TextContent(t))
}

// SetTitle writes the <title> element, creating it in <head> if missing.
func (d *Document) SetTitle(title string) {
	t, _ := d.QuerySelector(d.root, "title")
	if t == nil {
		head := d.Head()
		if head == nil {
			return
		}
		t = d.CreateElement("title")
		head.AppendChild(t)
	}
	SetTextContent(t, title)
}

// Scripts returns connected <script> elements in document order.
func (d *Document) Scripts() []*html.Node {
	all, _ := d.QuerySelectorAll(d.root, "script")
	return all
}

// Activatable returns n and its descendants that start a load or a
// navigation once connected: script, link and iframe elements.
func Activatable(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Script, atom.Link, atom.Iframe:
				out = append(out, c)
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return out
}

// Claim marks a script element as started. It returns false if it was
// already claimed, so each script runs at most once.
func (d *Document) Claim(n *html.Node) bool {
	if d.claimed[n] {
		return false
	}
	d.claimed[n] = true
	return true
}
