// Package document wraps the XML bodies stored in the OpenNebula tables.
// Bodies are parsed into a tree with blank text nodes stripped, queried with
// typed Path selectors and written back as the root element only.
package document

import (
	"github.com/beevik/etree"
	"golang.org/x/xerrors"
)

// ParseError reports a body that is not well-formed markup.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parse document: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type Document struct {
	doc *etree.Document
}

// Parse reads body into a Document. CDATA sections survive a round trip.
func Parse(body string) (*Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true

	if err := doc.ReadFromString(body); err != nil {
		return nil, &ParseError{Err: err}
	}
	if doc.Root() == nil {
		return nil, &ParseError{Err: xerrors.New("no root element")}
	}
	if err := checkTopLevel(doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	stripBlanks(doc.Root())
	return &Document{doc: doc}, nil
}

// checkTopLevel rejects anything but blank text next to the root element.
func checkTopLevel(doc *etree.Document) error {
	if n := len(doc.ChildElements()); n != 1 {
		return xerrors.Errorf("%d top-level elements", n)
	}
	for _, tok := range doc.Child {
		if cd, ok := tok.(*etree.CharData); ok && !cd.IsWhitespace() {
			return xerrors.Errorf("text outside the root element: %q", cd.Data)
		}
	}
	return nil
}

func stripBlanks(el *etree.Element) {
	for i := len(el.Child) - 1; i >= 0; i-- {
		switch tok := el.Child[i].(type) {
		case *etree.CharData:
			if tok.IsWhitespace() && !tok.IsCData() {
				el.RemoveChildAt(i)
			}
		case *etree.Element:
			stripBlanks(tok)
		}
	}
}

func (d *Document) Root() Node {
	return Node{el: d.doc.Root()}
}

// Find resolves p relative to the root element.
func (d *Document) Find(p Path) []Node {
	return d.Root().Find(p)
}

// String serializes the root element.
func (d *Document) String() (string, error) {
	out := etree.NewDocument()
	out.WriteSettings = d.doc.WriteSettings
	out.SetRoot(d.doc.Root().Copy())

	s, err := out.WriteToString()
	if err != nil {
		return "", xerrors.Errorf("serialize document: %w", err)
	}
	return s, nil
}

// Node is a single element of a Document.
type Node struct {
	el *etree.Element
}

func (n Node) Tag() string {
	return n.el.Tag
}

func (n Node) Text() string {
	return n.el.Text()
}

func (n Node) Children() []Node {
	children := n.el.ChildElements()
	nodes := make([]Node, 0, len(children))
	for _, c := range children {
		nodes = append(nodes, Node{el: c})
	}
	return nodes
}

// Find returns every element reached by walking p from n, in document order.
func (n Node) Find(p Path) []Node {
	if len(p.segments) == 0 {
		return nil
	}

	current := []*etree.Element{n.el}
	for _, seg := range p.segments {
		var next []*etree.Element
		for _, el := range current {
			for _, c := range el.ChildElements() {
				if c.Tag == seg {
					next = append(next, c)
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}

	nodes := make([]Node, 0, len(current))
	for _, el := range current {
		nodes = append(nodes, Node{el: el})
	}
	return nodes
}

// CreateChild appends a new element named name holding content.
func (n Node) CreateChild(name, content string) Node {
	c := n.el.CreateElement(name)
	c.SetText(content)
	return Node{el: c}
}
