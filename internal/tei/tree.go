package tei

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// node is one element or character-data run of a parsed document. The tree
// is built once by parse and never mutated afterwards.
type node struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*node
	// text is set only for character data nodes (name is zero).
	text   string
	isText bool
}

func (n *node) is(space, local string) bool {
	return n != nil && !n.isText && n.name.Space == space && n.name.Local == local
}

func (n *node) attr(local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Space == "" && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// findFirst returns the first element in document order matching space/local.
func (n *node) findFirst(space, local string) *node {
	if n.is(space, local) {
		return n
	}
	for _, c := range n.children {
		if res := c.findFirst(space, local); res != nil {
			return res
		}
	}
	return nil
}

// textContent concatenates all character data below n, like DOM textContent.
func (n *node) textContent() string {
	if n.isText {
		return n.text
	}
	var b strings.Builder
	var walk func(*node)
	walk = func(cur *node) {
		for _, c := range cur.children {
			if c.isText {
				b.WriteString(c.text)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// parse reads input into a tree rooted at a synthetic document node. Element
// names carry their resolved namespace URI. Declared non-UTF-8 encodings are
// decoded through x/net/html/charset.
func parse(input []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(input))
	dec.CharsetReader = charset.NewReaderLabel

	doc := &node{}
	stack := []*node{doc}
	sawRoot := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 1 && sawRoot {
				return nil, fmt.Errorf("%w: second root element %q", ErrMalformedDocument, t.Name.Local)
			}
			el := &node{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			top.children = append(top.children, el)
			stack = append(stack, el)
			sawRoot = true
		case xml.EndElement:
			if len(stack) == 1 {
				return nil, fmt.Errorf("%w: unexpected end element %q", ErrMalformedDocument, t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 1 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, fmt.Errorf("%w: text outside the root element", ErrMalformedDocument)
				}
				continue
			}
			top.children = append(top.children, &node{text: string(t), isText: true})
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrMalformedDocument)
	}
	if !sawRoot {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedDocument)
	}
	return doc, nil
}
