package tei

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/teisimplify/internal/clean"
)

// Namespace is the TEI namespace every structural element must belong to.
const Namespace = "http://www.tei-c.org/ns/1.0"

// ErrMalformedDocument is returned when the input is not well-formed XML.
var ErrMalformedDocument = errors.New("malformed TEI document")

// excludedTypes lists div types that never contribute content.
var excludedTypes = map[string]struct{}{
	"references":   {},
	"bibliography": {},
	"figure":       {},
	"table":        {},
}

// Scope controls which head and p elements a div reads.
type Scope int

const (
	// ScopeOwn stops at nested div boundaries: each div reads only the
	// elements it owns, and nested divs are emitted as their own sections.
	ScopeOwn Scope = iota
	// ScopeDescendant reads every descendant head and p of a div, so the
	// content of a nested retained div also appears under its ancestors.
	// Excluded subtrees are pruned in both modes.
	ScopeDescendant
)

func (s Scope) String() string {
	switch s {
	case ScopeDescendant:
		return "descendant"
	default:
		return "own"
	}
}

// ParseScope maps a flag value to a Scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "own":
		return ScopeOwn, nil
	case "descendant", "descendants":
		return ScopeDescendant, nil
	}
	return ScopeOwn, fmt.Errorf("unknown scope %q (want own or descendant)", s)
}

// Options tunes extraction.
type Options struct {
	Scope Scope
	// Clean runs each paragraph through clean.Scientific before it is kept.
	Clean bool
}

// Section is a retained div: an optional title and its non-empty paragraphs.
type Section struct {
	Title      string
	Paragraphs []string
}

// String renders the section block: title line (if any) then one line per
// paragraph.
func (s Section) String() string {
	var b strings.Builder
	if s.Title != "" {
		b.WriteString(s.Title)
		b.WriteByte('\n')
	}
	b.WriteString(strings.Join(s.Paragraphs, "\n"))
	return b.String()
}

// Document is the extraction result. Text is the flattened form sent to the
// simplification backend.
type Document struct {
	Sections []Section
	Text     string
}

// Extract parses a TEI document with default options.
func Extract(input []byte) (Document, error) {
	return Options{}.Extract(input)
}

// ExtractText returns only the flattened text. Errors are logged and yield "".
func ExtractText(input []byte) string {
	doc, _ := Extract(input)
	return doc.Text
}

// Extract parses input and returns the retained sections. A missing body is
// not an error: the document is simply empty. Malformed XML returns an empty
// document and an error wrapping ErrMalformedDocument.
func (o Options) Extract(input []byte) (Document, error) {
	root, err := parse(input)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(input)).Msg("TEI parse failed")
		return Document{}, err
	}
	body := root.findFirst(Namespace, "body")
	if body == nil {
		log.Warn().Msg("TEI body not found")
		return Document{}, nil
	}
	w := walker{opts: o}
	w.visit(body)
	blocks := make([]string, 0, len(w.sections))
	for _, s := range w.sections {
		blocks = append(blocks, s.String())
	}
	log.Debug().Int("sections", len(w.sections)).Str("scope", o.Scope.String()).Msg("TEI extracted")
	return Document{Sections: w.sections, Text: strings.Join(blocks, "\n\n")}, nil
}

type walker struct {
	opts     Options
	sections []Section
}

// visit walks n depth first and records every retained div in document order.
// Excluded divs are not descended into, so nothing below them is visited.
func (w *walker) visit(n *node) {
	for _, c := range n.children {
		if c.isText {
			continue
		}
		if c.is(Namespace, "div") {
			if isExcluded(c) {
				continue
			}
			if s, ok := w.section(c); ok {
				w.sections = append(w.sections, s)
			}
		}
		w.visit(c)
	}
}

func (w *walker) section(div *node) (Section, bool) {
	var s Section
	titleSeen := false
	var collect func(*node)
	collect = func(n *node) {
		for _, c := range n.children {
			if c.isText {
				continue
			}
			switch {
			case c.is(Namespace, "div"):
				if isExcluded(c) || w.opts.Scope == ScopeOwn {
					continue
				}
				collect(c)
			case c.is(Namespace, "head"):
				if !titleSeen {
					titleSeen = true
					s.Title = Normalize(c.textContent())
				}
			case c.is(Namespace, "p"):
				if p := w.paragraph(c); p != "" {
					s.Paragraphs = append(s.Paragraphs, p)
				}
			default:
				collect(c)
			}
		}
	}
	collect(div)
	if len(s.Paragraphs) == 0 {
		return Section{}, false
	}
	return s, true
}

func (w *walker) paragraph(p *node) string {
	text := Normalize(p.textContent())
	if w.opts.Clean && text != "" {
		text = clean.Scientific(text)
	}
	return text
}

func isExcluded(div *node) bool {
	t, ok := div.attr("type")
	if !ok {
		return false
	}
	_, excluded := excludedTypes[strings.ToLower(strings.TrimSpace(t))]
	return excluded
}

// Normalize composes s to NFC, trims it, and collapses every whitespace run
// (including newlines, tabs and non-breaking spaces) to a single space. It is
// idempotent.
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
