// Package highlight wraps keyword occurrences in display markup.
//
// All keywords are matched in a single left-to-right pass over the text. At
// every position the longest keyword that satisfies the word boundaries wins
// and each character is marked at most once, so inserted markup is never
// re-matched and the output depends only on the set of keywords, not on how
// they were grouped.
//
// Word boundaries are Unicode aware: a keyword edge that is a letter, digit,
// combining mark or underscore must not touch another such character. This
// lets Hebrew and other non-Latin keywords match between spaces.
package highlight

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Marker is the markup placed around each matched keyword.
type Marker struct {
	Open  string
	Close string
}

// DefaultMarker is a span carrying the "highlight" class and an accessible
// "Keyword" title.
var DefaultMarker = Marker{
	Open:  `<span class="highlight" title="Keyword">`,
	Close: `</span>`,
}

// Match is one keyword occurrence in the source text. Start and End are byte
// offsets; Keyword is the canonical keyword that matched.
type Match struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Keyword string `json:"keyword"`
}

// Union flattens a section->keywords map into a deduplicated, deterministic
// keyword list. Keywords are trimmed; empty or whitespace-only entries are
// skipped. Case variants collapse into one entry (matching ignores case) and
// the lexicographically smallest spelling is kept. The result is ordered
// longest first, then alphabetically.
func Union(keywords map[string][]string) []string {
	seen := make(map[string]string)
	for _, list := range keywords {
		for _, kw := range list {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			key := strings.ToLower(kw)
			if prev, ok := seen[key]; !ok || kw < prev {
				seen[key] = kw
			}
		}
	}
	out := make([]string, 0, len(seen))
	for _, kw := range seen {
		out = append(out, kw)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		li, lj := strings.ToLower(out[i]), strings.ToLower(out[j])
		if li != lj {
			return li < lj
		}
		return out[i] < out[j]
	})
	return out
}

// Matcher finds keyword occurrences. A Matcher built from an empty keyword
// set matches nothing.
type Matcher struct {
	// any finds candidate start positions; each anchored entry is then tried
	// in keyword order at that position.
	any      *regexp.Regexp
	anchored []*regexp.Regexp
	keywords []string
}

// NewMatcher compiles the keyword union of keywords into case-insensitive
// patterns.
func NewMatcher(keywords map[string][]string) *Matcher {
	union := Union(keywords)
	m := &Matcher{keywords: union}
	if len(union) == 0 {
		return m
	}
	quoted := make([]string, len(union))
	m.anchored = make([]*regexp.Regexp, len(union))
	for i, kw := range union {
		quoted[i] = regexp.QuoteMeta(kw)
		m.anchored[i] = regexp.MustCompile(`^(?i:` + quoted[i] + `)`)
	}
	m.any = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	return m
}

// isWord reports whether r continues a word.
func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.M, r)
}

// bounded reports whether text[start:end] is delimited as a whole word.
func bounded(text string, start, end int) bool {
	if start == end {
		return false
	}
	first, _ := utf8.DecodeRuneInString(text[start:end])
	if isWord(first) && start > 0 {
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); isWord(prev) {
			return false
		}
	}
	last, _ := utf8.DecodeLastRuneInString(text[start:end])
	if isWord(last) && end < len(text) {
		if next, _ := utf8.DecodeRuneInString(text[end:]); isWord(next) {
			return false
		}
	}
	return true
}

// Keywords returns the ordered keyword union.
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Find returns every non-overlapping occurrence in text, in order.
func (m *Matcher) Find(text string) []Match {
	if m == nil || m.any == nil || text == "" {
		return nil
	}
	var out []Match
	pos := 0
	for pos < len(text) {
		loc := m.any.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		if match, ok := m.matchAt(text, start); ok {
			out = append(out, match)
			pos = match.End
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return out
}

// matchAt returns the longest keyword at start that is a whole word.
func (m *Matcher) matchAt(text string, start int) (Match, bool) {
	rest := text[start:]
	for i, re := range m.anchored {
		loc := re.FindStringIndex(rest)
		if loc == nil {
			continue
		}
		end := start + loc[1]
		if bounded(text, start, end) {
			return Match{Start: start, End: end, Keyword: m.keywords[i]}, true
		}
	}
	return Match{}, false
}

// Matches is a convenience for NewMatcher(keywords).Find(text).
func Matches(text string, keywords map[string][]string) []Match {
	return NewMatcher(keywords).Find(text)
}

// Highlighter renders matches with a Marker. The zero value uses
// DefaultMarker and leaves text unescaped.
type Highlighter struct {
	Marker Marker
	// EscapeHTML escapes all source text, matched or not, before markup is
	// inserted. Use it when the result is rendered as HTML.
	EscapeHTML bool
}

// Highlight wraps each keyword occurrence, keeping its original casing.
// Empty text, an empty map, or a keyword set with no usable entries leave the
// text as is (escaped when EscapeHTML is set).
func (h Highlighter) Highlight(text string, keywords map[string][]string) string {
	if text == "" {
		return text
	}
	if len(keywords) == 0 {
		return h.escape(text)
	}
	return h.Render(text, NewMatcher(keywords).Find(text))
}

// Render inserts markup for precomputed matches, which must be ordered and
// non-overlapping as returned by Matcher.Find.
func (h Highlighter) Render(text string, matches []Match) string {
	if len(matches) == 0 {
		return h.escape(text)
	}
	marker := h.Marker
	if marker == (Marker{}) {
		marker = DefaultMarker
	}
	var b strings.Builder
	b.Grow(len(text) + len(matches)*(len(marker.Open)+len(marker.Close)))
	pos := 0
	for _, m := range matches {
		b.WriteString(h.escape(text[pos:m.Start]))
		b.WriteString(marker.Open)
		b.WriteString(h.escape(text[m.Start:m.End]))
		b.WriteString(marker.Close)
		pos = m.End
	}
	b.WriteString(h.escape(text[pos:]))
	return b.String()
}

func (h Highlighter) escape(s string) string {
	if !h.EscapeHTML {
		return s
	}
	return html.EscapeString(s)
}

// Highlight applies DefaultMarker without escaping.
func Highlight(text string, keywords map[string][]string) string {
	return Highlighter{}.Highlight(text, keywords)
}
