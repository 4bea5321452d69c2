// Package clean scrubs scholarly prose of citation, markup, and boilerplate
// noise before it is sent to the simplification backend.
package clean

import (
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// rules run in order; later patterns assume earlier ones already fired.
var rules = []rule{
	// LaTeX-style markers
	{regexp.MustCompile(`@xmath\d+`), ""},
	{regexp.MustCompile(`@xcite`), ""},
	{regexp.MustCompile(`\$.*?\$`), ""},
	{regexp.MustCompile(`\\(cite|ref|label)\{[^}]*\}`), ""},
	{regexp.MustCompile(`~`), " "},

	// (Author et al., 2019), (Author and Other 2019)
	{regexp.MustCompile(`\(\s*[A-Z][a-zA-Z\-]+(?:\s+(et al\.|and\s+[A-Z][a-zA-Z\-]+))?,?\s*\d{4}\s*\)`), ""},
	// by Author et al.
	{regexp.MustCompile(`\bby\s+[A-Z][a-zA-Z\-]+(?:\s+et al\.)?`), ""},
	// Author et al. (2019)
	{regexp.MustCompile(`\b[A-Z][a-zA-Z\-]+(?:\s+(et al\.|and\s+[A-Z][a-zA-Z\-]+))?\s*\(\s*\d{4}\s*\)`), ""},

	// clarifying asides
	{regexp.MustCompile(`(?i)\((i\.e\.|e\.g\.|see|cf\.|vs\.|respectively)[^)]*\)`), ""},

	// (April 2022), (2020)
	{regexp.MustCompile(`(?i)\(\s*(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{4}\s*\)`), ""},
	{regexp.MustCompile(`\(\s*\d{4}\s*\)`), ""},

	// (Table 3), Fig. 2
	{regexp.MustCompile(`(?i)\((Table|Tab\.?|Figure|Fig\.?)\s*\d+[a-zA-Z]?\)`), ""},
	{regexp.MustCompile(`(?i)\b(Table|Tab\.?|Figure|Fig\.?)\s*\d+[a-zA-Z]?`), ""},

	// emails, then URLs
	{regexp.MustCompile(`\b\S+@\S+\.\S+\b`), ""},
	{regexp.MustCompile(`https?://\S+|www\.\S+`), ""},

	// [12], [f7], [1, 2, 3]
	{regexp.MustCompile(`\[\s*[\w\d, ]+\]`), ""},
}

var (
	copyrightRe = regexp.MustCompile(`(?i)\b(copyright|©)\b`)
	trailerRe   = regexp.MustCompile(`(?i)\b(funding|notes?)\b`)
	emptyRe     = regexp.MustCompile(`\{\}|\[\]|\(\)`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Scientific removes citations, LaTeX residue, figure and table mentions,
// links and emails, and truncates at copyright or funding/notes trailers.
// Whitespace is collapsed and the result trimmed.
func Scientific(text string) string {
	for _, r := range rules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	text = cutAt(text, copyrightRe)
	text = cutAt(text, trailerRe)
	text = emptyRe.ReplaceAllString(text, "")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func cutAt(text string, re *regexp.Regexp) string {
	if loc := re.FindStringIndex(text); loc != nil {
		return text[:loc[0]]
	}
	return text
}
