// Package ingest classifies user input and turns it into plain article text.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"

	"github.com/hyperifyio/teisimplify/internal/tei"
)

var (
	// ErrUnsupportedFileType rejects anything that is not .txt, .pdf or TEI XML.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrEmptyDocument is returned when loading succeeded but produced no text.
	ErrEmptyDocument = errors.New("empty document")
)

// Kind is the input format, derived from the file extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindPDF
	KindTEI
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPDF:
		return "pdf"
	case KindTEI:
		return "tei"
	default:
		return "unknown"
	}
}

// KindOf maps a file name to its Kind, ignoring case.
func KindOf(name string) Kind {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".txt":
		return KindText
	case ".pdf":
		return KindPDF
	case ".xml", ".tei":
		return KindTEI
	default:
		return KindUnknown
	}
}

// TEISource converts a PDF into TEI-XML. grobid.Client satisfies it.
type TEISource interface {
	ExtractTEI(ctx context.Context, filename string, pdf []byte) (string, error)
}

// Loader turns an uploaded file into article text.
type Loader struct {
	Source TEISource
	// Extractor defaults to tei.TEIExtractor{}.
	Extractor tei.Extractor
	Limits    Limits
}

// Load dispatches on the extension of name. Unsupported types fail before any
// processing. A file that yields no text returns ErrEmptyDocument.
func (l *Loader) Load(ctx context.Context, name string, data []byte) (string, error) {
	kind := KindOf(name)
	log.Debug().Str("file", name).Str("kind", kind.String()).Int("bytes", len(data)).Msg("ingest")
	var (
		text string
		err  error
	)
	switch kind {
	case KindText:
		text = DecodeText(data)
	case KindTEI:
		text, err = l.fromTEI(data)
	case KindPDF:
		text, err = l.fromPDF(ctx, name, data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, filepath.Ext(name))
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

func (l *Loader) extractor() tei.Extractor {
	if l.Extractor != nil {
		return l.Extractor
	}
	return tei.TEIExtractor{}
}

func (l *Loader) fromTEI(data []byte) (string, error) {
	doc, err := l.extractor().Extract(data)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

func (l *Loader) fromPDF(ctx context.Context, name string, data []byte) (string, error) {
	if l.Source == nil {
		return "", errors.New("PDF extraction backend not configured")
	}
	info, err := Preflight(data, l.Limits)
	if err != nil {
		return "", err
	}
	log.Debug().Int("pages", info.Pages).Str("version", info.Version).Msg("pdf preflight ok")
	xml, err := l.Source.ExtractTEI(ctx, name, data)
	if err != nil {
		return "", err
	}
	return l.fromTEI([]byte(xml))
}

// DecodeText converts a text file to UTF-8. The encoding is sniffed from a
// byte order mark or the content; undecodable input falls back to the raw
// bytes.
func DecodeText(data []byte) string {
	enc, name, _ := charset.DetermineEncoding(data, "text/plain")
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		log.Warn().Err(err).Str("encoding", name).Msg("text decode failed; using raw bytes")
		out = data
	}
	return string(bytes.TrimPrefix(out, []byte("\xef\xbb\xbf")))
}
