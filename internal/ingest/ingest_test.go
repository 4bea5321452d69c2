package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPDF builds a structurally valid PDF with the given number of empty
// pages and a correct cross-reference table.
func minimalPDF(pages int) []byte {
	var b bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	b.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

const teiDoc = `<?xml version="1.0"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0"><text><body>
<div><head>Introduction</head><p>This is the introduction paragraph.</p></div>
<div type="references"><p>This should be skipped.</p></div>
</body></text></TEI>`

type stubSource struct {
	calls int
	xml   string
	err   error
}

func (s *stubSource) ExtractTEI(_ context.Context, _ string, _ []byte) (string, error) {
	s.calls++
	return s.xml, s.err
}

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"paper.pdf":      KindPDF,
		"PAPER.PDF":      KindPDF,
		"notes.txt":      KindText,
		"notes.TxT":      KindText,
		"grobid.xml":     KindTEI,
		"doc.tei":        KindTEI,
		"slides.docx":    KindUnknown,
		"no-extension":   KindUnknown,
		"archive.pdf.gz": KindUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, KindOf(name), name)
	}
}

func TestLoad_UnsupportedTypeDoesNoWork(t *testing.T) {
	src := &stubSource{xml: teiDoc}
	l := &Loader{Source: src}
	_, err := l.Load(context.Background(), "paper.docx", minimalPDF(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)
	assert.Equal(t, 0, src.calls)
}

func TestLoad_Text(t *testing.T) {
	l := &Loader{}
	got, err := l.Load(context.Background(), "a.txt", []byte("Plain   text\nkept verbatim."))
	require.NoError(t, err)
	assert.Equal(t, "Plain   text\nkept verbatim.", got)

	_, err = l.Load(context.Background(), "blank.txt", []byte(" \n\t "))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "café", DecodeText([]byte{'c', 'a', 'f', 0xE9}))
	assert.Equal(t, "bom", DecodeText([]byte("\xef\xbb\xbfbom")))
	utf16 := []byte{0xFF, 0xFE, 'h', 0, 'i', 0}
	assert.Equal(t, "hi", DecodeText(utf16))
}

func TestLoad_TEI(t *testing.T) {
	got, err := (&Loader{}).Load(context.Background(), "doc.xml", []byte(teiDoc))
	require.NoError(t, err)
	assert.Equal(t, "Introduction\nThis is the introduction paragraph.", got)

	_, err = (&Loader{}).Load(context.Background(), "doc.xml", []byte("<TEI"))
	assert.Error(t, err)
}

func TestLoad_PDFGoesThroughExtraction(t *testing.T) {
	src := &stubSource{xml: teiDoc}
	l := &Loader{Source: src}
	got, err := l.Load(context.Background(), "Paper.PDF", minimalPDF(1))
	require.NoError(t, err)
	assert.Equal(t, "Introduction\nThis is the introduction paragraph.", got)
	assert.Equal(t, 1, src.calls)
}

func TestLoad_PDFFailures(t *testing.T) {
	boom := errors.New("backend down")
	l := &Loader{Source: &stubSource{err: boom}}
	_, err := l.Load(context.Background(), "a.pdf", minimalPDF(1))
	assert.ErrorIs(t, err, boom)

	src := &stubSource{xml: teiDoc}
	l = &Loader{Source: src}
	_, err = l.Load(context.Background(), "a.pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, ErrInvalidPDF)
	assert.Equal(t, 0, src.calls)

	l = &Loader{Source: &stubSource{xml: `<TEI xmlns="http://www.tei-c.org/ns/1.0"/>`}}
	_, err = l.Load(context.Background(), "a.pdf", minimalPDF(1))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = (&Loader{}).Load(context.Background(), "a.pdf", minimalPDF(1))
	assert.Error(t, err)
}

func TestPreflight(t *testing.T) {
	info, err := Preflight(minimalPDF(2), Limits{})
	require.NoError(t, err)
	assert.Equal(t, 2, info.Pages)

	_, err = Preflight(minimalPDF(3), Limits{MaxPages: 2})
	assert.ErrorIs(t, err, ErrInvalidPDF)

	_, err = Preflight(minimalPDF(1), Limits{MaxBytes: 10})
	assert.ErrorIs(t, err, ErrInvalidPDF)
}
