package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalidPDF is returned when an upload cannot be parsed as a PDF or
// exceeds the configured limits.
var ErrInvalidPDF = errors.New("invalid PDF")

// DefaultMaxPDFBytes caps uploads when Limits.MaxBytes is zero.
const DefaultMaxPDFBytes = 50 << 20

// Limits bound what is forwarded to the extraction backend. Zero values use
// the defaults; a zero MaxPages means no page limit.
type Limits struct {
	MaxBytes int64
	MaxPages int
}

// PDFInfo summarizes a preflighted document.
type PDFInfo struct {
	Pages   int
	Version string
}

// Preflight parses data with relaxed validation so corrupt or oversized
// uploads are rejected before they reach the extraction backend.
func Preflight(data []byte, lim Limits) (PDFInfo, error) {
	maxBytes := lim.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPDFBytes
	}
	if int64(len(data)) > maxBytes {
		return PDFInfo{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrInvalidPDF, len(data), maxBytes)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return PDFInfo{}, fmt.Errorf("%w: missing %%PDF header", ErrInvalidPDF)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return PDFInfo{}, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return PDFInfo{}, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	info := PDFInfo{Pages: ctx.PageCount}
	if ctx.HeaderVersion != nil {
		info.Version = ctx.HeaderVersion.String()
	}
	if lim.MaxPages > 0 && info.Pages > lim.MaxPages {
		return info, fmt.Errorf("%w: %d pages exceeds limit of %d", ErrInvalidPDF, info.Pages, lim.MaxPages)
	}
	return info, nil
}
