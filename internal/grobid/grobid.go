// Package grobid sends PDFs to a GROBID-compatible service and returns the
// TEI-XML it produces.
package grobid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/teisimplify/internal/backend"
	"github.com/hyperifyio/teisimplify/internal/cache"
)

// DefaultPath is GROBID's full-text endpoint.
const DefaultPath = "/api/processFulltextDocument"

// ProxyPath is the route of the simplification service's extraction proxy.
const ProxyPath = "/extract-pdf"

// FormField is the multipart field carrying the PDF.
const FormField = "input"

// ErrExtractionFailed wraps every failed extraction.
var ErrExtractionFailed = errors.New("PDF extraction failed")

// Client calls the extraction service.
type Client struct {
	BaseURL string
	// Path overrides DefaultPath.
	Path  string
	HTTP  *backend.Client
	Cache cache.Store
}

// ExtractTEI uploads pdf as a multipart form and returns the TEI document.
func (c *Client) ExtractTEI(ctx context.Context, filename string, pdf []byte) (string, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return "", fmt.Errorf("%w: extraction URL not configured", ErrExtractionFailed)
	}
	if len(pdf) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrExtractionFailed)
	}
	path := c.Path
	if path == "" {
		path = DefaultPath
	}
	url := backend.JoinURL(c.BaseURL, path)
	key := cache.KeyFromBytes("grobid\n"+url, pdf)
	if c.Cache != nil {
		if raw, ok, _ := c.Cache.Get(ctx, key); ok && len(raw) > 0 {
			log.Debug().Str("file", filename).Msg("extraction cache hit")
			return string(raw), nil
		}
	}

	body, contentType, err := encodeForm(filename, pdf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	client := c.HTTP
	if client == nil {
		client = &backend.Client{MaxAttempts: 1}
	}
	resp, status, err := client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/xml")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if status < 200 || status > 299 {
		log.Warn().Int("status", status).Str("file", filename).Msg("extraction backend rejected document")
		return "", fmt.Errorf("%w: status %d", ErrExtractionFailed, status)
	}
	if c.Cache != nil {
		if err := c.Cache.Save(ctx, key, resp); err != nil {
			log.Warn().Err(err).Msg("extraction cache save failed")
		}
	}
	return string(resp), nil
}

func encodeForm(filename string, pdf []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		name = "document.pdf"
	}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, name))
	h.Set("Content-Type", "application/pdf")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
