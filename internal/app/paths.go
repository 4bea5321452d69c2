package app

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "article"
	}
	return s
}

// resolveOutputPath maps the -output value to a file path. "" and "-" mean
// stdout and return "". A directory (existing, or spelled with a trailing
// separator) receives a stable name derived from the input file name and a
// short hash of the extracted text.
func resolveOutputPath(output, inputPath, text, ext string) string {
	output = strings.TrimSpace(output)
	if output == "" || output == "-" {
		return ""
	}
	isDir := strings.HasSuffix(output, "/") || strings.HasSuffix(output, string(filepath.Separator))
	if !isDir {
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if !isDir {
		return output
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	if strings.TrimSpace(inputPath) == "" {
		base = "text"
	}
	h := sha256.Sum256([]byte(text))
	short := hex.EncodeToString(h[:])[:12]
	return filepath.Join(output, slugify(base)+"-"+short+ext)
}
