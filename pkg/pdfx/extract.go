// Package pdfx extracts plain text from PDF bytes. Extraction failures are
// classified as unreadable documents so callers can reject the upload with a
// stable error instead of surfacing parser internals.
package pdfx

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/askdocs/askdocs-backend/engine/domain"
)

// ExtractText pulls the plain text out of a PDF held in memory. A PDF that
// cannot be parsed, or parses to no text at all, yields
// domain.ErrUnreadableDocument.
func ExtractText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs; classify those as
	// unreadable too.
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = fmt.Errorf("pdfx: parse panic: %v: %w", rec, domain.ErrUnreadableDocument)
		}
	}()

	if len(data) == 0 {
		return "", fmt.Errorf("pdfx: empty input: %w", domain.ErrUnreadableDocument)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdfx: open: %v: %w", err, domain.ErrUnreadableDocument)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			// A single bad page does not void the document.
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text = strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("pdfx: no extractable text: %w", domain.ErrUnreadableDocument)
	}
	return text, nil
}

// ExtractFile reads and extracts a PDF from disk.
func ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("pdfx: read %s: %w", path, err)
	}
	return ExtractText(data)
}
