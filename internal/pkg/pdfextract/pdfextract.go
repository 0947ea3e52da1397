package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var (
	ErrNotPDF      = errors.New("input is not a pdf document")
	ErrUnsupported = errors.New("file is neither a pdf nor utf-8 text")
)

// DocumentText returns the text of an uploaded document: extracted text for
// a PDF, the content itself for UTF-8 text.
func DocumentText(data []byte) (string, error) {
	if IsPDF(data) {
		return ExtractText(bytes.NewReader(data))
	}
	if !utf8.Valid(data) {
		return "", ErrUnsupported
	}
	return string(data), nil
}

// IsPDF reports whether data starts with the PDF file signature.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}

// ExtractText reads a PDF from r and returns the text of its pages joined
// by blank lines, so page breaks become paragraph boundaries. It returns
// an empty string and nil error if the PDF has no extractable text.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return "", nil
	}
	pages, err := Pages(b)
	if err != nil {
		return "", err
	}
	kept := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "\n\n"), nil
}

// Pages returns the plain text of every page in order. Pages without text
// come back as empty strings.
func Pages(data []byte) (pages []string, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf failed: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}
	n := reader.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d failed: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
