// Package pdfdoc reads page counts and per-page plain text from PDF files.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"studyhelper/pkg/domain"
)

var ErrNotPDF = errors.New("not a pdf document")

var magic = []byte("%PDF")

// Document is the result of inspecting a PDF.
type Document struct {
	TotalPages int
	Pages      []domain.Page
}

// EmptyPages returns the numbers of pages that yielded no text.
func (d Document) EmptyPages() []int {
	var out []int
	for _, p := range d.Pages {
		if p.Text == "" {
			out = append(out, p.Number)
		}
	}
	return out
}

// IsPDF reports whether head starts with the PDF magic, ignoring leading whitespace.
func IsPDF(head []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n\x00"), magic)
}

// Inspect counts pages and extracts their text. Pages that fail to decode
// are kept with empty text.
func Inspect(r io.ReaderAt, size int64) (doc Document, err error) {
	head := make([]byte, 1024)
	n, _ := r.ReadAt(head, 0)
	if !IsPDF(head[:n]) {
		return Document{}, ErrNotPDF
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	if total <= 0 {
		return Document{}, errors.New("pdf has no pages")
	}
	doc = Document{TotalPages: total, Pages: make([]domain.Page, 0, total)}
	for i := 1; i <= total; i++ {
		doc.Pages = append(doc.Pages, domain.Page{Number: i, Text: pageText(reader, i)})
	}
	return doc, nil
}

// InspectBytes is Inspect over an in-memory file.
func InspectBytes(data []byte) (Document, error) {
	return Inspect(bytes.NewReader(data), int64(len(data)))
}

func pageText(reader *pdf.Reader, number int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	page := reader.Page(number)
	if page.V.IsNull() {
		return ""
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return Normalize(raw)
}

// Normalize strips NUL bytes and invalid UTF-8 and collapses whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}
