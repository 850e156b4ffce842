// Package export writes a reader's highlights as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"studyhelper/pkg/domain"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Highlights"

var headers = []string{"Page", "Text", "Note", "Color", "Explanation", "Created"}

// ParseFormat accepts csv or xlsx; empty means csv.
func ParseFormat(raw string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, true
	case FormatXLSX:
		return FormatXLSX, true
	}
	return "", false
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// FileName builds the attachment name for a book title.
func (f Format) FileName(title string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, strings.TrimSpace(title))
	if base == "" {
		base = "book"
	}
	return base + "-highlights." + string(f)
}

// Row is one exported highlight.
type Row struct {
	Page        int
	Text        string
	Note        string
	Color       string
	Explanation string
	Created     time.Time
}

func (r Row) values() []string {
	return []string{
		strconv.Itoa(r.Page),
		r.Text,
		r.Note,
		r.Color,
		r.Explanation,
		r.Created.UTC().Format(time.RFC3339),
	}
}

// Rows joins highlights with their explanations, keyed by highlight ID.
func Rows(highlights []domain.Highlight, explanations map[string]domain.AIExplanation) []Row {
	rows := make([]Row, 0, len(highlights))
	for _, h := range highlights {
		rows = append(rows, Row{
			Page:        h.PageNumber,
			Text:        h.Text,
			Note:        h.Note,
			Color:       h.Color,
			Explanation: explanations[h.ID].Explanation,
			Created:     h.CreatedAt,
		})
	}
	return rows
}

// Write encodes rows in the given format.
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, rows)
	case FormatCSV:
		return WriteCSV(w, rows)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheetName, "A1", "F1", style)
	}
	_ = f.SetColWidth(sheetName, "B", "B", 60)
	_ = f.SetColWidth(sheetName, "E", "E", 80)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.Page, row.Text, row.Note, row.Color, row.Explanation, row.Created.UTC().Format(time.RFC3339)}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	return f.Write(w)
}
