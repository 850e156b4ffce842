package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"studyhelper/pkg/domain"
)

func sampleRows() []Row {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	highlights := []domain.Highlight{
		{ID: "h1", PageNumber: 3, Text: "mitochondria, the powerhouse", Color: "#ffeb3b", CreatedAt: created},
		{ID: "h2", PageNumber: 7, Text: "ATP synthase", Note: "exam", Color: "#90caf9", CreatedAt: created.Add(time.Hour)},
	}
	explanations := map[string]domain.AIExplanation{
		"h1": {HighlightID: "h1", Explanation: "Organelles producing energy."},
	}
	return Rows(highlights, explanations)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sampleRows()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if records[0][0] != "Page" || records[1][1] != "mitochondria, the powerhouse" {
		t.Fatalf("unexpected records %v", records)
	}
	if records[1][4] != "Organelles producing energy." || records[2][4] != "" {
		t.Fatalf("explanations not joined: %v", records)
	}
	if records[1][5] != "2026-03-01T09:30:00Z" {
		t.Fatalf("created = %q", records[1][5])
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatXLSX, sampleRows()); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	tests := map[string]string{
		"A1": "Page",
		"A2": "3",
		"B3": "ATP synthase",
		"C3": "exam",
		"E2": "Organelles producing energy.",
	}
	for cell, want := range tests {
		got, err := f.GetCellValue(sheetName, cell)
		if err != nil {
			t.Fatalf("get %s: %v", cell, err)
		}
		if got != want {
			t.Fatalf("%s = %q, want %q", cell, got, want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat(""); !ok || f != FormatCSV {
		t.Fatalf("empty format = %q, %v", f, ok)
	}
	if f, ok := ParseFormat("XLSX"); !ok || f != FormatXLSX {
		t.Fatalf("xlsx format = %q, %v", f, ok)
	}
	if _, ok := ParseFormat("pdf"); ok {
		t.Fatalf("pdf must be rejected")
	}
	if got := FormatXLSX.FileName("Cell Biology: Vol 2"); got != "Cell-Biology-Vol-2-highlights.xlsx" {
		t.Fatalf("file name = %q", got)
	}
}
