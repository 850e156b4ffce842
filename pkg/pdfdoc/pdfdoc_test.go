package pdfdoc

import (
	"errors"
	"strings"
	"testing"

	"studyhelper/pkg/pdfdoc/pdftest"
)

func TestInspectExtractsPages(t *testing.T) {
	doc, err := InspectBytes(pdftest.Build("Photosynthesis basics", "Chlorophyll absorbs light"))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if doc.TotalPages != 2 || len(doc.Pages) != 2 {
		t.Fatalf("unexpected page count: %+v", doc)
	}
	if doc.Pages[0].Number != 1 || !strings.Contains(doc.Pages[0].Text, "Photosynthesis") {
		t.Fatalf("page 1 = %+v", doc.Pages[0])
	}
	if !strings.Contains(doc.Pages[1].Text, "Chlorophyll") {
		t.Fatalf("page 2 = %+v", doc.Pages[1])
	}
	if empty := doc.EmptyPages(); len(empty) != 0 {
		t.Fatalf("unexpected empty pages %v", empty)
	}
}

func TestInspectReportsEmptyPages(t *testing.T) {
	doc, err := InspectBytes(pdftest.Build("Cover", "", "Index"))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	empty := doc.EmptyPages()
	if doc.TotalPages != 3 || len(empty) != 1 || empty[0] != 2 {
		t.Fatalf("empty pages = %v of %d", empty, doc.TotalPages)
	}
}

func TestInspectRejectsNonPDF(t *testing.T) {
	_, err := InspectBytes([]byte("GIF89a not a pdf"))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("err = %v, want ErrNotPDF", err)
	}
}

func TestInspectCorruptPDF(t *testing.T) {
	if _, err := InspectBytes([]byte("%PDF-1.4\ngarbage without xref")); err == nil {
		t.Fatalf("expected error for corrupt pdf")
	}
}

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("\n%PDF-1.7")) {
		t.Fatalf("leading whitespace should be tolerated")
	}
	if IsPDF([]byte("PK\x03\x04")) {
		t.Fatalf("zip is not a pdf")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(" a\x00b \n\n c\t"); got != "a b c" {
		t.Fatalf("normalize = %q", got)
	}
}
