package ai

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestContextWindow(t *testing.T) {
	page := strings.Repeat("a", 100) + "NEEDLE" + strings.Repeat("b", 100)

	got := ContextWindow(page, "needle", 20)
	if utf8.RuneCountInString(got) != 20 || !strings.Contains(got, "NEEDLE") {
		t.Fatalf("window = %q", got)
	}

	if got := ContextWindow(page, "missing", 10); got != strings.Repeat("a", 10) {
		t.Fatalf("window without match = %q", got)
	}
	if got := ContextWindow("short page", "page", 1500); got != "short page" {
		t.Fatalf("short page = %q", got)
	}
	if got := ContextWindow(page, "b", 0); got != "" {
		t.Fatalf("zero size should yield empty, got %q", got)
	}

	tail := ContextWindow(page, strings.Repeat("b", 100), 30)
	if utf8.RuneCountInString(tail) != 30 || !strings.HasSuffix(tail, "bbb") {
		t.Fatalf("window near the end should clamp, got %q", tail)
	}
}

func TestExplainPrompt(t *testing.T) {
	system, user := ExplainPrompt("  eigenvalue  ", "context line")
	if system == "" {
		t.Fatalf("system prompt should not be empty")
	}
	if !strings.Contains(user, "eigenvalue") || !strings.Contains(user, "context line") {
		t.Fatalf("user prompt = %q", user)
	}
	_, noContext := ExplainPrompt("eigenvalue", " ")
	if strings.Contains(noContext, "Surrounding text") {
		t.Fatalf("empty context should be omitted: %q", noContext)
	}
}

func TestQuestionPromptIncludesHistory(t *testing.T) {
	_, user := QuestionPrompt("passage", "explanation", []QA{{Question: "why?", Answer: "because"}}, "how?")
	for _, want := range []string{"passage", "explanation", "Q1: why?", "A1: because", "New question: how?"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
}

func TestPNGDataURL(t *testing.T) {
	if got := PNGDataURL([]byte{0x89, 'P', 'N', 'G'}); got != "data:image/png;base64,iVBORw==" {
		t.Fatalf("data url = %q", got)
	}
}
