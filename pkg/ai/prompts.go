package ai

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// FallbackExtractionText is returned to the reader when no text could be read
// from a captured region.
const FallbackExtractionText = "We couldn't read text from this selection. Try selecting a slightly larger area, or type the passage you want explained."

// ExtractionPrompt instructs vision models to transcribe, not interpret.
const ExtractionPrompt = `Transcribe all text visible in this image exactly as written.
Keep line breaks and mathematical notation. Do not add commentary, headings or explanations.
If there is no readable text, reply with an empty message.`

const explainSystemPrompt = `You are a patient study assistant helping a student understand a passage from a document they are reading.
Explain the selected passage clearly and accurately:
- start with a one or two sentence summary in plain language;
- define technical terms and notation that appear in the passage;
- use the surrounding context only to disambiguate, and say so when the passage is ambiguous;
- keep the answer under 300 words and use Markdown for structure.`

const questionSystemPrompt = `You are a patient study assistant answering follow-up questions about a passage and an explanation you gave earlier.
Answer the new question directly, building on the earlier explanation and conversation.
If the question cannot be answered from the passage and general knowledge, say what is missing.
Keep answers under 250 words and use Markdown for structure.`

// QA is one earlier follow-up exchange.
type QA struct {
	Question string
	Answer   string
}

// ExplainPrompt returns system and user prompts for explaining a highlight.
func ExplainPrompt(selected, context string) (string, string) {
	var sb strings.Builder
	sb.WriteString("Selected passage:\n\"\"\"\n")
	sb.WriteString(strings.TrimSpace(selected))
	sb.WriteString("\n\"\"\"\n")
	if ctx := strings.TrimSpace(context); ctx != "" {
		sb.WriteString("\nSurrounding text from the same page:\n\"\"\"\n")
		sb.WriteString(ctx)
		sb.WriteString("\n\"\"\"\n")
	}
	sb.WriteString("\nExplain the selected passage.")
	return explainSystemPrompt, sb.String()
}

// QuestionPrompt returns system and user prompts for a follow-up question.
func QuestionPrompt(selected, explanation string, history []QA, question string) (string, string) {
	var sb strings.Builder
	sb.WriteString("Selected passage:\n\"\"\"\n")
	sb.WriteString(strings.TrimSpace(selected))
	sb.WriteString("\n\"\"\"\n\nYour earlier explanation:\n\"\"\"\n")
	sb.WriteString(strings.TrimSpace(explanation))
	sb.WriteString("\n\"\"\"\n")
	if len(history) > 0 {
		sb.WriteString("\nEarlier follow-up questions:\n")
		for i, qa := range history {
			fmt.Fprintf(&sb, "Q%d: %s\nA%d: %s\n", i+1, strings.TrimSpace(qa.Question), i+1, strings.TrimSpace(qa.Answer))
		}
	}
	sb.WriteString("\nNew question: ")
	sb.WriteString(strings.TrimSpace(question))
	return questionSystemPrompt, sb.String()
}

// ContextWindow cuts up to size characters of pageText centred on the first
// occurrence of needle, or the start of the page when needle is absent.
func ContextWindow(pageText, needle string, size int) string {
	pageText = strings.TrimSpace(pageText)
	if size <= 0 || pageText == "" {
		return ""
	}
	runes := []rune(pageText)
	if len(runes) <= size {
		return pageText
	}

	center := 0
	needle = strings.TrimSpace(needle)
	if needle != "" {
		if i := indexFold(pageText, needle); i >= 0 {
			center = utf8.RuneCountInString(pageText[:i]) + utf8.RuneCountInString(needle)/2
		}
	}
	start := max(0, center-size/2)
	end := min(len(runes), start+size)
	start = max(0, end-size)
	return strings.TrimSpace(string(runes[start:end]))
}

// indexFold is a case-insensitive strings.Index that falls back to an exact
// match when lower-casing changes byte lengths.
func indexFold(s, substr string) int {
	if i := strings.Index(s, substr); i >= 0 {
		return i
	}
	ls, lsub := strings.ToLower(s), strings.ToLower(substr)
	if len(ls) != len(s) {
		return -1
	}
	return strings.Index(ls, lsub)
}

// PNGDataURL encodes png as a data URL for multimodal chat APIs.
func PNGDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
