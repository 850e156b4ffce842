package ai

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without text.
var ErrEmptyResponse = errors.New("empty response from model")

// TextGenerator generates text from a system prompt and user prompt.
// All LLM providers (Groq/OpenAI-compatible, Gemini, Ollama) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Model names the model answers come from; it is stored with explanations.
	Model() string
}

// TextExtractor reads the text visible in an image (PNG bytes).
type TextExtractor interface {
	ExtractText(ctx context.Context, png []byte) (string, error)
}

// PDFPageOCR recognises text of selected PDF pages (1-based) for documents
// without an embedded text layer.
type PDFPageOCR interface {
	OCRPages(ctx context.Context, pdf []byte, pages []int) (map[int]string, error)
}
