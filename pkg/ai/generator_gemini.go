package ai

import "context"

// GeminiGenerator wraps GeminiClient with a fixed model for text generation.
type GeminiGenerator struct {
	client *GeminiClient
	model  string
}

// NewGeminiGenerator builds a Gemini-based TextGenerator.
func NewGeminiGenerator(client *GeminiClient, model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) Model() string { return g.model }

// GenerateText implements TextGenerator using Gemini.
func (g *GeminiGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.GenerateText(ctx, g.model, systemPrompt, userPrompt)
}

// GeminiVision reads text from images with a multimodal Gemini model.
type GeminiVision struct {
	client *GeminiClient
	model  string
}

func NewGeminiVision(client *GeminiClient, model string) *GeminiVision {
	return &GeminiVision{client: client, model: model}
}

// ExtractText implements TextExtractor.
func (g *GeminiVision) ExtractText(ctx context.Context, png []byte) (string, error) {
	return g.client.GenerateText(ctx, g.model, "", ExtractionPrompt, png)
}
