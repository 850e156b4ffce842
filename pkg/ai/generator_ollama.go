package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// OllamaGenerator wraps OllamaClient with a fixed model for text generation
// using the Ollama /api/chat endpoint.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

// NewOllamaGenerator builds an Ollama-based TextGenerator.
func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

func (g *OllamaGenerator) Model() string { return g.model }

// GenerateText implements TextGenerator using Ollama /api/chat.
func (g *OllamaGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.client.chat(ctx, g.model, systemPrompt, userPrompt)
}

// OllamaVision reads text from images with a local multimodal model (llava,
// llama3.2-vision, ...).
type OllamaVision struct {
	client *OllamaClient
	model  string
}

func NewOllamaVision(client *OllamaClient, model string) *OllamaVision {
	return &OllamaVision{client: client, model: model}
}

// ExtractText implements TextExtractor.
func (v *OllamaVision) ExtractText(ctx context.Context, png []byte) (string, error) {
	return v.client.chat(ctx, v.model, "", ExtractionPrompt, png)
}

func (c *OllamaClient) chat(ctx context.Context, model, systemPrompt, userPrompt string, images ...[]byte) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", fmt.Errorf("ollama generation model required")
	}

	messages := make([]ollamaChatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	user := ollamaChatMessage{Role: "user", Content: userPrompt}
	for _, img := range images {
		user.Images = append(user.Images, base64.StdEncoding.EncodeToString(img))
	}
	messages = append(messages, user)

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}

	var resp ollamaChatResponse
	if _, err := c.doJSON(ctx, "/api/chat", reqBody, &resp); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Ollama /api/chat request/response types.

type ollamaChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
