package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible endpoint.
	GroqBaseURL            = "https://api.groq.com/openai/v1"
	DefaultGroqModel       = "llama-3.3-70b-versatile"
	DefaultGroqVisionModel = "meta-llama/llama-4-scout-17b-16e-instruct"
)

// OpenAICompatOptions configures an OpenAI-compatible chat client.
type OpenAICompatOptions struct {
	// BaseURL should include the /v1 prefix. Empty means Groq.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	HTTPClient  *http.Client
}

func newOpenAIClient(opts OpenAICompatOptions) *openai.Client {
	cfg := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	cfg.BaseURL = baseURL
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		cfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAICompatGenerator calls any OpenAI-compatible chat completions endpoint.
// Groq is the default; vLLM, LiteLLM, OpenRouter and OpenAI itself work too.
type OpenAICompatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAICompatGenerator builds an OpenAI-compatible TextGenerator.
func NewOpenAICompatGenerator(opts OpenAICompatOptions) *OpenAICompatGenerator {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGroqModel
	}
	return &OpenAICompatGenerator{
		client:      newOpenAIClient(opts),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

func (g *OpenAICompatGenerator) Model() string { return g.model }

// GenerateText implements TextGenerator using the chat completions API.
func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userPrompt})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai-compat request: %w", err)
	}
	return firstChoice(resp)
}

// OpenAICompatVision reads text from images with a multimodal chat model.
type OpenAICompatVision struct {
	client *openai.Client
	model  string
}

// NewOpenAICompatVision builds a TextExtractor on a vision-capable chat model.
func NewOpenAICompatVision(opts OpenAICompatOptions) *OpenAICompatVision {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGroqVisionModel
	}
	return &OpenAICompatVision{client: newOpenAIClient(opts), model: model}
}

// ExtractText sends the image inline as a data URL.
func (v *OpenAICompatVision) ExtractText(ctx context.Context, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: ExtractionPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    PNGDataURL(png),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai-compat vision request: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
