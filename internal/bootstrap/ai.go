package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyhelper/pkg/ai"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderGoogle = "google"
	ProviderNone   = "none"
)

const (
	defaultGeminiModel  = "gemini-2.0-flash"
	defaultOllamaModel  = "llama3.1"
	defaultOllamaVision = "llava"
)

// AIConfig selects the explanation generator and the text extractor.
type AIConfig struct {
	// AIProvider is groq (default), openai, gemini, ollama or none.
	AIProvider string `yaml:"aiProvider"`
	// ExtractorProvider is groq, openai, google, gemini, ollama or none;
	// empty follows AIProvider.
	ExtractorProvider string  `yaml:"extractorProvider"`
	OpenAIBaseURL     string  `yaml:"openAIBaseURL"`
	OpenAIAPIKey      string  `yaml:"openAIAPIKey"`
	GroqAPIKey        string  `yaml:"groqAPIKey"`
	Model             string  `yaml:"model"`
	VisionModel       string  `yaml:"visionModel"`
	Temperature       float32 `yaml:"temperature"`
	MaxTokens         int     `yaml:"maxTokens"`
	GeminiAPIKey      string  `yaml:"geminiAPIKey"`
	OllamaURL         string  `yaml:"ollamaURL"`

	GoogleVisionCredentialsFile string   `yaml:"googleVisionCredentialsFile"`
	GoogleVisionCredentialsJSON string   `yaml:"googleVisionCredentialsJSON"`
	GoogleVisionLanguageHints   []string `yaml:"googleVisionLanguageHints"`
}

func (c *AIConfig) ApplyEnv() {
	envString("AI_PROVIDER", &c.AIProvider)
	envString("EXTRACTOR_PROVIDER", &c.ExtractorProvider)
	envString("OPENAI_BASE_URL", &c.OpenAIBaseURL)
	envString("OPENAI_API_KEY", &c.OpenAIAPIKey)
	envString("GROQ_API_KEY", &c.GroqAPIKey)
	envString("AI_MODEL", &c.Model)
	envString("AI_VISION_MODEL", &c.VisionModel)
	envFloat32("AI_TEMPERATURE", &c.Temperature)
	envInt("AI_MAX_TOKENS", &c.MaxTokens)
	envString("GEMINI_API_KEY", &c.GeminiAPIKey)
	envString("OLLAMA_URL", &c.OllamaURL)
	envString("GOOGLE_VISION_CREDENTIALS_FILE", &c.GoogleVisionCredentialsFile)
	envString("GOOGLE_VISION_CREDENTIALS_JSON", &c.GoogleVisionCredentialsJSON)
	var hints string
	envString("GOOGLE_VISION_LANGUAGE_HINTS", &hints)
	if hints != "" {
		c.GoogleVisionLanguageHints = SplitCSV(hints)
	}
}

func (c AIConfig) provider() string {
	p := strings.ToLower(strings.TrimSpace(c.AIProvider))
	if p == "" {
		return ProviderGroq
	}
	return p
}

func (c AIConfig) extractorProvider() string {
	p := strings.ToLower(strings.TrimSpace(c.ExtractorProvider))
	if p == "" {
		return c.provider()
	}
	return p
}

func (c AIConfig) Validate() error {
	switch c.provider() {
	case ProviderGroq:
		if strings.TrimSpace(c.GroqAPIKey) == "" {
			return errors.New("config: groqAPIKey is required for the groq provider (set in config.yaml or GROQ_API_KEY)")
		}
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIBaseURL) == "" {
			return errors.New("config: openAIBaseURL is required for the openai provider")
		}
	case ProviderGemini:
		if strings.TrimSpace(c.GeminiAPIKey) == "" {
			return errors.New("config: geminiAPIKey is required for the gemini provider (set in config.yaml or GEMINI_API_KEY)")
		}
	case ProviderOllama, ProviderNone:
	default:
		return fmt.Errorf("config: unknown aiProvider %q", c.AIProvider)
	}
	switch c.extractorProvider() {
	case ProviderGoogle:
		if strings.TrimSpace(c.GoogleVisionCredentialsFile) == "" && strings.TrimSpace(c.GoogleVisionCredentialsJSON) == "" {
			return errors.New("config: googleVisionCredentialsFile or googleVisionCredentialsJSON is required for the google extractor")
		}
	case ProviderGroq, ProviderOpenAI, ProviderGemini, ProviderOllama, ProviderNone:
	default:
		return fmt.Errorf("config: unknown extractorProvider %q", c.ExtractorProvider)
	}
	return nil
}

func (c AIConfig) openAIOptions(provider, model string) ai.OpenAICompatOptions {
	opts := ai.OpenAICompatOptions{
		APIKey:      c.GroqAPIKey,
		Model:       model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
	if provider == ProviderOpenAI {
		opts.BaseURL = c.OpenAIBaseURL
		opts.APIKey = c.OpenAIAPIKey
	}
	return opts
}

// NewGenerator returns the explanation generator, or nil for provider none.
func NewGenerator(c AIConfig) (ai.TextGenerator, error) {
	switch c.provider() {
	case ProviderGroq, ProviderOpenAI:
		return ai.NewOpenAICompatGenerator(c.openAIOptions(c.provider(), c.Model)), nil
	case ProviderGemini:
		client, err := ai.NewGeminiClient(c.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, orString(c.Model, defaultGeminiModel)), nil
	case ProviderOllama:
		return ai.NewOllamaGenerator(ai.NewOllamaClient(c.OllamaURL), orString(c.Model, defaultOllamaModel)), nil
	case ProviderNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown ai provider %q", c.AIProvider)
}

// NewExtractor returns the vision text extractor and a release function, or
// a nil extractor for provider none.
func NewExtractor(ctx context.Context, c AIConfig) (ai.TextExtractor, func() error, error) {
	noop := func() error { return nil }
	switch c.extractorProvider() {
	case ProviderGroq, ProviderOpenAI:
		return ai.NewOpenAICompatVision(c.openAIOptions(c.extractorProvider(), c.VisionModel)), noop, nil
	case ProviderGoogle:
		g, err := c.googleVision(ctx)
		if err != nil {
			return nil, noop, err
		}
		return g, g.Close, nil
	case ProviderGemini:
		client, err := ai.NewGeminiClient(c.GeminiAPIKey)
		if err != nil {
			return nil, noop, err
		}
		return ai.NewGeminiVision(client, orString(c.VisionModel, defaultGeminiModel)), noop, nil
	case ProviderOllama:
		return ai.NewOllamaVision(ai.NewOllamaClient(c.OllamaURL), orString(c.VisionModel, defaultOllamaVision)), noop, nil
	case ProviderNone:
		return nil, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown extractor provider %q", c.ExtractorProvider)
}

// NewPageOCR returns Cloud Vision OCR for scanned PDF pages when Google
// Vision credentials are configured, otherwise nil.
func NewPageOCR(ctx context.Context, c AIConfig) (ai.PDFPageOCR, func() error, error) {
	noop := func() error { return nil }
	if strings.TrimSpace(c.GoogleVisionCredentialsFile) == "" && strings.TrimSpace(c.GoogleVisionCredentialsJSON) == "" {
		return nil, noop, nil
	}
	g, err := c.googleVision(ctx)
	if err != nil {
		return nil, noop, err
	}
	return g, g.Close, nil
}

func (c AIConfig) googleVision(ctx context.Context) (*ai.GoogleVisionExtractor, error) {
	return ai.NewGoogleVisionExtractor(ctx, ai.GoogleVisionOptions{
		CredentialsFile: c.GoogleVisionCredentialsFile,
		CredentialsJSON: c.GoogleVisionCredentialsJSON,
		LanguageHints:   c.GoogleVisionLanguageHints,
	})
}

func orString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
