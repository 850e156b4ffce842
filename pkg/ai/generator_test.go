package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, reply string, inspect func(body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if inspect != nil {
			inspect(body)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompatGenerator(t *testing.T) {
	srv := chatServer(t, "  An eigenvalue is...  ", func(body map[string]any) {
		if body["model"] != "llama-test" {
			t.Errorf("model = %v", body["model"])
		}
		messages, _ := body["messages"].([]any)
		if len(messages) != 2 {
			t.Errorf("messages = %v", messages)
		}
	})
	gen := NewOpenAICompatGenerator(OpenAICompatOptions{BaseURL: srv.URL + "/v1/", APIKey: "test-key", Model: "llama-test"})

	text, err := gen.GenerateText(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "An eigenvalue is..." {
		t.Fatalf("text = %q", text)
	}
	if gen.Model() != "llama-test" {
		t.Fatalf("model = %q", gen.Model())
	}
}

func TestOpenAICompatGeneratorDefaultsToGroq(t *testing.T) {
	gen := NewOpenAICompatGenerator(OpenAICompatOptions{APIKey: "k"})
	if gen.Model() != DefaultGroqModel {
		t.Fatalf("default model = %q", gen.Model())
	}
}

func TestOpenAICompatGeneratorEmptyAnswer(t *testing.T) {
	srv := chatServer(t, "   ", nil)
	gen := NewOpenAICompatGenerator(OpenAICompatOptions{BaseURL: srv.URL, APIKey: "test-key", Model: "m"})
	if _, err := gen.GenerateText(context.Background(), "", "user"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestOpenAICompatVisionSendsImage(t *testing.T) {
	srv := chatServer(t, "x = 2", func(body map[string]any) {
		raw, _ := json.Marshal(body["messages"])
		if !strings.Contains(string(raw), "data:image/png;base64,") || !strings.Contains(string(raw), "image_url") {
			t.Errorf("vision request missing image part: %s", raw)
		}
	})
	v := NewOpenAICompatVision(OpenAICompatOptions{BaseURL: srv.URL, APIKey: "test-key"})
	text, err := v.ExtractText(context.Background(), []byte("png-bytes"))
	if err != nil || text != "x = 2" {
		t.Fatalf("extract = %q, %v", text, err)
	}
	if _, err := v.ExtractText(context.Background(), nil); err == nil {
		t.Fatalf("empty image should fail")
	}
}

func TestOllamaGeneratorAndVision(t *testing.T) {
	var sawImage bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		last := req.Messages[len(req.Messages)-1]
		if len(last.Images) > 0 {
			sawImage = true
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaChatMessage{Role: "assistant", Content: "ok"}})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	if text, err := NewOllamaGenerator(client, "llama3").GenerateText(context.Background(), "s", "u"); err != nil || text != "ok" {
		t.Fatalf("generate = %q, %v", text, err)
	}
	if _, err := NewOllamaVision(client, "llava").ExtractText(context.Background(), []byte("png")); err != nil {
		t.Fatalf("vision: %v", err)
	}
	if !sawImage {
		t.Fatalf("vision request should carry an image")
	}
	if _, err := NewOllamaGenerator(client, " ").GenerateText(context.Background(), "", "u"); err == nil {
		t.Fatalf("missing model should fail")
	}
}

func TestGeminiGeneratorJoinsParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient("key")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.baseURL = srv.URL
	text, err := NewGeminiGenerator(client, "models/gemini-test").GenerateText(context.Background(), "s", "u")
	if err != nil || text != "Hello world" {
		t.Fatalf("generate = %q, %v", text, err)
	}
}
