package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateRequiresAPIKey(t *testing.T) {
	for _, provider := range []string{"openai", "anthropic", "google", "gemini"} {
		t.Run(provider, func(t *testing.T) {
			client := NewClient(Config{Provider: provider, Model: "m"})
			_, err := client.Generate(context.Background(), Request{Prompt: "hi"})
			if !errors.Is(err, ErrMissingAPIKey) {
				t.Fatalf("expected ErrMissingAPIKey, got %v", err)
			}
		})
	}
}

func TestGenerateUnsupportedProvider(t *testing.T) {
	client := NewClient(Config{Provider: "cohere", APIKey: "k"})
	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  hello "},{"type":"text","text":"world  "}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{
		Provider: "Anthropic",
		Model:    "claude-test",
		APIKey:   "secret",
		Extra:    map[string]string{"base_url": srv.URL},
	})
	text, err := client.Generate(context.Background(), Request{Prompt: "question", MaxTokens: 42})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text = %q, want %q", text, "hello world")
	}
	if got.Model != "claude-test" || got.MaxTokens != 42 {
		t.Errorf("unexpected request %+v", got)
	}
	if got.System != anthropicDefaultSys {
		t.Errorf("system = %q, want default", got.System)
	}
	if got.Temperature != DefaultTemperature {
		t.Errorf("temperature = %v, want %v", got.Temperature, DefaultTemperature)
	}
}

func TestAnthropicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(Config{Provider: "anthropic", APIKey: "k", Extra: map[string]string{"base_url": srv.URL}})
	if _, err := client.Generate(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
