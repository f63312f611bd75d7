package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/papershelf/internal/providers"
)

func TestComplete(t *testing.T) {
	var got chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer server.Close()

	p := NewDeepSeek(WithURL(server.URL))
	reply, err := p.Complete(context.Background(), providers.Config{
		Model:       "deepseek-chat",
		Temperature: 0.1,
		MaxTokens:   4096,
		System:      "sys",
		Prompt:      "text",
		APIKey:      "sk-abc",
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if reply != `{"ok":true}` {
		t.Errorf("Expected JSON content, got %q", reply)
	}
	if auth != "Bearer sk-abc" {
		t.Errorf("Expected bearer auth, got %q", auth)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "text" {
		t.Errorf("Unexpected messages %+v", got.Messages)
	}
	if got.ResponseFormat["type"] != "json_object" || got.MaxTokens != 4096 {
		t.Errorf("Unexpected request options %+v", got)
	}
}

func TestCompleteStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p := New(WithURL(server.URL), WithName("test"))
	_, err := p.Complete(context.Background(), providers.Config{Model: "m", Prompt: "p", APIKey: "sk"})

	var statusErr *providers.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized || statusErr.Provider != "test" {
		t.Errorf("Unexpected status error %+v", statusErr)
	}
}

func TestCompleteRequiresKey(t *testing.T) {
	if _, err := New().Complete(context.Background(), providers.Config{Prompt: "p"}); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestDefaultURLs(t *testing.T) {
	if New().url != DefaultURL {
		t.Errorf("Expected %s, got %s", DefaultURL, New().url)
	}
	if NewDeepSeek().url != DeepSeekURL || NewDeepSeek().name != "deepseek" {
		t.Errorf("Unexpected deepseek provider %+v", NewDeepSeek())
	}
	if NewDeepSeek(WithURL("  ")).url != DeepSeekURL {
		t.Error("Expected blank URL override to be ignored")
	}
}
