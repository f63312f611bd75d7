package ollama

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
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected /api/generate, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"{\"a\":1}","done":true}`))
	}))
	defer server.Close()

	p := New(server.URL+"/", nil)
	reply, err := p.Complete(context.Background(), providers.Config{
		Model:     "mistral",
		System:    "sys",
		Prompt:    "text",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if reply != `{"a":1}` {
		t.Errorf("Expected response text, got %q", reply)
	}
	if body["format"] != "json" || body["system"] != "sys" || body["stream"] != false {
		t.Errorf("Unexpected request body %v", body)
	}
	options, _ := body["options"].(map[string]any)
	if options["num_predict"] != float64(100) {
		t.Errorf("Expected num_predict 100, got %v", options["num_predict"])
	}
}

func TestCompleteStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, nil).Complete(context.Background(), providers.Config{Model: "nope"})
	var statusErr *providers.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 StatusError, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	if New("", nil).baseURL != DefaultURL {
		t.Errorf("Expected default URL, got %s", New("", nil).baseURL)
	}
}
