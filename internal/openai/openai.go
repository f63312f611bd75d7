package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/papershelf/internal/providers"
)

const (
	// DefaultURL is the OpenAI chat completions endpoint.
	DefaultURL = "https://api.openai.com/v1/chat/completions"
	// DeepSeekURL is DeepSeek's OpenAI compatible endpoint.
	DeepSeekURL = "https://api.deepseek.com/chat/completions"
)

// OpenAI is a provider for OpenAI compatible chat completion APIs
type OpenAI struct {
	name       string
	url        string
	httpClient *http.Client
}

// Option customizes the provider.
type Option func(*OpenAI)

// WithURL points the provider at another chat completions endpoint.
func WithURL(url string) Option {
	return func(o *OpenAI) {
		if url = strings.TrimSpace(url); url != "" {
			o.url = url
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *OpenAI) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithName sets the provider name used in errors.
func WithName(name string) Option {
	return func(o *OpenAI) { o.name = name }
}

// New returns a new OpenAI provider
func New(opts ...Option) *OpenAI {
	o := &OpenAI{name: "openai", url: DefaultURL, httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewDeepSeek returns the provider configured for DeepSeek
func NewDeepSeek(opts ...Option) *OpenAI {
	return New(append([]Option{WithName("deepseek"), WithURL(DeepSeekURL)}, opts...)...)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

// Complete sends the prompt as a chat completion and returns the first choice
func (o *OpenAI) Complete(ctx context.Context, config providers.Config) (string, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return "", fmt.Errorf("%s: api key required", o.name)
	}

	messages := make([]chatMessage, 0, 2)
	if config.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: config.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: config.Prompt})

	requestBody, err := json.Marshal(chatRequest{
		Model:          config.Model,
		Messages:       messages,
		Temperature:    config.Temperature,
		MaxTokens:      config.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.APIKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &providers.StatusError{Provider: o.name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from %s", o.name)
	}

	return response.Choices[0].Message.Content, nil
}
