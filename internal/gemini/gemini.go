package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/papershelf/internal/providers"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	opts []option.ClientOption
}

// New returns a new Gemini provider. opts are passed to every client it creates
func New(opts ...option.ClientOption) *Gemini {
	return &Gemini{opts: opts}
}

// Complete runs the prompt through Gemini and asks for a JSON response
func (g *Gemini) Complete(ctx context.Context, config providers.Config) (string, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return "", fmt.Errorf("gemini: api key required")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(config.APIKey)}, g.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(config.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"
	if config.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(config.System))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(config.Prompt))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", &providers.StatusError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return b.String(), nil
}
