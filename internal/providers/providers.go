package providers

import (
	"context"
	"fmt"
	"strings"
)

// Config represents one completion request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// System is sent as the system instruction when the backend supports one.
	System string
	Prompt string
	APIKey string
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Complete(ctx context.Context, config Config) (string, error)
}

// StatusError reports a non-success HTTP status from a provider backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, truncate(strings.TrimSpace(e.Body), 300))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
