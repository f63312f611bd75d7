// Package analysis sends extracted paper text to an LLM provider and returns the
// structured parse stored with each record.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
	"github.com/lehigh-university-libraries/papershelf/internal/providers"
)

var (
	// ErrInvalidCredentials is returned for a missing key or a 401/403 answer.
	// It is never retried.
	ErrInvalidCredentials = errors.New("invalid API key")
	// ErrTransient wraps the last failure once every attempt has been used.
	ErrTransient = errors.New("analysis service unavailable")
	// ErrMalformedResponse is returned when the reply holds no usable JSON object.
	ErrMalformedResponse = errors.New("AI response was not valid JSON")
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 4096
	defaultAttempts    = 3
	defaultBaseDelay   = 10 * time.Second
)

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.+?)\\s*```")

type Analyzer struct {
	provider    providers.Provider
	model       string
	temperature float64
	maxTokens   int
	attempts    int
	baseDelay   time.Duration
	timeout     time.Duration
	sleeper     func(context.Context, time.Duration) error
	schema      *jsonschema.Schema
	logger      *slog.Logger
}

// Option customizes the analyzer.
type Option func(*Analyzer)

// WithTemperature overrides the sampling temperature (defaults to 0.1).
func WithTemperature(t float64) Option {
	return func(a *Analyzer) { a.temperature = t }
}

// WithMaxTokens overrides the completion budget (defaults to 4096).
func WithMaxTokens(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithRetry overrides the attempt count and the first backoff delay. Each later
// delay doubles the previous one.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(a *Analyzer) {
		if attempts > 0 {
			a.attempts = attempts
		}
		if baseDelay >= 0 {
			a.baseDelay = baseDelay
		}
	}
}

// WithTimeout bounds each provider call. A call that runs out of time is retried
// like any other transient failure.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithSleeper overrides how retry sleeps are performed.
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(a *Analyzer) { a.sleeper = sleeper }
}

// WithLogger sets the analyzer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New returns an analyzer that sends requests for model to provider.
func New(provider providers.Provider, model string, opts ...Option) (*Analyzer, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("parse.json", strings.NewReader(parseSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("parse.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	a := &Analyzer{
		provider:    provider,
		model:       model,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		attempts:    defaultAttempts,
		baseDelay:   defaultBaseDelay,
		sleeper:     sleep,
		schema:      schema,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "analysis")
	return a, nil
}

// Analyze asks the provider for the structured summary of text. Transient
// failures are retried with exponential backoff; credential failures and
// malformed replies end the call immediately.
func (a *Analyzer) Analyze(ctx context.Context, text, apiKey string) (models.Document, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrInvalidCredentials
	}

	requestID := uuid.NewString()
	config := providers.Config{
		Model:       a.model,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
		System:      systemPrompt,
		Prompt:      userPromptPrefix + text,
		APIKey:      apiKey,
	}

	delay := a.baseDelay
	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		a.logger.Info("sending text for analysis", "request_id", requestID, "attempt", attempt, "chars", len([]rune(text)))

		reply, err := a.complete(ctx, config)
		if err == nil {
			doc, err := a.decode(reply)
			if err != nil {
				a.logger.Error("analysis reply was not usable", "request_id", requestID, "err", err)
				return nil, err
			}
			a.logger.Info("analysis complete", "request_id", requestID, "attempt", attempt)
			return doc, nil
		}

		if cerr := classify(ctx, err); cerr != nil {
			a.logger.Error("analysis failed", "request_id", requestID, "attempt", attempt, "err", err)
			return nil, cerr
		}
		lastErr = err
		a.logger.Warn("analysis attempt failed", "request_id", requestID, "attempt", attempt, "of", a.attempts, "err", err)
		if attempt == a.attempts {
			break
		}
		if err := a.sleeper(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, fmt.Errorf("%w: failed after %d attempts: %v", ErrTransient, a.attempts, lastErr)
}

func (a *Analyzer) complete(ctx context.Context, config providers.Config) (string, error) {
	if a.timeout <= 0 {
		return a.provider.Complete(ctx, config)
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.provider.Complete(ctx, config)
}

// classify returns nil for retryable failures and the error to surface otherwise.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *providers.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w (http %d)", ErrInvalidCredentials, statusErr.StatusCode)
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return nil
		default:
			return err
		}
	}
	// network failures, per-call timeouts and undecodable bodies
	return nil
}

func (a *Analyzer) decode(reply string) (models.Document, error) {
	payload, ok := cleanJSON(reply)
	if !ok {
		return nil, ErrMalformedResponse
	}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := a.schema.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrMalformedResponse
	}
	return models.Document(obj), nil
}

// cleanJSON pulls the JSON object out of a model reply: a fenced ```json block
// first, then the outermost braces, then the whole reply.
func cleanJSON(reply string) (string, bool) {
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	first := strings.Index(reply, "{")
	last := strings.LastIndex(reply, "}")
	if first != -1 && last > first {
		candidate := reply[first : last+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}
	trimmed := strings.TrimSpace(reply)
	if json.Valid([]byte(trimmed)) {
		return trimmed, true
	}
	return "", false
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
