package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/papershelf/internal/analysis"
	"github.com/lehigh-university-libraries/papershelf/internal/config"
	"github.com/lehigh-university-libraries/papershelf/internal/gemini"
	"github.com/lehigh-university-libraries/papershelf/internal/literature"
	"github.com/lehigh-university-libraries/papershelf/internal/ollama"
	"github.com/lehigh-university-libraries/papershelf/internal/openai"
	"github.com/lehigh-university-libraries/papershelf/internal/pdf"
	"github.com/lehigh-university-libraries/papershelf/internal/providers"
	"github.com/lehigh-university-libraries/papershelf/internal/storage"
)

// newProvider returns the LLM transport named in the analysis config.
func newProvider(cfg config.Analysis) (providers.Provider, error) {
	switch cfg.Provider {
	case "deepseek":
		return openai.NewDeepSeek(openai.WithURL(cfg.BaseURL)), nil
	case "openai":
		return openai.New(openai.WithURL(cfg.BaseURL)), nil
	case "ollama":
		return ollama.New(cfg.BaseURL, nil), nil
	case "gemini":
		var opts []option.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithEndpoint(cfg.BaseURL))
		}
		return gemini.New(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported analysis provider: %s", cfg.Provider)
	}
}

func newAnalyzer(cfg config.Analysis, logger *slog.Logger) (*analysis.Analyzer, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return analysis.New(provider, cfg.Model,
		analysis.WithTemperature(cfg.Temperature),
		analysis.WithMaxTokens(cfg.MaxTokens),
		analysis.WithTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second),
		analysis.WithRetry(cfg.RetryAttempts, time.Duration(cfg.RetryBaseDelaySeconds)*time.Second),
		analysis.WithLogger(logger),
	)
}

// newService opens the library and assembles the literature service around it.
func newService(cfg config.Config) (*literature.Service, error) {
	logger := slog.Default()

	store, err := storage.New(cfg.LibraryDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	analyzer, err := newAnalyzer(cfg.Analysis, logger)
	if err != nil {
		return nil, err
	}
	extractor := pdf.NewExtractor(pdf.Config{
		Pdftotext:    cfg.PDF.Pdftotext,
		Pdfimages:    cfg.PDF.Pdfimages,
		MinImageSize: cfg.PDF.MinImageSize,
	}, logger)

	return literature.NewService(store, extractor, analyzer, literature.WithLogger(logger)), nil
}
