package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"LITERATURE_DIR", "PORT", "LOG_LEVEL", "LOG_FORMAT", "ANALYSIS_PROVIDER", "ANALYSIS_MODEL", "ANALYSIS_BASE_URL"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "papershelf.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LibraryDir != "literature_db" || cfg.Port != 5000 {
		t.Errorf("Expected default dir and port, got %q %d", cfg.LibraryDir, cfg.Port)
	}
	if cfg.Analysis.Provider != "deepseek" || cfg.Analysis.Model != "deepseek-chat" {
		t.Errorf("Expected deepseek defaults, got %q %q", cfg.Analysis.Provider, cfg.Analysis.Model)
	}
	if cfg.MaxUploadBytes() != 100<<20 {
		t.Errorf("Expected 100MB cap, got %d", cfg.MaxUploadBytes())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
library_dir: /data/papers
port: 8080
analysis:
  provider: Ollama
  retry_attempts: 5
pdf:
  min_image_size: 64
`)
	t.Setenv("PORT", "9090")
	t.Setenv("ANALYSIS_MODEL", "qwen2.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LibraryDir != "/data/papers" {
		t.Errorf("Expected library dir from file, got %q", cfg.LibraryDir)
	}
	if cfg.Port != 9090 {
		t.Errorf("Expected env port to win, got %d", cfg.Port)
	}
	if cfg.Analysis.Provider != "ollama" || cfg.Analysis.Model != "qwen2.5" {
		t.Errorf("Expected ollama/qwen2.5, got %q/%q", cfg.Analysis.Provider, cfg.Analysis.Model)
	}
	if cfg.Analysis.RetryAttempts != 5 || cfg.Analysis.MaxTokens != 4096 {
		t.Errorf("Expected file value and default to merge, got %d %d", cfg.Analysis.RetryAttempts, cfg.Analysis.MaxTokens)
	}
	if cfg.PDF.MinImageSize != 64 || cfg.PDF.Pdftotext != "pdftotext" {
		t.Errorf("Unexpected pdf config %+v", cfg.PDF)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		want    string
	}{
		{name: "unknown provider", content: "analysis:\n  provider: claude\n", want: "unsupported analysis provider"},
		{name: "bad port env", content: "", env: map[string]string{"PORT": "http"}, want: "invalid PORT"},
		{name: "empty library dir", content: "library_dir: '  '\n", want: "library_dir"},
		{name: "zero attempts", content: "analysis:\n  retry_attempts: 0\n", want: "retry_attempts"},
		{name: "bad yaml", content: "port: [1,\n", want: "failed to parse"},
		{name: "bad log format", content: "log_format: xml\n", want: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}
