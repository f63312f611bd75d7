// Package config loads papershelf settings from defaults, an optional YAML file and
// environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no path is given and it exists in the working directory.
const DefaultFile = "papershelf.yaml"

type Config struct {
	LibraryDir  string   `yaml:"library_dir"`
	Port        int      `yaml:"port"`
	StaticDir   string   `yaml:"static_dir"`
	MaxUploadMB int      `yaml:"max_upload_mb"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	Analysis    Analysis `yaml:"analysis"`
	PDF         PDF      `yaml:"pdf"`
}

type Analysis struct {
	Provider              string  `yaml:"provider"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	TimeoutSeconds        int     `yaml:"timeout_seconds"`
	RetryAttempts         int     `yaml:"retry_attempts"`
	RetryBaseDelaySeconds int     `yaml:"retry_base_delay_seconds"`
}

type PDF struct {
	Pdftotext    string `yaml:"pdftotext"`
	Pdfimages    string `yaml:"pdfimages"`
	MinImageSize int    `yaml:"min_image_size"`
}

var providerModels = map[string]string{
	"deepseek": "deepseek-chat",
	"openai":   "gpt-4o",
	"ollama":   "mistral-small3.2:24b",
	"gemini":   "gemini-1.5-flash",
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LibraryDir:  "literature_db",
		Port:        5000,
		StaticDir:   "static",
		MaxUploadMB: 100,
		LogLevel:    "info",
		LogFormat:   "text",
		Analysis: Analysis{
			Provider:              "deepseek",
			Temperature:           0.1,
			MaxTokens:             4096,
			TimeoutSeconds:        300,
			RetryAttempts:         3,
			RetryBaseDelaySeconds: 10,
		},
		PDF: PDF{
			Pdftotext:    "pdftotext",
			Pdfimages:    "pdfimages",
			MinImageSize: 100,
		},
	}
}

// Load builds the configuration. An empty path falls back to DefaultFile when it
// exists; an explicit path that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LITERATURE_DIR"); v != "" {
		c.LibraryDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ANALYSIS_PROVIDER"); v != "" {
		c.Analysis.Provider = v
	}
	if v := os.Getenv("ANALYSIS_MODEL"); v != "" {
		c.Analysis.Model = v
	}
	if v := os.Getenv("ANALYSIS_BASE_URL"); v != "" {
		c.Analysis.BaseURL = v
	}
	return nil
}

func (c *Config) normalize() {
	c.LibraryDir = strings.TrimSpace(c.LibraryDir)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Analysis.Provider = strings.ToLower(strings.TrimSpace(c.Analysis.Provider))
	if strings.TrimSpace(c.Analysis.Model) == "" {
		c.Analysis.Model = providerModels[c.Analysis.Provider]
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.LibraryDir == "" {
		return errors.New("library_dir must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("max_upload_mb must be positive")
	}
	if _, ok := providerModels[c.Analysis.Provider]; !ok {
		return fmt.Errorf("unsupported analysis provider: %s", c.Analysis.Provider)
	}
	if c.Analysis.MaxTokens <= 0 {
		return errors.New("analysis.max_tokens must be positive")
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		return errors.New("analysis.timeout_seconds must be positive")
	}
	if c.Analysis.RetryAttempts <= 0 {
		return errors.New("analysis.retry_attempts must be positive")
	}
	if c.Analysis.RetryBaseDelaySeconds < 0 {
		return errors.New("analysis.retry_base_delay_seconds must not be negative")
	}
	if c.PDF.MinImageSize <= 0 {
		return errors.New("pdf.min_image_size must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format: %s", c.LogFormat)
	}
	return nil
}

// MaxUploadBytes is the upload cap in bytes.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}
