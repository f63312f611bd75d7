// Package pdf extracts text and embedded images from PDF files with the poppler
// command line tools.
package pdf

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultMinImageSize = 100

type Config struct {
	Pdftotext string // binary name or path; "pdftotext" when empty
	Pdfimages string // binary name or path; "pdfimages" when empty
	// MinImageSize drops images narrower or shorter than this many pixels.
	MinImageSize int
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewExtractor returns an extractor that shells out to poppler.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pdf")
	return NewExtractorWithRunner(cfg, execRunner{logger: logger}, logger)
}

// NewExtractorWithRunner is NewExtractor with a caller supplied command runner.
func NewExtractorWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdfimages == "" {
		cfg.Pdfimages = "pdfimages"
	}
	if cfg.MinImageSize <= 0 {
		cfg.MinImageSize = defaultMinImageSize
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// ExtractText returns the document text. Words hyphenated across a line break are
// joined back together.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	// pdftotext -enc UTF-8 -q <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-enc", "UTF-8", "-q", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	text := strings.ReplaceAll(string(out), "\r\n", "\n")
	text = strings.ReplaceAll(text, "-\n", "")
	e.logger.Info("extracted text", "path", path, "chars", len([]rune(text)))
	return text, nil
}

// ExtractImages writes the document's embedded images into destDir as fig1.<ext>,
// fig2.<ext>, ... in page order. Images that cannot be decoded or are smaller than
// the configured minimum on either side are skipped.
func (e *Extractor) ExtractImages(ctx context.Context, path, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	tmpDir, err := os.MkdirTemp("", "papershelf-img-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", tmpDir, "err", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "img")
	// pdfimages -all <path> <tmp/img>
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdfimages, "-all", path, prefix); err != nil {
		return nil, fmt.Errorf("pdfimages failed: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	matches, err := filepath.Glob(prefix + "-*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	saved := []string{}
	for _, candidate := range matches {
		width, height, ok := e.dimensions(candidate)
		if !ok {
			continue
		}
		if width < e.cfg.MinImageSize || height < e.cfg.MinImageSize {
			e.logger.Debug("skipping small image", "file", filepath.Base(candidate), "width", width, "height", height)
			continue
		}

		name := fmt.Sprintf("fig%d%s", len(saved)+1, strings.ToLower(filepath.Ext(candidate)))
		if err := moveFile(candidate, filepath.Join(destDir, name)); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", name, err)
		}
		saved = append(saved, name)
	}

	e.logger.Info("extracted images", "path", path, "candidates", len(matches), "kept", len(saved))
	return saved, nil
}

func (e *Extractor) dimensions(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Debug("skipping unreadable image", "file", filepath.Base(path), "err", err)
		return 0, 0, false
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		e.logger.Debug("skipping undecodable image", "file", filepath.Base(path), "err", err)
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}
