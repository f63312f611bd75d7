// Package export writes a flat view of the library to Parquet or YAML and reads
// Parquet exports back.
package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/papershelf/internal/imagemeta"
	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

type Format string

const (
	FormatParquet Format = "parquet"
	FormatYAML    Format = "yaml"
)

// Row is one record in an export
type Row struct {
	ID          string   `json:"id" yaml:"id" parquet:"id"`
	Title       string   `json:"title" yaml:"title" parquet:"title"`
	Authors     []string `json:"authors" yaml:"authors" parquet:"authors,list"`
	Year        string   `json:"year" yaml:"year" parquet:"year"`
	Journal     string   `json:"journal" yaml:"journal,omitempty" parquet:"journal"`
	Tags        []string `json:"tags" yaml:"tags" parquet:"tags,list"`
	ImageCount  int      `json:"image_count" yaml:"image_count" parquet:"image_count"`
	FigureCount int      `json:"figure_count" yaml:"figure_count" parquet:"figure_count"`
	Cover       string   `json:"cover" yaml:"cover,omitempty" parquet:"cover"`
	UploadTime  string   `json:"upload_time" yaml:"upload_time,omitempty" parquet:"upload_time"`
	ReadingTime string   `json:"reading_time" yaml:"reading_time,omitempty" parquet:"reading_time"`
}

// Document is the top level of a YAML export
type Document struct {
	GeneratedAt string `yaml:"generated_at"`
	Count       int    `yaml:"count"`
	Records     []Row  `yaml:"records"`
}

// ParseFormat accepts "parquet" or "yaml"/"yml", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parquet":
		return FormatParquet, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s (supported: parquet, yaml)", s)
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer export format from %q", path)
	}
	return ParseFormat(ext)
}

// Rows flattens records in the given order. Records whose image metadata is out of
// step with their image files are counted from a normalized copy; nothing is saved.
func Rows(records []*models.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		meta := r.ImageMetadata
		if len(meta) != len(r.ImageFiles) {
			normalized, err := imagemeta.Normalize(r.ImageFiles, r.ImageMetadata, nil)
			if err != nil {
				slog.Warn("Unable to normalize image metadata for export", "id", r.ID, "err", err)
			} else {
				meta = normalized
			}
		}
		rows = append(rows, Row{
			ID:          r.ID,
			Title:       r.Title(models.UntitledFallback),
			Authors:     nonNil(r.Bibliography.Strings(models.KeyAuthors)),
			Year:        r.Bibliography.String(models.KeyYear),
			Journal:     r.Bibliography.String(models.KeyJournal),
			Tags:        nonNil(append([]string{}, r.CustomTags...)),
			ImageCount:  len(r.ImageFiles),
			FigureCount: imagemeta.FigureCount(meta),
			Cover:       imagemeta.Cover(meta),
			UploadTime:  r.UploadTime,
			ReadingTime: r.ReadingTime,
		})
	}
	return rows
}

// Write encodes rows to w in the given format.
func Write(w io.Writer, format Format, rows []Row, generatedAt time.Time) error {
	switch format {
	case FormatParquet:
		return writeParquet(w, rows)
	case FormatYAML:
		return writeYAML(w, rows, generatedAt)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

// WriteFile writes rows to path. The file only appears once it is complete.
func WriteFile(path string, format Format, rows []Row, generatedAt time.Time) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, format, rows, generatedAt); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	slog.Info("Export written", "path", path, "format", format, "rows", len(rows))
	return nil
}

func writeParquet(w io.Writer, rows []Row) error {
	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, rows []Row, generatedAt time.Time) error {
	doc := Document{
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Count:       len(rows),
		Records:     rows,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// ReadParquet loads every row of a Parquet export.
func ReadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet file opened", "path", path, "num_rows", pf.NumRows())

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	out := make([]Row, 0, pf.NumRows())
	for {
		// fresh batch so list columns of earlier rows are not overwritten
		batch := make([]Row, 128)
		n, err := reader.Read(batch)
		out = append(out, batch[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
