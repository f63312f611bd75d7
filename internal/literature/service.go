// Package literature orchestrates ingestion and editing of analyzed papers on top of
// the record store, the tag index and the image metadata normalizer.
package literature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/papershelf/internal/imagemeta"
	"github.com/lehigh-university-libraries/papershelf/internal/models"
	"github.com/lehigh-university-libraries/papershelf/internal/storage"
	"github.com/lehigh-university-libraries/papershelf/internal/tags"
)

// Extractor pulls text and images out of a source document.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
	// ExtractImages writes the kept images into destDir and returns their
	// filenames in page order.
	ExtractImages(ctx context.Context, path, destDir string) ([]string, error)
}

// Analyzer turns extracted text into a structured parse. The parse must carry the
// bibliographic block under models.KeyBibliography.
type Analyzer interface {
	Analyze(ctx context.Context, text, apiKey string) (models.Document, error)
}

// Upload is one document submitted for ingestion.
type Upload struct {
	Filename string
	Body     io.Reader
}

// reserved keys are maintained by the service and never taken from a parse.
var reserved = map[string]struct{}{
	models.KeyBibliography: {},
	"paper_id":             {},
	"custom_tags":          {},
	"image_files":          {},
	"image_metadata":       {},
	"reading_time":         {},
	"upload_time":          {},
	"time_label":           {},
}

// basicFields maps the editable bibliographic fields to their stored keys.
var basicFields = map[string]string{
	"title":   models.KeyTitle,
	"authors": models.KeyAuthors,
	"year":    models.KeyYear,
	"journal": models.KeyJournal,
}

type Service struct {
	store     *storage.RecordStore
	tags      *tags.Index
	extractor Extractor
	analyzer  Analyzer
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the random record id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithClock replaces the time source used to stamp uploads.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

func NewService(store *storage.RecordStore, extractor Extractor, analyzer Analyzer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		logger:    slog.Default(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "literature")
	s.tags = tags.NewIndex(store, s.logger)
	return s
}

// ParseAPIKey extracts the token from an "Authorization: Bearer <token>" header.
func (s *Service) ParseAPIKey(header string) (string, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", newError(ErrUnauthorized, "Missing Authorization Header", nil)
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", newError(ErrUnauthorized, "API Key missing in Authorization header", nil)
	}
	return token, nil
}

// List returns a summary of every readable record, most recently modified first.
func (s *Service) List() ([]models.Summary, error) {
	summaries := []models.Summary{}
	err := s.store.Each(func(r *models.Record) {
		summaries = append(summaries, r.Summary(models.UntitledFallback))
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// Records returns every readable record in listing order.
func (s *Service) Records() ([]*models.Record, error) {
	records := []*models.Record{}
	if err := s.store.Each(func(r *models.Record) { records = append(records, r) }); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) Get(id string) (*models.Record, error) {
	record, err := s.store.Read(id)
	if err != nil {
		return nil, translate(err)
	}
	return record, nil
}

func (s *Service) Delete(id string) error {
	return translate(s.store.Delete(id))
}

func (s *Service) ListTags() ([]string, error) {
	return s.tags.ListAll()
}

func (s *Service) TagStats() ([]models.TagStat, error) {
	return s.tags.Stats()
}

func (s *Service) AddTag(id, tag string) ([]string, error) {
	out, err := s.tags.Add(id, tag)
	return out, translate(err)
}

func (s *Service) RemoveTag(id, tag string) ([]string, error) {
	out, err := s.tags.Remove(id, tag)
	return out, translate(err)
}

func (s *Service) RenameTag(oldTag, newTag string) ([]models.TagStat, error) {
	return s.tags.Rename(oldTag, newTag)
}

func (s *Service) DeleteTag(tag string) ([]models.TagStat, error) {
	return s.tags.Delete(tag)
}

// GetImageMetadata returns the record's image annotations. A record whose list is
// missing or out of step with its image files is normalized and saved first.
func (s *Service) GetImageMetadata(id string) ([]models.ImageMetadata, error) {
	record, err := s.store.Read(id)
	if err != nil {
		return nil, translate(err)
	}
	if len(record.ImageMetadata) == len(record.ImageFiles) && record.ImageMetadata != nil {
		return record.ImageMetadata, nil
	}

	updated, err := s.store.Mutate(id, func(r *models.Record) error {
		meta, err := imagemeta.Normalize(r.ImageFiles, r.ImageMetadata, nil)
		if err != nil {
			return err
		}
		r.ImageMetadata = meta
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	s.logger.Info("backfilled image metadata", "id", id, "images", len(updated.ImageFiles))
	return updated.ImageMetadata, nil
}

// UpdateImageMetadata merges patch into the record's annotations and saves the
// normalized list. A rejected patch leaves the record untouched.
func (s *Service) UpdateImageMetadata(id string, patch []models.ImageMetadata) ([]models.ImageMetadata, error) {
	updated, err := s.store.Mutate(id, func(r *models.Record) error {
		meta, err := imagemeta.Normalize(r.ImageFiles, r.ImageMetadata, patch)
		if err != nil {
			return err
		}
		r.ImageMetadata = meta
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return updated.ImageMetadata, nil
}

// ResolveImage returns the on-disk path of one of the record's extracted images.
func (s *Service) ResolveImage(id, filename string) (string, error) {
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return "", newError(ErrInvalidArgument, "Invalid filename", nil)
	}
	record, err := s.store.Read(id)
	if err != nil {
		return "", translate(err)
	}
	listed := false
	for _, f := range record.ImageFiles {
		if f == filename {
			listed = true
			break
		}
	}
	if !listed {
		return "", newError(ErrNotFound, fmt.Sprintf("Image %s not found for %s", filename, id), nil)
	}
	path, err := s.store.AssetPath(id, filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", newError(ErrNotFound, fmt.Sprintf("Image %s not found for %s", filename, id), err)
		}
		return "", translate(err)
	}
	return path, nil
}

// ResolveSource returns the on-disk path of the record's source document.
func (s *Service) ResolveSource(id string) (string, error) {
	path, err := s.store.SourcePath(id)
	if err != nil {
		return "", translate(err)
	}
	return path, nil
}

// UpdateBasicMetadata applies the recognized keys of fields to the record.
// title, authors, year and journal edit the bibliographic block; upload_time and
// time_label are taken when non-empty. Other keys are ignored.
func (s *Service) UpdateBasicMetadata(id string, fields map[string]any) (*models.Record, error) {
	updated, err := s.store.Mutate(id, func(r *models.Record) error {
		if r.Bibliography == nil {
			r.Bibliography = models.Document{}
		}
		for field, key := range basicFields {
			value, ok := fields[field]
			if !ok {
				continue
			}
			if field == "authors" {
				r.Bibliography[key] = authorList(value)
				continue
			}
			r.Bibliography[key] = strings.TrimSpace(models.ScalarString(value))
		}
		if v := strings.TrimSpace(models.ScalarString(fields["upload_time"])); v != "" {
			r.UploadTime = v
		}
		if v := strings.TrimSpace(models.ScalarString(fields["time_label"])); v != "" {
			r.TimeLabel = v
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return updated, nil
}

// UpdateReadingTime sets the record's reading time. An empty value clears it.
func (s *Service) UpdateReadingTime(id, value string) (string, error) {
	value = strings.TrimSpace(value)
	_, err := s.store.Mutate(id, func(r *models.Record) error {
		r.ReadingTime = value
		return nil
	})
	if err != nil {
		return "", translate(err)
	}
	return value, nil
}

// ProcessUpload ingests one PDF: extract text, analyze it, extract images and store
// the new record. Nothing is left on disk when any step before the store fails.
func (s *Service) ProcessUpload(ctx context.Context, upload Upload, apiKey string) (*models.Summary, error) {
	if upload.Body == nil || strings.TrimSpace(upload.Filename) == "" {
		return nil, newError(ErrInvalidArgument, "No file provided", nil)
	}
	if !strings.EqualFold(filepath.Ext(upload.Filename), ".pdf") {
		return nil, newError(ErrInvalidArgument, "Invalid file (must be a PDF)", nil)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, newError(ErrUnauthorized, "API Key missing in Authorization header", nil)
	}

	work, err := s.store.StagingDir("upload")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(work); err != nil {
			s.logger.Warn("failed to remove upload workspace", "path", work, "err", err)
		}
	}()

	source := filepath.Join(work, storage.SourceFileName)
	if err := saveUpload(upload.Body, source); err != nil {
		return nil, fmt.Errorf("failed to save upload: %w", err)
	}

	text, err := s.extractor.ExtractText(ctx, source)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("text extraction failed", "file", upload.Filename, "err", err)
		return nil, newError(ErrAnalysisFailure, "Failed to extract text from PDF", err)
	}

	parse, err := s.analyzer.Analyze(ctx, text, apiKey)
	if err != nil {
		s.logger.Warn("analysis failed", "file", upload.Filename, "err", err)
		return nil, newError(ErrAnalysisFailure, err.Error(), err)
	}

	id := s.newID()
	images := filepath.Join(work, "images")
	if err := os.MkdirAll(images, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image workspace: %w", err)
	}
	files, err := s.extractor.ExtractImages(ctx, source, images)
	if err != nil {
		s.logger.Warn("image extraction failed, storing without images", "id", id, "err", err)
		files = []string{}
		if err := os.RemoveAll(images); err != nil {
			return nil, fmt.Errorf("failed to clear image workspace: %w", err)
		}
		if err := os.MkdirAll(images, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create image workspace: %w", err)
		}
	}

	record, err := s.recordFromParse(id, parse)
	if err != nil {
		return nil, newError(ErrAnalysisFailure, "Analysis returned an unusable result", err)
	}
	record.ImageFiles = append([]string{}, files...)
	record.ImageMetadata, err = imagemeta.Normalize(record.ImageFiles, nil, nil)
	if err != nil {
		return nil, translate(err)
	}

	if err := s.store.Create(id, source, record, storage.CreateOptions{AssetsDir: images, Overwrite: true}); err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}

	s.logger.Info("ingested document", "id", id, "file", upload.Filename, "images", len(files))
	summary := record.Summary(upload.Filename)
	return &summary, nil
}

// recordFromParse builds a new record from an analysis parse. Keys the service
// maintains are dropped from the parse; everything else is kept as-is.
func (s *Service) recordFromParse(id string, parse models.Document) (*models.Record, error) {
	record := &models.Record{
		ID:           id,
		Bibliography: models.Document{},
		CustomTags:   []string{},
		UploadTime:   s.now().UTC().Format(time.RFC3339),
		Extra:        make(map[string]json.RawMessage),
	}
	if bib, ok := parse[models.KeyBibliography].(map[string]any); ok {
		record.Bibliography = models.Document(bib)
	}
	if v := strings.TrimSpace(models.ScalarString(parse["upload_time"])); v != "" {
		record.UploadTime = v
	}
	for key, value := range parse {
		if _, skip := reserved[key]; skip {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		record.Extra[key] = raw
	}
	return record, nil
}

func saveUpload(body io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func authorList(value any) []string {
	switch v := value.(type) {
	case []string:
		return trimAll(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, models.ScalarString(item))
		}
		return trimAll(out)
	default:
		s := models.ScalarString(v)
		if strings.TrimSpace(s) == "" {
			return []string{}
		}
		return trimAll(strings.Split(s, ","))
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
