// Package storage persists records as one directory per record id.
//
// Layout under the root:
//
//	<id>/analysis.json   the record
//	<id>/original.pdf    the uploaded source document
//	<id>/<image files>   images extracted at ingestion
//	.staging/            units being assembled by Create
//	.locks/              per-record lock files
//
// Every change to an existing record goes through Mutate, which holds a per-id lock
// for the read-transform-write cycle and replaces analysis.json by rename.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

const (
	AnalysisFileName = "analysis.json"
	SourceFileName   = "original.pdf"
	locksDirName     = ".locks"
	stagingDirName   = ".staging"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrCorrupt       = errors.New("record file is not valid")
	ErrInvalidName   = errors.New("invalid name")
)

// RecordStore owns the on-disk layout of all records under one root directory.
type RecordStore struct {
	root   string
	logger *slog.Logger
	locks  *keyedLocks
}

// CreateOptions controls Create.
type CreateOptions struct {
	// AssetsDir holds files (extracted images) to move into the new unit.
	AssetsDir string
	// Overwrite replaces an existing unit with the same id instead of failing.
	Overwrite bool
}

// New opens the store rooted at root, creating the directory if needed.
func New(root string, logger *slog.Logger) (*RecordStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &RecordStore{
		root:   root,
		logger: logger.With("component", "storage"),
		locks:  newKeyedLocks(),
	}, nil
}

// Root returns the store's root directory.
func (s *RecordStore) Root() string {
	return s.root
}

// Dir returns the unit directory for id.
func (s *RecordStore) Dir(id string) (string, error) {
	if err := validateName(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, id), nil
}

// Exists reports whether a unit with an analysis file exists for id.
func (s *RecordStore) Exists(id string) bool {
	dir, err := s.Dir(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, AnalysisFileName))
	return err == nil && info.Mode().IsRegular()
}

// StagingDir creates a fresh scratch directory on the same filesystem as the units.
// Callers own it and should remove it once Create has consumed its contents.
func (s *RecordStore) StagingDir(prefix string) (string, error) {
	staging := filepath.Join(s.root, stagingDirName)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging area: %w", err)
	}
	dir, err := os.MkdirTemp(staging, prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

// Create assembles a new unit for id in the staging area and renames it into place.
// The source document is copied, asset files are moved, and the record is written
// as analysis.json. An existing unit is an error unless opts.Overwrite is set, in
// which case the new unit replaces the old one entirely.
func (s *RecordStore) Create(id, sourcePath string, record *models.Record, opts CreateOptions) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record is required")
	}

	defer s.lockInProcess(id)()

	exists := false
	if _, err := os.Stat(dir); err == nil {
		exists = true
		if !opts.Overwrite {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		s.logger.Warn("record exists, overwriting", "id", id)
	}

	unit, err := s.StagingDir(id)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			if err := os.RemoveAll(unit); err != nil {
				s.logger.Warn("failed to remove staging directory", "path", unit, "err", err)
			}
		}
	}()

	if opts.AssetsDir != "" {
		if err := moveDirContents(opts.AssetsDir, unit); err != nil {
			return fmt.Errorf("failed to move assets: %w", err)
		}
	}
	if sourcePath != "" {
		if err := copyFile(sourcePath, filepath.Join(unit, SourceFileName)); err != nil {
			return fmt.Errorf("failed to copy source document: %w", err)
		}
	}
	if err := writeRecord(unit, record); err != nil {
		return err
	}

	if exists {
		trash := unit + ".old"
		if err := os.Rename(dir, trash); err != nil {
			return fmt.Errorf("failed to move existing record aside: %w", err)
		}
		defer func() {
			if err := os.RemoveAll(trash); err != nil {
				s.logger.Warn("failed to remove replaced record", "path", trash, "err", err)
			}
		}()
	}
	if err := os.Rename(unit, dir); err != nil {
		return fmt.Errorf("failed to commit record: %w", err)
	}
	committed = true

	s.logger.Info("record created", "id", id, "images", len(record.ImageFiles))
	return nil
}

// Read loads the record for id. A missing unit or analysis file is ErrNotFound;
// a file that does not decode is ErrCorrupt.
func (s *RecordStore) Read(id string) (*models.Record, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return readRecord(dir, id)
}

// Mutate loads the record for id, applies transform and writes the result back.
// Nothing is written when transform returns an error.
func (s *RecordStore) Mutate(id string, transform func(*models.Record) error) (*models.Record, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !s.Exists(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	unlock, err := s.lock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := readRecord(dir, id)
	if err != nil {
		return nil, err
	}
	if record.CustomTags == nil {
		record.CustomTags = []string{}
	}
	if err := transform(record); err != nil {
		return nil, err
	}
	if err := writeRecord(dir, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ListIDs returns the ids of all units, most recently modified first. Ties are
// ordered by id.
func (s *RecordStore) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	type unit struct {
		id    string
		mtime time.Time
	}
	units := make([]unit, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("failed to stat record directory", "id", name, "err", err)
			continue
		}
		units = append(units, unit{id: name, mtime: info.ModTime()})
	}

	sort.Slice(units, func(i, j int) bool {
		if !units[i].mtime.Equal(units[j].mtime) {
			return units[i].mtime.After(units[j].mtime)
		}
		return units[i].id < units[j].id
	})

	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.id
	}
	return ids, nil
}

// Each calls fn for every readable record in ListIDs order. Records that fail to
// read are logged and skipped.
func (s *RecordStore) Each(fn func(*models.Record)) error {
	ids, err := s.ListIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		record, err := s.Read(id)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "id", id, "err", err)
			continue
		}
		fn(record)
	}
	return nil
}

// Delete removes the unit for id. Deleting an absent record is ErrNotFound.
func (s *RecordStore) Delete(id string) error {
	dir, err := s.Dir(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	unlock, err := s.lock(id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("failed to delete record", "id", id, "err", err)
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	s.removeLockFile(id)
	s.logger.Info("record deleted", "id", id)
	return nil
}

// AssetPath resolves a file inside the unit for id. Names that could escape the
// unit are ErrInvalidName.
func (s *RecordStore) AssetPath(id, name string) (string, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, id, name)
	}
	return path, nil
}

// SourcePath returns the stored source document for id.
func (s *RecordStore) SourcePath(id string) (string, error) {
	return s.AssetPath(id, SourceFileName)
}

func validateName(name string) error {
	switch {
	case name == "",
		name == ".",
		strings.Contains(name, ".."),
		strings.ContainsAny(name, `/\`),
		strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func readRecord(dir, id string) (*models.Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, AnalysisFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	var record models.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	if record.ID == "" {
		record.ID = id
	}
	return &record, nil
}

// writeRecord replaces dir/analysis.json via a temp file in the same directory.
func writeRecord(dir string, record *models.Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".analysis-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, AnalysisFileName)); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	tmpPath = ""
	return nil
}
