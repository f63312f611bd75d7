// Package tags derives corpus-wide tag views from each record's custom_tags and
// applies per-record and global tag edits through the record store.
package tags

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
	"github.com/lehigh-university-libraries/papershelf/internal/storage"
)

// ErrEmptyTag is returned when a tag is blank after trimming.
var ErrEmptyTag = errors.New("tag must not be empty")

// errUnchanged aborts a mutate whose record no longer needs the edit.
var errUnchanged = errors.New("record unchanged")

// Store is the subset of the record store the index needs.
type Store interface {
	ListIDs() ([]string, error)
	Read(id string) (*models.Record, error)
	Mutate(id string, transform func(*models.Record) error) (*models.Record, error)
}

var _ Store = (*storage.RecordStore)(nil)

// Index answers tag queries by scanning the store. It keeps no state of its own.
type Index struct {
	store  Store
	logger *slog.Logger
}

// NewIndex returns an index over store.
func NewIndex(store Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:  store,
		logger: logger.With("component", "tags"),
	}
}

// ListAll returns every distinct tag in the corpus, sorted case-sensitively.
func (x *Index) ListAll() ([]string, error) {
	counts, err := x.counts()
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(counts))
	for tag := range counts {
		all = append(all, tag)
	}
	sort.Strings(all)
	return all, nil
}

// Stats returns the number of records carrying each tag, sorted by tag name
// without regard to case.
func (x *Index) Stats() ([]models.TagStat, error) {
	counts, err := x.counts()
	if err != nil {
		return nil, err
	}
	stats := make([]models.TagStat, 0, len(counts))
	for tag, n := range counts {
		stats = append(stats, models.TagStat{Tag: tag, Count: n})
	}
	fold := cases.Fold()
	sort.Slice(stats, func(i, j int) bool {
		a, b := fold.String(stats[i].Tag), fold.String(stats[j].Tag)
		if a != b {
			return a < b
		}
		return stats[i].Tag < stats[j].Tag
	})
	return stats, nil
}

// Add appends tag to the record's tags unless it is already present and returns
// the resulting tags.
func (x *Index) Add(id, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, ErrEmptyTag
	}
	record, err := x.store.Mutate(id, func(r *models.Record) error {
		if r.HasTag(tag) {
			return errUnchanged
		}
		r.CustomTags = append(r.CustomTags, tag)
		return nil
	})
	return x.resultTags(id, record, err)
}

// Remove drops tag from the record's tags if present and returns the resulting tags.
func (x *Index) Remove(id, tag string) ([]string, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, ErrEmptyTag
	}
	record, err := x.store.Mutate(id, func(r *models.Record) error {
		if !r.HasTag(tag) {
			return errUnchanged
		}
		r.CustomTags = without(r.CustomTags, tag)
		return nil
	})
	return x.resultTags(id, record, err)
}

// Rename replaces oldTag with newTag on every record that carries oldTag. The new
// tag takes the position of the first occurrence of the old one and duplicates
// collapse. Records without oldTag are not rewritten. A blank argument is a no-op.
func (x *Index) Rename(oldTag, newTag string) ([]models.TagStat, error) {
	oldTag, newTag = strings.TrimSpace(oldTag), strings.TrimSpace(newTag)
	if oldTag == "" || newTag == "" || oldTag == newTag {
		return x.Stats()
	}

	changed := x.rewrite(oldTag, func(r *models.Record) error {
		if !r.HasTag(oldTag) {
			return errUnchanged
		}
		r.CustomTags = replace(r.CustomTags, oldTag, newTag)
		return nil
	})
	x.logger.Info("renamed tag", "from", oldTag, "to", newTag, "records", changed)
	return x.Stats()
}

// Delete removes tag from every record that carries it. A blank tag is a no-op.
func (x *Index) Delete(tag string) ([]models.TagStat, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return x.Stats()
	}

	changed := x.rewrite(tag, func(r *models.Record) error {
		if !r.HasTag(tag) {
			return errUnchanged
		}
		r.CustomTags = without(r.CustomTags, tag)
		return nil
	})
	x.logger.Info("deleted tag", "tag", tag, "records", changed)
	return x.Stats()
}

// rewrite applies transform to each record that currently has tag. Failures on one
// record are logged and the scan continues.
func (x *Index) rewrite(tag string, transform func(*models.Record) error) int {
	ids, err := x.store.ListIDs()
	if err != nil {
		x.logger.Error("failed to list records", "err", err)
		return 0
	}

	changed := 0
	for _, id := range ids {
		record, err := x.store.Read(id)
		if err != nil {
			x.logger.Warn("skipping unreadable record", "id", id, "err", err)
			continue
		}
		if !record.HasTag(tag) {
			continue
		}
		if _, err := x.store.Mutate(id, transform); err != nil {
			if !errors.Is(err, errUnchanged) {
				x.logger.Warn("failed to update record tags", "id", id, "err", err)
			}
			continue
		}
		changed++
	}
	return changed
}

func (x *Index) counts() (map[string]int, error) {
	ids, err := x.store.ListIDs()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	counts := make(map[string]int)
	for _, id := range ids {
		record, err := x.store.Read(id)
		if err != nil {
			x.logger.Warn("skipping unreadable record", "id", id, "err", err)
			continue
		}
		seen := make(map[string]struct{}, len(record.CustomTags))
		for _, tag := range record.CustomTags {
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			counts[tag]++
		}
	}
	return counts, nil
}

// resultTags turns the outcome of a per-record mutate into the record's tags. An
// unchanged record is re-read so the caller still sees its current tags.
func (x *Index) resultTags(id string, record *models.Record, err error) ([]string, error) {
	if errors.Is(err, errUnchanged) {
		record, err = x.store.Read(id)
	}
	if err != nil {
		return nil, err
	}
	return append([]string{}, record.CustomTags...), nil
}

func without(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}

func replace(tags []string, oldTag, newTag string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == oldTag {
			t = newTag
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
