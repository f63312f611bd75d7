package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/papershelf/internal/models"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	store, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return store
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	return path
}

func sampleRecord(id string, tags ...string) *models.Record {
	return &models.Record{
		ID:           id,
		Bibliography: models.Document{models.KeyTitle: "Paper " + id},
		ImageFiles:   []string{},
		CustomTags:   append([]string{}, tags...),
	}
}

func mustCreate(t *testing.T, store *RecordStore, id string, tags ...string) {
	t.Helper()
	if err := store.Create(id, "", sampleRecord(id, tags...), CreateOptions{}); err != nil {
		t.Fatalf("Create(%s) returned error: %v", id, err)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New("  ", nil); err == nil {
		t.Error("Expected error for empty root")
	}
}

func TestCreateAndRead(t *testing.T) {
	store := newTestStore(t)
	source := writeSource(t, "%PDF-1.4 test")

	assets := t.TempDir()
	if err := os.WriteFile(filepath.Join(assets, "fig1.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	record := sampleRecord("abc")
	record.ImageFiles = []string{"fig1.png"}
	if err := store.Create("abc", source, record, CreateOptions{AssetsDir: assets}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := store.Read("abc")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got.Title("") != "Paper abc" {
		t.Errorf("Expected title 'Paper abc', got %q", got.Title(""))
	}
	if !reflect.DeepEqual(got.ImageFiles, []string{"fig1.png"}) {
		t.Errorf("Expected image files [fig1.png], got %v", got.ImageFiles)
	}

	pdf, err := store.SourcePath("abc")
	if err != nil {
		t.Fatalf("SourcePath returned error: %v", err)
	}
	data, _ := os.ReadFile(pdf)
	if string(data) != "%PDF-1.4 test" {
		t.Errorf("Expected source copy, got %q", data)
	}
	if _, err := store.AssetPath("abc", "fig1.png"); err != nil {
		t.Errorf("Expected moved asset, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(assets, "fig1.png")); !os.IsNotExist(err) {
		t.Errorf("Expected asset to be moved out of %s", assets)
	}
}

func TestCreateExisting(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "abc", "old")

	err := store.Create("abc", "", sampleRecord("abc", "new"), CreateOptions{})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Expected ErrAlreadyExists, got %v", err)
	}

	if err := store.Create("abc", "", sampleRecord("abc", "new"), CreateOptions{Overwrite: true}); err != nil {
		t.Fatalf("Overwrite returned error: %v", err)
	}
	got, err := store.Read("abc")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !reflect.DeepEqual(got.CustomTags, []string{"new"}) {
		t.Errorf("Expected overwritten tags [new], got %v", got.CustomTags)
	}
}

func TestCreateFailureLeavesNothing(t *testing.T) {
	store := newTestStore(t)

	err := store.Create("abc", filepath.Join(t.TempDir(), "missing.pdf"), sampleRecord("abc"), CreateOptions{})
	if err == nil {
		t.Fatal("Expected error for missing source")
	}
	if store.Exists("abc") {
		t.Error("Expected no record after failed create")
	}
	ids, _ := store.ListIDs()
	if len(ids) != 0 {
		t.Errorf("Expected no units, got %v", ids)
	}
	staged, _ := os.ReadDir(filepath.Join(store.Root(), stagingDirName))
	if len(staged) != 0 {
		t.Errorf("Expected empty staging area, got %d entries", len(staged))
	}
}

func TestReadErrors(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Read("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.Read("../etc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for traversal id, got %v", err)
	}

	dir := filepath.Join(store.Root(), "broken")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, AnalysisFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Read("broken"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

func TestMutate(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "abc")

	got, err := store.Mutate("abc", func(r *models.Record) error {
		r.ReadingTime = "2h"
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate returned error: %v", err)
	}
	if got.ReadingTime != "2h" {
		t.Errorf("Expected returned reading time 2h, got %q", got.ReadingTime)
	}

	reread, err := store.Read("abc")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if reread.ReadingTime != "2h" {
		t.Errorf("Expected persisted reading time 2h, got %q", reread.ReadingTime)
	}

	if _, err := store.Mutate("missing", func(*models.Record) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMutateTransformErrorWritesNothing(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "abc", "keep")

	path := filepath.Join(store.Root(), "abc", AnalysisFileName)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err = store.Mutate("abc", func(r *models.Record) error {
		r.CustomTags = append(r.CustomTags, "lost")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected transform error, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Errorf("Expected record file unchanged.\nBefore:\n%s\nAfter:\n%s", before, after)
	}

	entries, _ := os.ReadDir(filepath.Join(store.Root(), "abc"))
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("Expected no temp files, found %s", e.Name())
		}
	}
}

func TestMutatePreservesUnknownFields(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(store.Root(), "abc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	raw := `{"paper_id":"abc","文献信息":{"标题":"T","年份":2021},"内容提取":{"研究问题":"Q"},"custom_tags":["x"]}`
	if err := os.WriteFile(filepath.Join(dir, AnalysisFileName), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Mutate("abc", func(r *models.Record) error {
		r.CustomTags = append(r.CustomTags, "y")
		return nil
	}); err != nil {
		t.Fatalf("Mutate returned error: %v", err)
	}

	got, err := store.Read("abc")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if _, ok := got.Extra["内容提取"]; !ok {
		t.Error("Expected unknown field to survive mutate")
	}
	if got.Bibliography.String(models.KeyYear) != "2021" {
		t.Errorf("Expected year 2021, got %q", got.Bibliography.String(models.KeyYear))
	}
	if !reflect.DeepEqual(got.CustomTags, []string{"x", "y"}) {
		t.Errorf("Expected tags [x y], got %v", got.CustomTags)
	}
}

func TestListIDsOrder(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		mustCreate(t, store, id)
	}

	base := time.Now().Add(-time.Hour)
	times := map[string]time.Time{
		"a": base,
		"b": base.Add(3 * time.Minute),
		"c": base.Add(1 * time.Minute),
		"d": base.Add(3 * time.Minute),
	}
	for id, ts := range times {
		if err := os.Chtimes(filepath.Join(store.Root(), id), ts, ts); err != nil {
			t.Fatal(err)
		}
	}

	// staging debris and stray files are not units
	if _, err := store.StagingDir("tmp"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(store.Root(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := store.ListIDs()
	if err != nil {
		t.Fatalf("ListIDs returned error: %v", err)
	}
	expected := []string{"b", "d", "c", "a"}
	if !reflect.DeepEqual(ids, expected) {
		t.Errorf("Expected %v, got %v", expected, ids)
	}
}

func TestEachSkipsCorrupt(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "good")
	dir := filepath.Join(store.Root(), "bad")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, AnalysisFileName), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	var seen []string
	if err := store.Each(func(r *models.Record) { seen = append(seen, r.ID) }); err != nil {
		t.Fatalf("Each returned error: %v", err)
	}
	if !reflect.DeepEqual(seen, []string{"good"}) {
		t.Errorf("Expected [good], got %v", seen)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "abc")

	if err := store.Delete("abc"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Read("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete("abc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAssetPath(t *testing.T) {
	store := newTestStore(t)
	mustCreate(t, store, "abc")

	tests := []struct {
		name     string
		filename string
		expected error
	}{
		{name: "parent traversal", filename: "../other/analysis.json", expected: ErrInvalidName},
		{name: "dot dot", filename: "..", expected: ErrInvalidName},
		{name: "absolute", filename: "/etc/passwd", expected: ErrInvalidName},
		{name: "backslash", filename: `a\b.png`, expected: ErrInvalidName},
		{name: "hidden file", filename: ".analysis-1.tmp", expected: ErrInvalidName},
		{name: "empty", filename: "", expected: ErrInvalidName},
		{name: "missing", filename: "fig9.png", expected: ErrNotFound},
		{name: "record file", filename: AnalysisFileName, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.AssetPath("abc", tt.filename)
			if tt.expected == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}
