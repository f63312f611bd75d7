package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/papershelf/internal/config"
	"github.com/lehigh-university-libraries/papershelf/internal/models"
	"github.com/lehigh-university-libraries/papershelf/internal/storage"
)

func seedLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	store, err := storage.New(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(source, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}

	records := []*models.Record{
		{
			ID:           "p1",
			Bibliography: models.Document{models.KeyTitle: "Shelf Theory", models.KeyAuthors: []any{"A"}, models.KeyYear: "2020"},
			CustomTags:   []string{"ml"},
		},
		{
			ID:           "p2",
			Bibliography: models.Document{models.KeyTitle: "Stack Practice"},
			CustomTags:   []string{"ml", "systems"},
		},
	}
	for _, r := range records {
		if err := store.Create(r.ID, source, r, storage.CreateOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"LITERATURE_DIR", "PORT", "LOG_LEVEL", "LOG_FORMAT", "ANALYSIS_PROVIDER", "ANALYSIS_MODEL", "ANALYSIS_BASE_URL"} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())

	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestListJSON(t *testing.T) {
	lib := seedLibrary(t)

	out, err := run(t, "list", "--library", lib, "--json")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	var summaries []models.Summary
	if err := json.Unmarshal([]byte(out), &summaries); err != nil {
		t.Fatalf("Failed to decode output %q: %v", out, err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
}

func TestListTable(t *testing.T) {
	lib := seedLibrary(t)

	out, err := run(t, "list", "--library", lib)
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if !strings.Contains(out, "Shelf Theory") || !strings.Contains(out, "2 papers") {
		t.Errorf("Unexpected table output:\n%s", out)
	}
}

func TestTagsCommands(t *testing.T) {
	lib := seedLibrary(t)

	out, err := run(t, "tags", "list", "--library", lib)
	if err != nil {
		t.Fatalf("tags list returned error: %v", err)
	}
	if out != "ml\nsystems\n" {
		t.Errorf("Expected ml and systems, got %q", out)
	}

	if _, err := run(t, "tags", "rename", "ml", "learning", "--library", lib); err != nil {
		t.Fatalf("tags rename returned error: %v", err)
	}
	out, err = run(t, "tags", "stats", "--library", lib)
	if err != nil {
		t.Fatalf("tags stats returned error: %v", err)
	}
	if !strings.Contains(out, "learning") || strings.Contains(out, " ml ") {
		t.Errorf("Expected renamed tag in stats:\n%s", out)
	}

	out, err = run(t, "tags", "delete", "systems", "--library", lib)
	if err != nil {
		t.Fatalf("tags delete returned error: %v", err)
	}
	if strings.Contains(out, "systems") {
		t.Errorf("Expected systems removed:\n%s", out)
	}
}

func TestExportAndInspect(t *testing.T) {
	lib := seedLibrary(t)
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "library.yaml")
	out, err := run(t, "export", "--library", lib, "--output", yamlPath)
	if err != nil {
		t.Fatalf("export returned error: %v", err)
	}
	if !strings.Contains(out, "Exported 2 papers") {
		t.Errorf("Unexpected export output %q", out)
	}
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Stack Practice") {
		t.Errorf("Expected titles in yaml export:\n%s", data)
	}

	parquetPath := filepath.Join(dir, "library.parquet")
	if _, err := run(t, "export", "--library", lib, "--output", parquetPath); err != nil {
		t.Fatalf("parquet export returned error: %v", err)
	}
	out, err = run(t, "inspect", parquetPath, "--limit", "1")
	if err != nil {
		t.Fatalf("inspect returned error: %v", err)
	}
	if !strings.Contains(out, "Showing 1 of 2 rows") {
		t.Errorf("Unexpected inspect output:\n%s", out)
	}

	if _, err := run(t, "export", "--library", lib, "--output", filepath.Join(dir, "library.csv")); err == nil {
		t.Error("Expected error for unsupported export format")
	}
}

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"deepseek", "openai", "ollama", "gemini"} {
		t.Run(name, func(t *testing.T) {
			p, err := newProvider(config.Analysis{Provider: name})
			if err != nil || p == nil {
				t.Errorf("Expected provider for %s, got %v", name, err)
			}
		})
	}
	if _, err := newProvider(config.Analysis{Provider: "claude"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
