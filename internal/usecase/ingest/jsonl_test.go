package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJSONL(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestJSONLSource_Load(t *testing.T) {
	path := writeJSONL(t, strings.Join([]string{
		`{"id": "go-01", "text": "goroutines are lightweight", "metadata": {"library": "go"}}`,
		``,
		`{"id": "go-02", "text": "channels communicate"}`,
	}, "\n"))

	got, err := NewJSONLSource(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 passages (blank line skipped), got %d", len(got))
	}
	if got[0].ID() != "go-01" || got[0].Text() != "goroutines are lightweight" {
		t.Errorf("unexpected first passage %s %q", got[0].ID(), got[0].Text())
	}
	if v, _ := got[0].MetadataValue("library"); v != "go" {
		t.Errorf("unexpected metadata %v", got[0].Metadata())
	}
	if got[1].Metadata() != nil && len(got[1].Metadata()) != 0 {
		t.Errorf("expected empty metadata, got %v", got[1].Metadata())
	}
}

func TestJSONLSource_MalformedLineFailsLoad(t *testing.T) {
	path := writeJSONL(t, strings.Join([]string{
		`{"id": "go-01", "text": "fine"}`,
		`{not json`,
		`{"id": "go-02", "text": "never reached"}`,
	}, "\n"))

	_, err := NewJSONLSource(path).Load(context.Background())
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), ":2:") {
		t.Errorf("expected line number in error, got %v", err)
	}
}

func TestJSONLSource_InvalidPassageFailsLoad(t *testing.T) {
	path := writeJSONL(t, `{"id": "", "text": "missing id"}`)

	if _, err := NewJSONLSource(path).Load(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestJSONLSource_MissingFile(t *testing.T) {
	if _, err := NewJSONLSource(filepath.Join(t.TempDir(), "nope.jsonl")).Load(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestJSONLSource_CanceledContext(t *testing.T) {
	path := writeJSONL(t, `{"id": "go-01", "text": "fine"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewJSONLSource(path).Load(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
