package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ragline/ragline/internal/domain/passage"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// JSONLSource reads passages from a JSON-lines file, one object per line:
//
//	{"id": "go-basics-01", "text": "...", "metadata": {"library": "go", "section": "basics"}}
type JSONLSource struct {
	path string
}

// NewJSONLSource creates a source backed by path.
func NewJSONLSource(path string) *JSONLSource {
	return &JSONLSource{path: path}
}

type jsonlRecord struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// Load parses the file. Blank lines are skipped; a malformed line fails
// the whole load so partial corpora never reach the index.
func (s *JSONLSource) Load(ctx context.Context) ([]passage.Passage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	var out []passage.Passage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec jsonlRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: parse record: %w", s.path, line, err)
		}
		p, err := passage.New(rec.ID, rec.Text, rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", s.path, line, err)
		}
		out = append(out, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return out, nil
}
