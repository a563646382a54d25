// Package corpus reads play-by-play corpus files into plays.
package corpus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/qexpand/internal/models"
)

// ErrUnsupported is returned for files whose extension has no reader.
var ErrUnsupported = errors.New("unsupported corpus format")

var supported = map[string]bool{
	".json":   true,
	".jsonl":  true,
	".ndjson": true,
	".csv":    true,
	".xlsx":   true,
}

// Supported reports whether path has a corpus extension.
func Supported(path string) bool {
	return supported[strings.ToLower(filepath.Ext(path))]
}

// Reader reads plays from corpus files.
type Reader struct{}

// NewReader returns a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read reads the file at path. Every returned play has Source set to path.
func (r *Reader) Read(path string) ([]*models.Play, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	plays, err := r.ReadBytes(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, p := range plays {
		p.Source = path
	}
	return plays, nil
}

// ReadBytes parses content according to ext, which includes the leading dot.
// Records without a play id are dropped.
func (r *Reader) ReadBytes(content []byte, ext string) ([]*models.Play, error) {
	switch ext {
	case ".json":
		return readJSON(content)
	case ".jsonl", ".ndjson":
		return readJSONLines(content)
	case ".csv":
		return readCSV(content)
	case ".xlsx":
		return readExcel(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

// solrExport is the shape of a saved Solr select response.
type solrExport struct {
	Response struct {
		Docs []models.PlayRecord `json:"docs"`
	} `json:"response"`
}

func readJSON(content []byte) ([]*models.Play, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, nil
	}
	var records []models.PlayRecord
	if content[0] == '{' {
		var export solrExport
		if err := json.Unmarshal(content, &export); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		records = export.Response.Docs
	} else if err := json.Unmarshal(content, &records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return toPlays(records), nil
}

func readJSONLines(content []byte) ([]*models.Play, error) {
	var records []models.PlayRecord
	for i, line := range bytes.Split(content, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec models.PlayRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return toPlays(records), nil
}

func toPlays(records []models.PlayRecord) []*models.Play {
	plays := make([]*models.Play, 0, len(records))
	for i := range records {
		if p, ok := records[i].ToPlay(); ok {
			plays = append(plays, p)
		}
	}
	return plays
}
