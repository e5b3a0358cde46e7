package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// WriteManifest writes one JSON object per document to path, replacing it atomically.
func WriteManifest(path string, docs []Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("encode %s: %w", d.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadManifest loads a manifest written by WriteManifest. A missing file yields no documents.
func ReadManifest(path string) ([]Document, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []Document
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var d Document
		if err := json.Unmarshal(sc.Bytes(), &d); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		docs = append(docs, d)
	}
	return docs, sc.Err()
}

// MergeDiscovered keeps the first discovery time of documents already present in prev.
func MergeDiscovered(prev, docs []Document) []Document {
	first := make(map[string]Document, len(prev))
	for _, d := range prev {
		first[d.ID] = d
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		if p, ok := first[d.ID]; ok && !p.DiscoveredAt.IsZero() {
			d.DiscoveredAt = p.DiscoveredAt
		}
		out[i] = d
	}
	return out
}
