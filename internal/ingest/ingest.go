package ingest

import (
	"context"
	"time"
)

// IDLength is the number of hex characters of the content hash used as a document ID.
const IDLength = 16

// Document is one source PDF plan set. Its ID is derived from file content, so
// rediscovering the same bytes under any path yields the same ID.
type Document struct {
	ID           string    `json:"doc_id"`
	Name         string    `json:"filename"`
	SourcePath   string    `json:"filepath"`
	Pages        int       `json:"pages"`
	SizeBytes    int64     `json:"size_bytes"`
	HashHex      string    `json:"sha256"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Stem is the file name without its extension.
func (d Document) Stem() string {
	return stem(d.Name)
}

// DiscoveryResult is the per-file discovery outcome.
type DiscoveryResult struct {
	SourcePath   string
	DocumentID   string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a discovery walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// PageCounter reports the number of pages in a PDF.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (int, error)
}

// TextSource returns the plain text of a PDF for relevance classification.
type TextSource interface {
	Text(ctx context.Context, path string) (string, error)
}
