package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/plansets/constants"
)

// FSDiscoverer finds plan-set PDFs on the local filesystem.
type FSDiscoverer struct {
	Pages      PageCounter
	SkipHidden bool
	logger     *slog.Logger
	now        func() time.Time
}

func NewFSDiscoverer(pages PageCounter, logger *slog.Logger) *FSDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if pages == nil {
		pages = PDFCPUPageCounter{}
	}
	return &FSDiscoverer{
		Pages:      pages,
		SkipHidden: true,
		logger:     logger,
		now:        time.Now,
	}
}

// DiscoverPath hashes and inspects a single PDF.
func (d *FSDiscoverer) DiscoverPath(ctx context.Context, path string) (Document, error) {
	var out Document

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension %q", ext)
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, err
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			d.logger.Warn("ingest.close_error", "path", abs, "error", err)
		}
	}(f)

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	pages, err := d.Pages.PageCount(ctx, abs)
	if err != nil {
		return out, fmt.Errorf("page count: %w", err)
	}

	out = Document{
		ID:           sum[:IDLength],
		Name:         filepath.Base(abs),
		SourcePath:   abs,
		Pages:        pages,
		SizeBytes:    size,
		HashHex:      sum,
		DiscoveredAt: d.now().UTC(),
	}
	return out, nil
}

// Discover walks every root and returns the unique documents sorted by source path,
// per-file results and aggregate stats. Unreadable files are recorded, not fatal.
func (d *FSDiscoverer) Discover(ctx context.Context, roots []string) ([]Document, []DiscoveryResult, DirStats, error) {
	if len(roots) == 0 {
		return nil, nil, DirStats{}, errors.New("at least one root is required")
	}

	var (
		docs    []Document
		results []DiscoveryResult
		stats   DirStats
		seen    = map[string]string{}
	)

	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		if _, err := os.Stat(root); err != nil {
			d.logger.Warn("ingest.root_missing", "root", root, "error", err)
			continue
		}

		err := filepath.WalkDir(root, func(path string, de fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats.Scanned++
			if walkErr != nil {
				results = append(results, DiscoveryResult{SourcePath: path, Err: walkErr.Error()})
				stats.Failed++
				return nil
			}
			if d.SkipHidden && path != root && IsHidden(path) {
				if de.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if de.IsDir() || !AllowedExt(filepath.Ext(path)) {
				return nil
			}
			stats.Matched++

			doc, err := d.DiscoverPath(ctx, path)
			if err != nil {
				d.logger.Warn("ingest.discover.failed", "path", path, "error", err)
				results = append(results, DiscoveryResult{SourcePath: path, Err: err.Error()})
				stats.Failed++
				return nil
			}

			if first, dup := seen[doc.ID]; dup {
				d.logger.Info("ingest.discover.duplicate", "path", path, "doc_id", doc.ID, "first_path", first)
				results = append(results, DiscoveryResult{SourcePath: path, DocumentID: doc.ID, Deduplicated: true})
				stats.Deduplicated++
				return nil
			}
			seen[doc.ID] = doc.SourcePath
			docs = append(docs, doc)
			results = append(results, DiscoveryResult{SourcePath: path, DocumentID: doc.ID})
			stats.Succeeded++
			return nil
		})
		if err != nil {
			return docs, results, stats, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].SourcePath < docs[j].SourcePath })

	d.logger.Info("ingest.discover.ok",
		"roots", len(roots),
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"documents", len(docs),
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return docs, results, stats, nil
}
