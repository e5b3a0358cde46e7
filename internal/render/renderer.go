package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/plansets/internal/common"
	"github.com/joseph-ayodele/plansets/internal/ingest"
	"github.com/joseph-ayodele/plansets/internal/metrics"
)

type Config struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default 300
	MaxPages int    // -1 or 0 = no limit
	CacheDir string // default "./tmp/images"
	Workers  int    // batch concurrency, default 4
}

// Page is a rendered page image.
type Page struct {
	DocumentID string
	Index      int
	DPI        int
	ImagePath  string
	Cached     bool
}

// Renderer rasterizes PDF pages through pdftoppm and memoizes the output.
type Renderer struct {
	cfg    Config
	cache  Cache
	runner Runner
	logger *slog.Logger
}

func NewRenderer(cfg Config, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./tmp/images"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Renderer{
		cfg:    cfg,
		cache:  Cache{Dir: cfg.CacheDir},
		runner: execRunner{logger: logger},
		logger: logger,
	}
}

// WithRunner replaces the command runner.
func (r *Renderer) WithRunner(run Runner) *Renderer {
	r.runner = run
	return r
}

// Cache exposes the page cache the renderer writes to.
func (r *Renderer) Cache() Cache {
	return r.cache
}

// DPI is the configured default resolution.
func (r *Renderer) DPI() int {
	return r.cfg.DPI
}

// Render returns the cached image path for (doc, page, dpi), rasterizing on a miss.
// page is 0-based.
func (r *Renderer) Render(ctx context.Context, doc ingest.Document, page, dpi int) (string, error) {
	p, err := r.render(ctx, doc, page, dpi)
	return p.ImagePath, err
}

func (r *Renderer) render(ctx context.Context, doc ingest.Document, page, dpi int) (Page, error) {
	out := Page{DocumentID: doc.ID, Index: page, DPI: dpi}
	if dpi <= 0 {
		return out, &Error{DocumentID: doc.ID, Page: page, Reason: "dpi must be positive"}
	}
	if page < 0 || page >= doc.Pages {
		metrics.CaptureRender("error")
		return out, &Error{DocumentID: doc.ID, Page: page, Reason: fmt.Sprintf("page out of range [0,%d)", doc.Pages)}
	}

	key := Key{DocumentID: doc.ID, Page: page, DPI: dpi}
	path, ok, err := r.cache.Lookup(key)
	out.ImagePath = path
	switch {
	case ok:
		metrics.CaptureRender("hit")
		r.logger.Debug("render.cache.hit", "doc_id", doc.ID, "page", page, "dpi", dpi)
		out.Cached = true
		return out, nil
	case errors.Is(err, errInconsistent):
		r.logger.Warn("render.cache.inconsistent", "doc_id", doc.ID, "page", page, "path", path,
			"error", fmt.Errorf("%w: %v", common.ErrCacheInconsistent, err))
		_ = os.Remove(path)
	case err != nil:
		metrics.CaptureRender("error")
		return out, &Error{DocumentID: doc.ID, Page: page, Reason: "cache lookup", Err: err}
	}

	if _, err := os.Stat(doc.SourcePath); err != nil {
		metrics.CaptureRender("error")
		return out, &Error{DocumentID: doc.ID, Page: page, Reason: "source unreadable", Err: err}
	}

	start := time.Now()
	if err := r.rasterize(ctx, doc.SourcePath, page, dpi, path); err != nil {
		metrics.CaptureRender("error")
		return out, &Error{DocumentID: doc.ID, Page: page, Reason: "rasterize", Err: err}
	}
	metrics.CaptureRender("miss")
	r.logger.Debug("render.page.ok",
		"doc_id", doc.ID,
		"page", page,
		"dpi", dpi,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// rasterize renders one page into a private temp file next to dest, then renames it into place.
// Concurrent renders of the same key each write their own temp file; the last rename wins.
func (r *Renderer) rasterize(ctx context.Context, src string, page, dpi int, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	prefix := filepath.Join(dir, fmt.Sprintf(".render-%d-%s", page, uuid.NewString()[:8]))
	tmp := prefix + ".png"
	defer func() { _ = os.Remove(tmp) }()

	pageNum := strconv.Itoa(page + 1)
	// pdftoppm -r <dpi> -png -f <n> -l <n> -singlefile <in.pdf> <prefix>
	_, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm,
		"-r", strconv.Itoa(dpi),
		"-png",
		"-f", pageNum,
		"-l", pageNum,
		"-singlefile",
		src, prefix,
	)
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", r.cfg.Pdftoppm, err, truncate(string(errb), 512))
	}
	if err := checkPNG(tmp); err != nil {
		return fmt.Errorf("rasterizer output: %w", err)
	}
	return os.Rename(tmp, dest)
}

// PageLimit is the number of pages of doc the renderer will touch.
func (r *Renderer) PageLimit(doc ingest.Document) int {
	if r.cfg.MaxPages > 0 && doc.Pages > r.cfg.MaxPages {
		return r.cfg.MaxPages
	}
	return doc.Pages
}

// Request is one (document, page) to render at the configured DPI.
type Request struct {
	Document ingest.Document
	Page     int
}

// BatchResult collects rendered pages and per-page failures.
type BatchResult struct {
	Pages    []Page
	Failures []*Error
	Hits     int
}

// RenderDocument renders every page of doc up to the page limit.
func (r *Renderer) RenderDocument(ctx context.Context, doc ingest.Document) BatchResult {
	n := r.PageLimit(doc)
	reqs := make([]Request, 0, n)
	for p := 0; p < n; p++ {
		reqs = append(reqs, Request{Document: doc, Page: p})
	}
	return r.RenderBatch(ctx, reqs)
}

// RenderBatch renders requests on a bounded pool. Failures never abort the batch;
// only cancellation stops scheduling further pages.
func (r *Renderer) RenderBatch(ctx context.Context, reqs []Request) BatchResult {
	var (
		mu  sync.Mutex
		res BatchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, req := range reqs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p, err := r.render(gctx, req.Document, req.Page, r.cfg.DPI)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var rerr *Error
				if !errors.As(err, &rerr) {
					rerr = &Error{DocumentID: req.Document.ID, Page: req.Page, Reason: "render", Err: err}
				}
				res.Failures = append(res.Failures, rerr)
				r.logger.Warn("render.page.failed", "doc_id", req.Document.ID, "page", req.Page, "error", err)
				return nil
			}
			if p.Cached {
				res.Hits++
			}
			res.Pages = append(res.Pages, p)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Pages, func(i, j int) bool {
		if res.Pages[i].DocumentID != res.Pages[j].DocumentID {
			return res.Pages[i].DocumentID < res.Pages[j].DocumentID
		}
		return res.Pages[i].Index < res.Pages[j].Index
	})
	return res
}
