package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dslipak/pdf"
)

// PDFTextSource reads the embedded text layer of a PDF.
type PDFTextSource struct {
	MaxPages    int           // 0 = all pages
	PageTimeout time.Duration // per-page extraction bound
	logger      *slog.Logger
}

func NewPDFTextSource(maxPages int, logger *slog.Logger) *PDFTextSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTextSource{MaxPages: maxPages, PageTimeout: 10 * time.Second, logger: logger}
}

// Text concatenates page text. Pages that fail to decode are skipped.
func (s *PDFTextSource) Text(ctx context.Context, path string) (string, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	if s.MaxPages > 0 && n > s.MaxPages {
		n = s.MaxPages
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := s.pageText(ctx, page)
		if err != nil {
			s.logger.Debug("ingest.text.page_failed", "path", path, "page", i, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(content)
	}
	return b.String(), nil
}

func (s *PDFTextSource) pageText(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- result{err: fmt.Errorf("decode page: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resCh <- result{content, err}
	}()

	timeout := s.PageTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res.content, res.err
	case <-timer.C:
		return "", fmt.Errorf("page text timed out after %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
