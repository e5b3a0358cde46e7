package ingest

import (
	"context"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PDFCPUPageCounter counts pages with pdfcpu.
type PDFCPUPageCounter struct{}

func (PDFCPUPageCounter) PageCount(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return api.PageCountFile(path)
}
