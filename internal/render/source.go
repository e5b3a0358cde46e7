package render

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/plansets/internal/annotate"
	"github.com/joseph-ayodele/plansets/internal/ingest"
)

// CatalogSource serves page images for documents known to a catalog, rendering on demand.
type CatalogSource struct {
	Renderer *Renderer
	Catalog  *ingest.Catalog
}

// Image returns the cached image for (documentID, page) at the renderer's DPI.
func (s CatalogSource) Image(ctx context.Context, documentID string, page int) (string, error) {
	doc, ok := s.Catalog.Resolve(documentID)
	if !ok {
		return "", &Error{DocumentID: documentID, Page: page, Reason: "unknown document"}
	}
	return s.Renderer.Render(ctx, doc, page, s.Renderer.DPI())
}

// Dimensions renders (documentID, page) and reports its pixel size.
func (s CatalogSource) Dimensions(ctx context.Context, documentID string, page int) (annotate.Dimensions, error) {
	path, err := s.Image(ctx, documentID, page)
	if err != nil {
		return annotate.Dimensions{}, err
	}
	w, h, err := PageSize(path)
	if err != nil {
		return annotate.Dimensions{}, fmt.Errorf("page size %s: %w", path, err)
	}
	return annotate.Dimensions{Width: float64(w), Height: float64(h)}, nil
}
