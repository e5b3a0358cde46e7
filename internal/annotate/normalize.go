package annotate

import (
	"context"
	"math"

	"github.com/joseph-ayodele/plansets/constants"
)

// Normalizer converts raw annotations into NormalizedBox values. It performs no I/O.
type Normalizer struct {
	// Clamp pulls out-of-bounds boxes into [0,1] and flags them instead of rejecting.
	Clamp bool
}

type extent struct {
	cx, cy, w, h float64
}

type converter func(raw Raw, dims Dimensions) (extent, *Rejection)

var converters = map[Format]converter{
	FormatAbsolute:  fromAbsolute,
	FormatRelative:  fromRelative,
	FormatTableCell: fromTableCell,
	FormatCenter:    fromCenter,
}

// Normalize converts raw using dims; zero dims fall back to the page size recorded on raw.
func (n Normalizer) Normalize(raw Raw, dims Dimensions) (NormalizedBox, error) {
	label, ok := constants.Canonicalize(raw.Label)
	if !ok {
		return NormalizedBox{}, reject(raw, "label %q is not in the schema", raw.Label)
	}
	if raw.Page < 0 {
		return NormalizedBox{}, reject(raw, "negative page index %d", raw.Page)
	}

	format := raw.Format
	if format == "" {
		format = FormatAbsolute
	}
	conv, ok := converters[format]
	if !ok {
		return NormalizedBox{}, reject(raw, "unknown coordinate format %q", format)
	}

	if dims.Width <= 0 || dims.Height <= 0 {
		dims = Dimensions{Width: raw.PageWidth, Height: raw.PageHeight}
	}

	e, rej := conv(raw, dims)
	if rej != nil {
		return NormalizedBox{}, rej
	}
	if !finite(e.cx, e.cy, e.w, e.h) {
		return NormalizedBox{}, reject(raw, "non-finite coordinates")
	}
	if e.w <= 0 || e.h <= 0 {
		return NormalizedBox{}, reject(raw, "zero-area box (w=%g h=%g)", e.w, e.h)
	}

	clamped := raw.Clamped
	if !inBounds(e) {
		if !n.Clamp {
			return NormalizedBox{}, reject(raw, "box out of bounds (cx=%g cy=%g w=%g h=%g)", e.cx, e.cy, e.w, e.h)
		}
		e = clamp(e)
		if e.w <= 0 || e.h <= 0 {
			return NormalizedBox{}, reject(raw, "box lies entirely outside the page")
		}
		clamped = true
	}

	return NormalizedBox{
		DocumentID: raw.DocumentID,
		Page:       raw.Page,
		Label:      label,
		CenterX:    e.cx,
		CenterY:    e.cy,
		Width:      e.w,
		Height:     e.h,
		Value:      raw.Value,
		Source:     raw.Source,
		Clamped:    clamped,
	}, nil
}

func fromAbsolute(raw Raw, dims Dimensions) (extent, *Rejection) {
	if dims.Width <= 0 || dims.Height <= 0 {
		return extent{}, reject(raw, "page dimensions unknown")
	}
	b := raw.Box
	return extent{
		cx: (b.X + b.W/2) / dims.Width,
		cy: (b.Y + b.H/2) / dims.Height,
		w:  b.W / dims.Width,
		h:  b.H / dims.Height,
	}, nil
}

func fromRelative(raw Raw, _ Dimensions) (extent, *Rejection) {
	b := raw.Box
	return extent{cx: b.X + b.W/2, cy: b.Y + b.H/2, w: b.W, h: b.H}, nil
}

func fromTableCell(raw Raw, dims Dimensions) (extent, *Rejection) {
	fw, fh := raw.SourceWidth, raw.SourceHeight
	if fw <= 0 || fh <= 0 {
		fw, fh = dims.Width, dims.Height
	}
	if fw <= 0 || fh <= 0 {
		return extent{}, reject(raw, "table cell frame size unknown")
	}
	c := raw.Cell
	x0, x1 := math.Min(c.X0, c.X1), math.Max(c.X0, c.X1)
	y0, y1 := math.Min(c.Y0, c.Y1), math.Max(c.Y0, c.Y1)
	return extent{
		cx: (x0 + x1) / 2 / fw,
		cy: (y0 + y1) / 2 / fh,
		w:  (x1 - x0) / fw,
		h:  (y1 - y0) / fh,
	}, nil
}

func fromCenter(raw Raw, _ Dimensions) (extent, *Rejection) {
	b := raw.Box
	return extent{cx: b.X, cy: b.Y, w: b.W, h: b.H}, nil
}

func inBounds(e extent) bool {
	return e.cx-e.w/2 >= 0 && e.cx+e.w/2 <= 1 &&
		e.cy-e.h/2 >= 0 && e.cy+e.h/2 <= 1
}

func clamp(e extent) extent {
	x0 := math.Max(0, e.cx-e.w/2)
	x1 := math.Min(1, e.cx+e.w/2)
	y0 := math.Max(0, e.cy-e.h/2)
	y1 := math.Min(1, e.cy+e.h/2)
	out := extent{w: x1 - x0, h: y1 - y0}
	out.cx = x0 + out.w/2
	out.cy = y0 + out.h/2
	// Guard against rounding pushing an edge past the page.
	if out.cx+out.w/2 > 1 {
		out.w = 2 * (1 - out.cx)
	}
	if out.cy+out.h/2 > 1 {
		out.h = 2 * (1 - out.cy)
	}
	return out
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Result holds the accepted boxes and rejections of a batch.
type Result struct {
	Boxes      []NormalizedBox
	Rejections []Rejection
}

// NormalizeAll normalizes raws using the page size each one carries.
func (n Normalizer) NormalizeAll(raws []Raw) Result {
	var res Result
	for _, raw := range raws {
		box, err := n.Normalize(raw, Dimensions{})
		if err != nil {
			if rej, ok := err.(*Rejection); ok {
				res.Rejections = append(res.Rejections, *rej)
				continue
			}
			res.Rejections = append(res.Rejections, *reject(raw, "%v", err))
			continue
		}
		res.Boxes = append(res.Boxes, box)
	}
	return res
}

// DimensionSource reports the pixel size of a page.
type DimensionSource interface {
	Dimensions(ctx context.Context, documentID string, page int) (Dimensions, error)
}

type pageRef struct {
	doc  string
	page int
}

// NormalizePages is NormalizeAll for annotations that may lack a recorded page size;
// src is asked once per page that needs one. Only cancellation aborts the batch.
func (n Normalizer) NormalizePages(ctx context.Context, raws []Raw, src DimensionSource) (Result, error) {
	var res Result
	known := map[pageRef]Dimensions{}
	failed := map[pageRef]error{}

	for _, raw := range raws {
		var dims Dimensions
		if needsDimensions(raw) && src != nil {
			ref := pageRef{raw.DocumentID, raw.Page}
			d, ok := known[ref]
			if !ok && failed[ref] == nil {
				var err error
				d, err = src.Dimensions(ctx, raw.DocumentID, raw.Page)
				if ctxErr := ctx.Err(); ctxErr != nil {
					return res, ctxErr
				}
				if err != nil {
					failed[ref] = err
				} else {
					known[ref] = d
				}
			}
			if err := failed[ref]; err != nil {
				res.Rejections = append(res.Rejections, *reject(raw, "page dimensions unavailable: %v", err))
				continue
			}
			dims = d
		}

		box, err := n.Normalize(raw, dims)
		if err != nil {
			if rej, ok := err.(*Rejection); ok {
				res.Rejections = append(res.Rejections, *rej)
				continue
			}
			res.Rejections = append(res.Rejections, *reject(raw, "%v", err))
			continue
		}
		res.Boxes = append(res.Boxes, box)
	}
	return res, nil
}

func needsDimensions(raw Raw) bool {
	pageKnown := raw.PageWidth > 0 && raw.PageHeight > 0
	switch raw.Format {
	case FormatAbsolute, "":
		return !pageKnown
	case FormatTableCell:
		return !pageKnown && (raw.SourceWidth <= 0 || raw.SourceHeight <= 0)
	}
	return false
}

// CountByDocument returns the number of accepted boxes per document.
func CountByDocument(boxes []NormalizedBox) map[string]int {
	out := make(map[string]int)
	for _, b := range boxes {
		out[b.DocumentID]++
	}
	return out
}
