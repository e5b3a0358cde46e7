package annotate

import (
	"github.com/joseph-ayodele/plansets/constants"
)

// Format tags the coordinate system a raw annotation was recorded in.
type Format string

const (
	// FormatAbsolute is a top-left box in page pixels: [x, y, w, h].
	FormatAbsolute Format = "absolute_px"
	// FormatRelative is a top-left box already scaled to [0,1]: [x, y, w, h].
	FormatRelative Format = "relative"
	// FormatTableCell is a pair of cell corners in the coordinate frame of the extraction service.
	FormatTableCell Format = "table_cell"
	// FormatCenter is the canonical center form: [cx, cy, w, h] in [0,1].
	FormatCenter Format = "center"
)

// Box is a rectangle given as four numbers whose meaning depends on Format.
type Box struct {
	X, Y, W, H float64
}

// Cell is a table cell given by two opposite corners.
type Cell struct {
	X0, Y0, X1, Y1 float64
}

// Dimensions are page dimensions in pixels.
type Dimensions struct {
	Width, Height float64
}

// Raw is one upstream annotation instance as recorded by the annotation tool or the extraction service.
type Raw struct {
	DocumentID string
	Page       int
	Label      string
	Value      string
	Source     string
	Confidence float64

	Format Format
	Box    Box  // FormatAbsolute, FormatRelative, FormatCenter
	Cell   Cell // FormatTableCell

	// Page size recorded alongside the annotation; used when no dimensions are passed in.
	PageWidth, PageHeight float64
	// Frame size of FormatTableCell coordinates; zero means the page size.
	SourceWidth, SourceHeight float64

	// Clamped carries the audit flag of a box that was clamped earlier.
	Clamped bool
}

// NormalizedBox is a labelled box in page-relative center form.
// 0 <= center ± half-extent <= 1 holds on both axes.
type NormalizedBox struct {
	DocumentID string          `json:"doc_id"`
	Page       int             `json:"page_index"`
	Label      constants.Field `json:"label"`
	CenterX    float64         `json:"center_x"`
	CenterY    float64         `json:"center_y"`
	Width      float64         `json:"width"`
	Height     float64         `json:"height"`
	Value      string          `json:"value,omitempty"`
	Source     string          `json:"source,omitempty"`
	Clamped    bool            `json:"clamped,omitempty"`
}

// AsRaw converts a normalized box back into a raw center-form annotation.
func (b NormalizedBox) AsRaw() Raw {
	return Raw{
		DocumentID: b.DocumentID,
		Page:       b.Page,
		Label:      string(b.Label),
		Value:      b.Value,
		Source:     b.Source,
		Format:     FormatCenter,
		Box:        Box{X: b.CenterX, Y: b.CenterY, W: b.Width, H: b.Height},
		Clamped:    b.Clamped,
	}
}
