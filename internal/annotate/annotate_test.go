package annotate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/common"
)

const eps = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < eps }

func TestNormalizeFormats(t *testing.T) {
	page := Dimensions{Width: 1000, Height: 500}
	tests := []struct {
		name         string
		raw          Raw
		cx, cy, w, h float64
	}{
		{
			name: "absolute pixels",
			raw:  Raw{Label: "rim_elev_ft", Format: FormatAbsolute, Box: Box{X: 100, Y: 50, W: 200, H: 100}},
			cx:   0.2, cy: 0.2, w: 0.2, h: 0.2,
		},
		{
			name: "default format is absolute",
			raw:  Raw{Label: "rim_elev_ft", Box: Box{X: 0, Y: 0, W: 1000, H: 500}},
			cx:   0.5, cy: 0.5, w: 1, h: 1,
		},
		{
			name: "relative top-left",
			raw:  Raw{Label: "casting", Format: FormatRelative, Box: Box{X: 0.1, Y: 0.2, W: 0.4, H: 0.2}},
			cx:   0.3, cy: 0.3, w: 0.4, h: 0.2,
		},
		{
			name: "center form passes through",
			raw:  Raw{Label: "casting", Format: FormatCenter, Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}},
			cx:   0.5, cy: 0.5, w: 0.1, h: 0.1,
		},
		{
			name: "table cell in its own frame",
			raw: Raw{Label: "pipe_material", Format: FormatTableCell, SourceWidth: 200, SourceHeight: 100,
				Cell: Cell{X0: 150, Y0: 80, X1: 50, Y1: 20}},
			cx: 0.5, cy: 0.5, w: 0.5, h: 0.6,
		},
		{
			name: "table cell falls back to page size",
			raw:  Raw{Label: "pipe_material", Format: FormatTableCell, Cell: Cell{X0: 0, Y0: 0, X1: 500, Y1: 250}},
			cx:   0.25, cy: 0.25, w: 0.5, h: 0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.raw.DocumentID = "doc"
			b, err := Normalizer{}.Normalize(tt.raw, page)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if !near(b.CenterX, tt.cx) || !near(b.CenterY, tt.cy) || !near(b.Width, tt.w) || !near(b.Height, tt.h) {
				t.Errorf("expected (%g %g %g %g), got (%g %g %g %g)", tt.cx, tt.cy, tt.w, tt.h, b.CenterX, b.CenterY, b.Width, b.Height)
			}
			if b.Clamped {
				t.Error("in-bounds box flagged as clamped")
			}
		})
	}
}

func TestNormalizeCanonicalizesLabel(t *testing.T) {
	b, err := Normalizer{}.Normalize(Raw{Label: "Rim Elevation", Format: FormatCenter, Box: Box{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}}, Dimensions{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if b.Label != constants.RimElevFt {
		t.Errorf("expected %s, got %s", constants.RimElevFt, b.Label)
	}
}

func TestNormalizeRejections(t *testing.T) {
	page := Dimensions{Width: 100, Height: 100}
	tests := []struct {
		name   string
		raw    Raw
		dims   Dimensions
		reason string
	}{
		{"unknown label", Raw{Label: "north arrow", Format: FormatCenter, Box: Box{X: .5, Y: .5, W: .1, H: .1}}, page, "not in the schema"},
		{"negative page", Raw{Label: "casting", Page: -1, Format: FormatCenter, Box: Box{X: .5, Y: .5, W: .1, H: .1}}, page, "negative page"},
		{"unknown format", Raw{Label: "casting", Format: "polygon"}, page, "unknown coordinate format"},
		{"zero area", Raw{Label: "casting", Format: FormatAbsolute, Box: Box{X: 10, Y: 10, W: 0, H: 5}}, page, "zero-area"},
		{"negative size", Raw{Label: "casting", Format: FormatRelative, Box: Box{X: .5, Y: .5, W: -.1, H: .1}}, page, "zero-area"},
		{"out of bounds", Raw{Label: "casting", Format: FormatAbsolute, Box: Box{X: 90, Y: 10, W: 20, H: 5}}, page, "out of bounds"},
		{"no dimensions", Raw{Label: "casting", Format: FormatAbsolute, Box: Box{X: 1, Y: 1, W: 2, H: 2}}, Dimensions{}, "dimensions unknown"},
		{"nan", Raw{Label: "casting", Format: FormatCenter, Box: Box{X: math.NaN(), Y: .5, W: .1, H: .1}}, page, "non-finite"},
		{"table cell without frame", Raw{Label: "casting", Format: FormatTableCell, Cell: Cell{X1: 1, Y1: 1}}, Dimensions{}, "frame size unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalizer{}.Normalize(tt.raw, tt.dims)
			if !errors.Is(err, common.ErrNormalization) {
				t.Fatalf("expected ErrNormalization, got %v", err)
			}
			var rej *Rejection
			if !errors.As(err, &rej) || !strings.Contains(rej.Reason, tt.reason) {
				t.Errorf("expected reason containing %q, got %v", tt.reason, err)
			}
		})
	}
}

func TestNormalizeClamp(t *testing.T) {
	raw := Raw{Label: "casting", Format: FormatAbsolute, Box: Box{X: 80, Y: -10, W: 40, H: 30}}
	b, err := Normalizer{Clamp: true}.Normalize(raw, Dimensions{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !b.Clamped {
		t.Error("expected clamped flag")
	}
	if !near(b.CenterX, 0.9) || !near(b.Width, 0.2) || !near(b.CenterY, 0.1) || !near(b.Height, 0.2) {
		t.Errorf("unexpected clamped box %+v", b)
	}
	if b.CenterX+b.Width/2 > 1 || b.CenterY-b.Height/2 < 0 {
		t.Errorf("clamped box still out of bounds: %+v", b)
	}

	outside := Raw{Label: "casting", Format: FormatRelative, Box: Box{X: 1.5, Y: 0.1, W: 0.2, H: 0.2}}
	if _, err := (Normalizer{Clamp: true}).Normalize(outside, Dimensions{}); err == nil {
		t.Error("expected a box entirely off the page to be rejected")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := Normalizer{Clamp: true}
	first, err := n.Normalize(Raw{DocumentID: "d", Page: 2, Label: "location", Format: FormatAbsolute,
		Box: Box{X: 95, Y: 5, W: 10, H: 10}}, Dimensions{Width: 100, Height: 100})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	second, err := n.Normalize(first.AsRaw(), Dimensions{})
	if err != nil {
		t.Fatalf("re-normalize: %v", err)
	}
	if first != second {
		t.Errorf("expected idempotence, got %+v then %+v", first, second)
	}
}

type fakeDims struct {
	calls int
	fail  bool
}

func (f *fakeDims) Dimensions(_ context.Context, _ string, _ int) (Dimensions, error) {
	f.calls++
	if f.fail {
		return Dimensions{}, errors.New("render failed")
	}
	return Dimensions{Width: 200, Height: 100}, nil
}

func TestNormalizePages(t *testing.T) {
	raws := []Raw{
		{DocumentID: "a", Page: 0, Label: "casting", Box: Box{X: 0, Y: 0, W: 100, H: 50}},
		{DocumentID: "a", Page: 0, Label: "location", Box: Box{X: 100, Y: 50, W: 100, H: 50}},
		{DocumentID: "a", Page: 1, Label: "casting", Format: FormatRelative, Box: Box{X: 0, Y: 0, W: .5, H: .5}},
		{DocumentID: "a", Page: 2, Label: "casting", Box: Box{X: 0, Y: 0, W: 10, H: 10}, PageWidth: 20, PageHeight: 20},
	}
	src := &fakeDims{}
	res, err := Normalizer{}.NormalizePages(context.Background(), raws, src)
	if err != nil {
		t.Fatalf("NormalizePages: %v", err)
	}
	if len(res.Boxes) != 4 || len(res.Rejections) != 0 {
		t.Fatalf("expected 4 boxes, got %d (rejections %+v)", len(res.Boxes), res.Rejections)
	}
	if src.calls != 1 {
		t.Errorf("expected one dimension lookup for page 0, got %d", src.calls)
	}
	if !near(res.Boxes[0].CenterX, 0.25) || !near(res.Boxes[0].CenterY, 0.25) {
		t.Errorf("unexpected first box %+v", res.Boxes[0])
	}

	failing := &fakeDims{fail: true}
	res, err = Normalizer{}.NormalizePages(context.Background(), raws[:2], failing)
	if err != nil {
		t.Fatalf("NormalizePages: %v", err)
	}
	if len(res.Rejections) != 2 || failing.calls != 1 {
		t.Errorf("expected 2 rejections from one failed lookup, got %d rejections, %d calls", len(res.Rejections), failing.calls)
	}
}

func TestNormalizePagesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Normalizer{}.NormalizePages(ctx, []Raw{{DocumentID: "a", Label: "casting", Box: Box{W: 1, H: 1}}}, &fakeDims{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	content := strings.Join([]string{
		`{"doc_id":"plan-a","page_index":0,"annotations":[{"bbox":[10,20,30,40],"label":"rim_elev_ft","value":"825.45","page_width":100,"page_height":100}]}`,
		`{"doc_id":"plan-a","page_index":1,"format":"relative","annotations":[{"bbox":[0.1,0.1,0.2,0.2],"label":"casting"},{"bbox":[1,2],"label":"casting"}]}`,
		`{"doc_id":"plan-a","page_index":2,"annotations":[{"format":"table_cell","cell":{"x0":1,"y0":2,"x1":3,"y1":4},"label":"pipe_material","source_width":10,"source_height":10}]}`,
		``,
		`not json`,
		`{"doc_id":"plan-a","annotations":[]}`,
	}, "\n")
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("plan-a.jsonl", content)
	write("stranger.jsonl", `{"page_index":0,"annotations":[]}`)

	resolver := ResolverFunc(func(key string) (string, bool) {
		if key == "plan-a" {
			return "0123456789abcdef", true
		}
		return "", false
	})
	res, err := NewLoader(dir, resolver, slog.New(slog.NewTextHandler(io.Discard, nil))).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	raws := res.ByDocument["0123456789abcdef"]
	if len(raws) != 3 {
		t.Fatalf("expected 3 raw annotations, got %d", len(raws))
	}
	if raws[0].Format != FormatAbsolute || raws[0].Box.W != 30 || raws[0].PageWidth != 100 || raws[0].Value != "825.45" {
		t.Errorf("unexpected first annotation %+v", raws[0])
	}
	if raws[1].Format != FormatRelative || raws[1].Page != 1 {
		t.Errorf("expected record-level format on second annotation, got %+v", raws[1])
	}
	if raws[2].Format != FormatTableCell || raws[2].Cell.X1 != 3 || raws[2].SourceWidth != 10 {
		t.Errorf("unexpected table cell %+v", raws[2])
	}
	if res.Records["0123456789abcdef"] != 3 {
		t.Errorf("expected 3 upstream records, got %d", res.Records["0123456789abcdef"])
	}
	if len(res.Issues) != 3 {
		t.Errorf("expected 3 issues (short bbox, bad json, missing page), got %+v", res.Issues)
	}
	if len(res.Unmatched) != 1 {
		t.Errorf("expected one unmatched file, got %v", res.Unmatched)
	}
}

func TestLoaderMissingDirectory(t *testing.T) {
	res, err := NewLoader(filepath.Join(t.TempDir(), "none"), nil, nil).Load()
	if err != nil || len(res.ByDocument) != 0 {
		t.Fatalf("expected empty result, got %+v, %v", res, err)
	}
}

func TestNormalizeAllAndCount(t *testing.T) {
	res := Normalizer{}.NormalizeAll([]Raw{
		{DocumentID: "a", Label: "casting", Format: FormatCenter, Box: Box{X: .5, Y: .5, W: .2, H: .2}},
		{DocumentID: "a", Label: "casting", Box: Box{X: 1, Y: 1, W: 2, H: 2}, PageWidth: 10, PageHeight: 10},
		{DocumentID: "b", Label: "bogus", Format: FormatCenter, Box: Box{X: .5, Y: .5, W: .2, H: .2}},
	})
	if len(res.Boxes) != 2 || len(res.Rejections) != 1 {
		t.Fatalf("expected 2 boxes and 1 rejection, got %d and %d", len(res.Boxes), len(res.Rejections))
	}
	counts := CountByDocument(res.Boxes)
	if counts["a"] != 2 || counts["b"] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
}
