package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/annotate"
	"github.com/joseph-ayodele/plansets/internal/partition"
)

// ManifestName is the file the trainer loads to map label indices to names.
const ManifestName = "dataset.yaml"

// ImageSource yields the rendered image of a page.
type ImageSource interface {
	Image(ctx context.Context, documentID string, page int) (string, error)
}

// Manifest is the trainer-facing dataset description.
type Manifest struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	Test  string   `yaml:"test"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// SplitStats counts what was written for one split.
type SplitStats struct {
	Documents int `json:"documents"`
	Pages     int `json:"pages"`
	Boxes     int `json:"boxes"`
}

// DatasetResult reports one export.
type DatasetResult struct {
	Root          string
	ManifestPath  string
	Splits        map[constants.Split]SplitStats
	MissingImages []PageRef
	Unassigned    int // boxes whose document has no split
}

// PageRef names one page.
type PageRef struct {
	DocumentID string
	Page       int
	Err        string
}

// DatasetExporter writes images/<split>, labels/<split>, splits/<split>.txt and the manifest under Root.
type DatasetExporter struct {
	Root   string
	logger *slog.Logger
}

func NewDatasetExporter(root string, logger *slog.Logger) *DatasetExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetExporter{Root: root, logger: logger}
}

type pageKey struct {
	doc  string
	page int
}

// Export writes every page of an assigned document that has at least one box.
// Previous output under images/, labels/ and splits/ is replaced.
func (x *DatasetExporter) Export(ctx context.Context, a partition.Assignment, boxes []annotate.NormalizedBox, images ImageSource) (DatasetResult, error) {
	start := time.Now()
	res := DatasetResult{Root: x.Root, Splits: map[constants.Split]SplitStats{}}

	for _, dir := range []string{"images", "labels", "splits"} {
		if err := os.RemoveAll(filepath.Join(x.Root, dir)); err != nil {
			return res, fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	for _, s := range constants.Splits {
		for _, dir := range []string{"images", "labels"} {
			if err := os.MkdirAll(filepath.Join(x.Root, dir, string(s)), 0o755); err != nil {
				return res, err
			}
		}
	}

	byPage := map[pageKey][]annotate.NormalizedBox{}
	for _, b := range boxes {
		if _, ok := a.SplitOf(b.DocumentID); !ok {
			res.Unassigned++
			continue
		}
		k := pageKey{b.DocumentID, b.Page}
		byPage[k] = append(byPage[k], b)
	}
	keys := make([]pageKey, 0, len(byPage))
	for k := range byPage {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].doc != keys[j].doc {
			return keys[i].doc < keys[j].doc
		}
		return keys[i].page < keys[j].page
	})

	docsWritten := map[constants.Split]map[string]bool{}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		split, _ := a.SplitOf(k.doc)
		src, err := images.Image(ctx, k.doc, k.page)
		if err != nil {
			res.MissingImages = append(res.MissingImages, PageRef{DocumentID: k.doc, Page: k.page, Err: err.Error()})
			x.logger.Warn("export.dataset.image_missing", "doc_id", k.doc, "page", k.page, "error", err)
			continue
		}

		name := fmt.Sprintf("%s_page_%03d", k.doc, k.page)
		imgDst := filepath.Join(x.Root, "images", string(split), name+constants.ImageExt)
		if err := linkOrCopy(src, imgDst); err != nil {
			return res, fmt.Errorf("write image %s: %w", imgDst, err)
		}
		lblDst := filepath.Join(x.Root, "labels", string(split), name+constants.LabelExt)
		if err := writeLabels(lblDst, byPage[k]); err != nil {
			return res, fmt.Errorf("write labels %s: %w", lblDst, err)
		}

		st := res.Splits[split]
		st.Pages++
		st.Boxes += len(byPage[k])
		if docsWritten[split] == nil {
			docsWritten[split] = map[string]bool{}
		}
		if !docsWritten[split][k.doc] {
			docsWritten[split][k.doc] = true
			st.Documents++
		}
		res.Splits[split] = st
	}

	if err := x.writeSplitLists(a); err != nil {
		return res, err
	}
	path, err := x.writeManifest()
	if err != nil {
		return res, err
	}
	res.ManifestPath = path

	x.logger.Info("export.dataset.ok",
		"root", x.Root,
		"train_pages", res.Splits[constants.SplitTrain].Pages,
		"val_pages", res.Splits[constants.SplitVal].Pages,
		"test_pages", res.Splits[constants.SplitTest].Pages,
		"missing_images", len(res.MissingImages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// FormatLabel renders one box as "index cx cy w h".
func FormatLabel(b annotate.NormalizedBox) (string, error) {
	idx, ok := b.Label.Index()
	if !ok {
		return "", fmt.Errorf("label %q is not in the schema", b.Label)
	}
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", idx, b.CenterX, b.CenterY, b.Width, b.Height), nil
}

func writeLabels(path string, boxes []annotate.NormalizedBox) error {
	var sb strings.Builder
	for _, b := range boxes {
		line, err := FormatLabel(b)
		if err != nil {
			return err
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func (x *DatasetExporter) writeSplitLists(a partition.Assignment) error {
	dir := filepath.Join(x.Root, "splits")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, s := range constants.Splits {
		docs := a.Documents(s)
		content := strings.Join(docs, "\n")
		if len(docs) > 0 {
			content += "\n"
		}
		if err := os.WriteFile(filepath.Join(dir, string(s)+".txt"), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (x *DatasetExporter) writeManifest() (string, error) {
	abs, err := filepath.Abs(x.Root)
	if err != nil {
		abs = x.Root
	}
	m := Manifest{
		Path:  abs,
		Train: "images/train",
		Val:   "images/val",
		Test:  "images/test",
		NC:    constants.SchemaSize,
		Names: constants.AsStringSlice(),
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(x.Root, ManifestName)
	return path, os.WriteFile(path, b, 0o644)
}

// ReadManifest loads a manifest written by Export.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// linkOrCopy hard-links src to dst, copying when linking is not possible.
func linkOrCopy(src, dst string) error {
	_ = os.Remove(dst)
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var errNoRecords = errors.New("no records to export")
