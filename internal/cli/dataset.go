package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plansets/constants"
	"github.com/joseph-ayodele/plansets/internal/annotate"
	"github.com/joseph-ayodele/plansets/internal/export"
	"github.com/joseph-ayodele/plansets/internal/ingest"
	"github.com/joseph-ayodele/plansets/internal/partition"
	"github.com/joseph-ayodele/plansets/internal/render"
)

func newDatasetCmd(a *app) *cobra.Command {
	var (
		annotations string
		output      string
		clamp       bool
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Normalize annotations, partition documents and export the detection dataset",
		Long: `Discovers source PDFs, loads one JSONL annotation file per document, normalizes
every box to page-relative center form, assigns whole documents to train/val/test
and writes images, labels, split lists and dataset.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.cfg
			if annotations != "" {
				c.Dataset.AnnotationsDir = annotations
			}
			if output != "" {
				c.Dataset.OutputDir = output
			}
			if cmd.Flags().Changed("clamp") {
				c.Dataset.ClampBoxes = clamp
			}
			if err := c.Validate(); err != nil {
				return err
			}

			docs, _, err := a.discover(ctx)
			if err != nil {
				return err
			}
			catalog := ingest.NewCatalog(docs)
			renderer := a.renderer()
			source := render.CatalogSource{Renderer: renderer, Catalog: catalog}

			loader := annotate.NewLoader(c.Dataset.AnnotationsDir, annotate.ResolverFunc(func(key string) (string, bool) {
				d, ok := catalog.Resolve(key)
				return d.ID, ok
			}), a.logger)
			loaded, err := loader.Load()
			if err != nil {
				return err
			}
			for _, is := range loaded.Issues {
				a.logger.Warn("dataset.annotation.skipped", "file", is.File, "line", is.Line, "reason", is.Reason)
			}

			var raws []annotate.Raw
			for _, id := range sortedKeys(loaded.ByDocument) {
				raws = append(raws, loaded.ByDocument[id]...)
			}
			norm := annotate.Normalizer{Clamp: c.Dataset.ClampBoxes}
			normalized, err := norm.NormalizePages(ctx, raws, source)
			if err != nil {
				return err
			}
			if err := writeRejections(filepath.Join(c.Dataset.OutputDir, "rejections.jsonl"), normalized.Rejections); err != nil {
				return err
			}

			counts := annotate.CountByDocument(normalized.Boxes)
			inputs := make([]partition.Input, 0, len(docs))
			for _, d := range docs {
				inputs = append(inputs, partition.Input{DocumentID: d.ID, Annotations: counts[d.ID]})
			}
			assignment, err := partition.Partition(inputs, partition.Options{
				Ratios:            partition.Ratios{Train: c.Dataset.TrainRatio, Val: c.Dataset.ValRatio, Test: c.Dataset.TestRatio},
				Seed:              c.Dataset.Seed,
				MinAnnotations:    c.Dataset.MinAnnotations,
				SmallSetThreshold: c.Dataset.SmallSetThreshold,
			})
			if err != nil {
				return err
			}
			if w := assignment.StabilityWarning(); w != "" {
				a.logger.Warn("dataset.partition.unstable", "mode", assignment.Mode, "detail", w)
			}

			// Render annotated pages up front so export only copies from the cache.
			rendered := renderer.RenderBatch(ctx, annotatedPages(catalog, assignment, normalized.Boxes))
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := export.NewDatasetExporter(c.Dataset.OutputDir, a.logger).Export(ctx, assignment, normalized.Boxes, source)
			if err != nil {
				return err
			}

			printDatasetSummary(a, loaded, normalized, assignment, rendered, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&annotations, "annotations", "", "directory of per-document JSONL annotation files")
	cmd.Flags().StringVar(&output, "output", "", "dataset output directory")
	cmd.Flags().BoolVar(&clamp, "clamp", false, "clamp out-of-bounds boxes instead of rejecting them")
	return cmd
}

func annotatedPages(catalog *ingest.Catalog, a partition.Assignment, boxes []annotate.NormalizedBox) []render.Request {
	seen := map[string]bool{}
	var reqs []render.Request
	for _, b := range boxes {
		if _, ok := a.SplitOf(b.DocumentID); !ok {
			continue
		}
		key := fmt.Sprintf("%s/%d", b.DocumentID, b.Page)
		if seen[key] {
			continue
		}
		seen[key] = true
		if d, ok := catalog.Resolve(b.DocumentID); ok {
			reqs = append(reqs, render.Request{Document: d, Page: b.Page})
		}
	}
	return reqs
}

func writeRejections(path string, rejections []annotate.Rejection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range rejections {
		if err := enc.Encode(r); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printDatasetSummary(a *app, loaded annotate.LoadResult, normalized annotate.Result, assignment partition.Assignment,
	rendered render.BatchResult, res export.DatasetResult) {
	out := a.out
	fmt.Fprintf(out, "annotations: %d accepted, %d rejected, %d unreadable lines, %d unmatched files\n",
		len(normalized.Boxes), len(normalized.Rejections), len(loaded.Issues), len(loaded.Unmatched))
	counts := assignment.Counts()
	fmt.Fprintf(out, "partition (%s): train %d, val %d, test %d documents; %d excluded\n",
		assignment.Mode, counts[constants.SplitTrain], counts[constants.SplitVal], counts[constants.SplitTest], len(assignment.Excluded))
	fmt.Fprintf(out, "render: %d pages (%d from cache), %d failed\n", len(rendered.Pages), rendered.Hits, len(rendered.Failures))
	for _, s := range constants.Splits {
		st := res.Splits[s]
		fmt.Fprintf(out, "  %-5s %4d documents %5d pages %6d boxes\n", s, st.Documents, st.Pages, st.Boxes)
	}
	if len(res.MissingImages) > 0 {
		fmt.Fprintf(out, "pages skipped for missing images: %d\n", len(res.MissingImages))
	}
	fmt.Fprintf(out, "manifest: %s\n", res.ManifestPath)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
