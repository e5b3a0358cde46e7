package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plansets/internal/ingest"
)

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find plan-set PDFs and write manifest.jsonl",
		Example: `  plansets discover --pdf-root ./raw_pdfs
  plansets discover --config plansets.yaml --log-format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			docs, stats, err := a.discover(cmd.Context())
			if err != nil {
				return err
			}
			pages := 0
			for _, d := range docs {
				pages += d.Pages
			}
			fmt.Fprintf(a.out, "documents: %d (%d pages)\n", len(docs), pages)
			fmt.Fprintf(a.out, "scanned %d, matched %d, duplicates %d, failed %d\n",
				stats.Scanned, stats.Matched, stats.Deduplicated, stats.Failed)
			fmt.Fprintf(a.out, "manifest: %s\n", a.manifestPath())
			return nil
		},
	}
}

// discover walks the configured roots and refreshes the manifest, keeping first-seen times.
func (a *app) discover(ctx context.Context) ([]ingest.Document, ingest.DirStats, error) {
	d := ingest.NewFSDiscoverer(ingest.PDFCPUPageCounter{}, a.logger)
	docs, results, stats, err := d.Discover(ctx, a.cfg.Dataset.PDFRoots)
	if err != nil {
		return nil, stats, err
	}
	for _, r := range results {
		if r.Err != "" {
			a.logger.Warn("discover.file.failed", "path", r.SourcePath, "error", r.Err)
		}
	}

	prev, err := ingest.ReadManifest(a.manifestPath())
	if err != nil {
		a.logger.Warn("discover.manifest.unreadable", "path", a.manifestPath(), "error", err)
	}
	docs = ingest.MergeDiscovered(prev, docs)
	if err := ingest.WriteManifest(a.manifestPath(), docs); err != nil {
		return nil, stats, fmt.Errorf("write manifest: %w", err)
	}
	return docs, stats, nil
}
