package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plansets/internal/common"
	"github.com/joseph-ayodele/plansets/internal/export"
	"github.com/joseph-ayodele/plansets/internal/extract"
	"github.com/joseph-ayodele/plansets/internal/ingest"
	"github.com/joseph-ayodele/plansets/internal/ocrapi"
	"github.com/joseph-ayodele/plansets/internal/quality"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		force        bool
		maxDocuments int
		interval     int
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract structure and pipe records through the OCR/AI service, resuming from the last checkpoint",
		Example: `  # Resume an interrupted run
  plansets extract --pdf-root ./raw_pdfs

  # Reprocess everything, checkpointing after every document
  plansets extract --force --checkpoint-interval 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.cfg
			flags := cmd.Flags()
			if flags.Changed("force") {
				c.Extract.ForceReprocess = force
			}
			if flags.Changed("max-documents") {
				c.Extract.MaxDocuments = maxDocuments
			}
			if flags.Changed("checkpoint-interval") {
				c.Extract.CheckpointInterval = interval
			}
			if metricsAddr != "" {
				c.Metrics.Addr = metricsAddr
			}
			if err := c.Validate(); err != nil {
				return err
			}

			client := ocrapi.NewClient(ocrapi.ConfigFromService(c.Service), a.logger)
			if !client.Configured() {
				return common.NewAppError("CONFIG_ERROR", "DOCUPIPE_API_KEY is required for extraction", common.ErrInvalidInput)
			}

			stopMetrics := a.serveMetrics(c.Metrics.Addr)
			defer stopMetrics()

			store, closeStore, err := a.openCheckpointStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()
			responses, closeResponses, err := a.openResponses(ctx)
			if err != nil {
				return err
			}
			defer closeResponses()

			docs, _, err := a.discover(ctx)
			if err != nil {
				return err
			}

			engine := extract.NewEngine(
				client,
				ingest.NewPDFTextSource(c.Extract.MaxTextPages, a.logger),
				store,
				responses,
				quality.NewValidator(),
				extract.NewThrottle(c.Extract.RateLimitDelay, c.Extract.MaxInFlight),
				extract.OptionsFromConfig(c.Extract),
				a.logger,
			)
			summary, runErr := engine.Run(ctx, docs)
			if summary == nil {
				return runErr
			}

			summary.Fprint(a.out)
			if len(summary.Scored) > 0 {
				files, err := export.NewResultsExporter(c.Extract.OutputDir, a.logger).WriteResults(export.ResultSet{
					SessionID: summary.SessionID,
					Records:   summary.Scored,
					Outcomes:  summary.Outcomes,
				})
				if err != nil {
					runErr = errors.Join(runErr, fmt.Errorf("write results: %w", err))
				} else {
					fmt.Fprintf(a.out, "results: %s, %s, %s\n", files.XLSX, files.CSV, files.Parquet)
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.BoolVar(&force, "force", false, "reprocess documents that already have an outcome")
	f.IntVar(&maxDocuments, "max-documents", 0, "process at most this many pending documents (0 = all)")
	f.IntVar(&interval, "checkpoint-interval", 0, "write a checkpoint snapshot after this many documents")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
