package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/plansets/internal/common"
)

// app carries what every subcommand needs once the root pre-run has resolved it.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	workDir    string
	pdfRoots   []string

	cfg    *common.Config
	logger *slog.Logger
	out    io.Writer
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "plansets",
		Short: "Build training datasets and extract utility data from civil plan-set PDFs",
		Long: `Plansets turns a corpus of civil-engineering plan-set PDFs into two products:

  - an object-detection dataset (page images, normalized box labels, train/val/test splits)
  - tabular structure and pipe records extracted through an external OCR/AI service

Extraction is checkpointed, so an interrupted run resumes where it stopped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return a.init(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML config file")
	f.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&a.workDir, "work-dir", "", "working directory for caches and outputs")
	f.StringSliceVar(&a.pdfRoots, "pdf-root", nil, "directory to search for plan-set PDFs (repeatable)")

	cmd.AddCommand(
		newDiscoverCmd(a),
		newRenderCmd(a),
		newDatasetCmd(a),
		newExtractCmd(a),
		newReportCmd(a),
		newResponsesCmd(a),
	)
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	if a.configPath == "" {
		if _, err := os.Stat("plansets.yaml"); err == nil {
			a.configPath = "plansets.yaml"
		}
	}
	cfg, err := common.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.workDir != "" {
		wd := cfg.Dataset.WorkDir
		cfg.Dataset.WorkDir = a.workDir
		rebase(cfg, wd, a.workDir)
	}
	if len(a.pdfRoots) > 0 {
		cfg.Dataset.PDFRoots = a.pdfRoots
	}
	a.cfg = cfg
	a.logger.Debug("config.loaded", "path", a.configPath, "work_dir", cfg.Dataset.WorkDir, "pdf_roots", cfg.Dataset.PDFRoots)
	return nil
}

// rebase moves directories that were derived from the old work directory under the new one.
func rebase(cfg *common.Config, from, to string) {
	for _, p := range []*string{
		&cfg.Dataset.AnnotationsDir,
		&cfg.Dataset.OutputDir,
		&cfg.Render.CacheDir,
		&cfg.Extract.OutputDir,
		&cfg.Store.CheckpointDir,
		&cfg.Store.ResponsesDir,
	} {
		if rel, err := filepath.Rel(from, *p); err == nil && !strings.HasPrefix(rel, "..") {
			*p = filepath.Join(to, rel)
		}
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func (a *app) manifestPath() string {
	return filepath.Join(a.cfg.Dataset.WorkDir, "manifest.jsonl")
}
