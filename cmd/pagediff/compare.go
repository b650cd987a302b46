package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/pagediff/internal/config"
	"github.com/nao1215/pagediff/internal/database"
	"github.com/nao1215/pagediff/internal/log"
	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/pipeline"
	"github.com/nao1215/pagediff/internal/render"
	"github.com/nao1215/pagediff/internal/report"
	"github.com/spf13/cobra"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare original and round-tripped documents page by page",
		Long: `Compare renders every original document and its round-tripped counterpart,
scores each page pair with SSIM and writes the reports.

Documents are converted to PDF with LibreOffice and rendered with pdftoppm.
When the round-trip directory contains manifest.json, it lists the documents
and marks those the round-trip itself failed on. Without a manifest, every
document in the original directory is compared.

Outputs, next to the --report path:
- <report>.html  summary and per-page images (original, round-trip, diff)
- <report>.json  every document with its page scores
- <report>.md    short summary for CI step summaries and pull requests

The exit status is 1 unless every document passes.

Examples:
  # Compare two directories of .docx files
  pagediff compare --original-dir orig --roundtrip-dir rt \
    --work-dir work --report out/report.html

  # Compare PDFs produced elsewhere
  pagediff compare --skip-convert --original-dir orig_pdf --roundtrip-dir rt_pdf \
    --work-dir work --report out/report.html

  # Stricter threshold, more workers, several formats
  pagediff compare -t 0.995 -w 8 -e .docx,.xlsx,.pptx ...

  # Use a configuration file (see 'pagediff init')
  pagediff compare -c ci/pagediff.yaml`,
		Args: cobra.NoArgs,
		RunE: runCompareCmd,
	}

	// Locations
	cmd.Flags().String("original-dir", "", "Directory of the original documents")
	cmd.Flags().String("roundtrip-dir", "", "Directory of the round-tripped documents and manifest.json")
	cmd.Flags().String("work-dir", "", "Scratch directory for PDFs and page renders")
	cmd.Flags().StringP("report", "r", "", "HTML report path (JSON and Markdown are written next to it)")

	// Scoring
	cmd.Flags().Float64P("threshold", "t", config.DefaultThreshold,
		"Minimum SSIM score for every page of a document to pass")
	cmd.Flags().Int("dpi", config.DefaultDPI, "Rendering resolution")
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Number of documents compared concurrently")
	cmd.Flags().Int("max-image-side", config.DefaultMaxImageSide,
		"Downscale pages whose longest side exceeds this many pixels")
	cmd.Flags().Int64("max-decode-pixels", config.DefaultMaxDecodePixels,
		"Fail documents with pages declaring more pixels than this")
	cmd.Flags().StringSliceP("extensions", "e", []string{config.DefaultExtension},
		"Document extensions to compare when there is no manifest")

	// External tools
	cmd.Flags().String("renderer", render.DefaultRendererCommand, "PDF rasterizer command (pdftoppm compatible)")
	cmd.Flags().String("converter", render.DefaultConverterCommand, "Document converter command (LibreOffice compatible)")
	cmd.Flags().Duration("render-timeout", render.DefaultRenderTimeout, "Timeout for rendering one PDF")
	cmd.Flags().BoolP("skip-convert", "S", false,
		"Treat --original-dir and --roundtrip-dir as directories of PDFs")
	cmd.Flags().Bool("keep-renders", false, "Keep page renders in the work directory")

	// History
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")
	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")

	// Configuration and logging
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .pagediff in current or home directory)")
	cmd.Flags().Bool("log-json", false, "Write logs as JSON lines")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCompare(ctx, cfg, render.NewExecRunner(), logger, cmd.OutOrStdout())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from defaults, the config file and flags,
// in increasing order of precedence.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use defaults if no file found.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cf.Apply(cfg, filepath.Dir(configPath))
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	// Log path shortening matches absolute prefixes only.
	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// applyFlags copies the flags the user set onto cfg. Flags left at their
// default do not override the config file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"original-dir":  &cfg.OriginalDir,
		"roundtrip-dir": &cfg.RoundtripDir,
		"work-dir":      &cfg.WorkDir,
		"report":        &cfg.ReportPath,
		"renderer":      &cfg.RendererCommand,
		"converter":     &cfg.ConverterCommand,
		"db-dir":        &cfg.DBDir,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	intFlags := map[string]*int{
		"dpi":            &cfg.DPI,
		"workers":        &cfg.Workers,
		"max-image-side": &cfg.MaxImageSide,
	}
	for name, dst := range intFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetInt(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	boolFlags := map[string]*bool{
		"skip-convert": &cfg.SkipConvert,
		"keep-renders": &cfg.KeepRenders,
		"log-json":     &cfg.JSONLog,
	}
	for name, dst := range boolFlags {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if flags.Changed("threshold") {
		v, err := flags.GetFloat64("threshold")
		if err != nil {
			return err
		}
		cfg.Threshold = v
	}

	if flags.Changed("max-decode-pixels") {
		v, err := flags.GetInt64("max-decode-pixels")
		if err != nil {
			return err
		}
		cfg.MaxDecodePixels = v
	}

	if flags.Changed("extensions") {
		v, err := flags.GetStringSlice("extensions")
		if err != nil {
			return err
		}
		cfg.Extensions = v
	}

	if flags.Changed("render-timeout") {
		v, err := flags.GetDuration("render-timeout")
		if err != nil {
			return err
		}
		cfg.RenderTimeout = v
	}

	if flags.Changed("no-history") {
		v, err := flags.GetBool("no-history")
		if err != nil {
			return err
		}
		cfg.SaveToDB = !v
	}

	return nil
}

// setupLogger creates a structured logger that shortens the run's
// directories in its output.
func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	bases := []log.Base{
		{Name: "WORK", Dir: cfg.WorkDir},
		{Name: "REPORT", Dir: filepath.Dir(cfg.ReportPath)},
		{Name: "ORIGINAL", Dir: cfg.OriginalDir},
		{Name: "ROUNDTRIP", Dir: cfg.RoundtripDir},
	}
	if cfg.JSONLog {
		return log.NewJSONLogger(w, cfg.Verbose, bases...)
	}
	return log.NewLogger(w, cfg.Verbose, bases...)
}

// runCompare executes one comparison run.
// Reports are written even when the run is interrupted, so that a cancelled
// run still shows what was compared.
func runCompare(ctx context.Context, cfg *config.Config, runner render.Runner, logger *slog.Logger, out io.Writer) error {
	runID := uuid.NewString()
	startTime := time.Now()

	logger.Info("starting run",
		"run_id", runID,
		"original", cfg.OriginalDir,
		"roundtrip", cfg.RoundtripDir,
		"threshold", cfg.Threshold,
		"workers", cfg.Workers,
	)

	origPDF, rtPDF, err := preparePDFs(ctx, cfg, runner, logger)
	if err != nil {
		return err
	}

	exts := cfg.Extensions
	if cfg.SkipConvert {
		exts = []string{".pdf"}
	}
	entries, hasManifest, err := pipeline.Discover(cfg.OriginalDir, cfg.RoundtripDir, exts)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if !hasManifest {
		logger.Warn("no manifest found, assuming every document round-tripped",
			"manifest", filepath.Join(cfg.RoundtripDir, pipeline.ManifestFile))
	}

	files := report.NewFileSet(cfg.ReportPath)
	renderer := render.NewPageRenderer(
		render.WithRunner(runner),
		render.WithCommand(cfg.RendererCommand),
		render.WithDPI(cfg.DPI),
		render.WithTimeout(cfg.RenderTimeout),
		render.WithRendererLogger(logger),
	)
	comparator := pipeline.NewComparator(
		pipeline.Dirs{
			OrigPDF: origPDF,
			RtPDF:   rtPDF,
			Work:    cfg.WorkDir,
			Report:  files.Dir(),
		},
		renderer,
		pipeline.WithLogger(logger),
		pipeline.WithMaxImageSide(cfg.MaxImageSide),
		pipeline.WithMaxDecodePixels(cfg.MaxDecodePixels),
		pipeline.WithKeepRenders(cfg.KeepRenders),
	)
	bp := pipeline.NewBatchProcessor(comparator,
		pipeline.WithConcurrency(cfg.Workers),
		pipeline.WithBatchLogger(logger),
	)

	reports, runErr := bp.Run(ctx, entries)

	if err := files.Write(reports, cfg.Threshold, report.WithRunInfo(runID, startTime)); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}

	summary := report.NewTextWriter(out, cfg.Threshold,
		report.WithVerbose(cfg.Verbose),
		report.WithReportPath(files.HTML),
	)
	if _, err := summary.Write(reports); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}

	if cfg.SaveToDB {
		// History is a convenience; a broken database must not change the verdict.
		if err := saveRun(ctx, cfg, runID, startTime, reports); err != nil {
			logger.Error("failed to save run history", "dir", cfg.DBDir, "error", err)
		}
	}

	return report.Summarize(reports, cfg.Threshold).Err()
}

// preparePDFs returns the directories holding the original and round-tripped
// PDFs, converting the documents first unless conversion is skipped.
// Documents that fail to convert are skipped here; the comparator reports
// them as missing PDFs.
func preparePDFs(ctx context.Context, cfg *config.Config, runner render.Runner, logger *slog.Logger) (string, string, error) {
	if cfg.SkipConvert {
		return cfg.OriginalDir, cfg.RoundtripDir, nil
	}

	converter := render.NewPDFConverter(
		render.WithConverterRunner(runner),
		render.WithConverterCommand(cfg.ConverterCommand),
		render.WithChunkSize(cfg.ChunkSize),
		render.WithConverterTimeouts(cfg.ChunkTimeout, cfg.FileTimeout),
		render.WithConverterLogger(logger),
	)

	origPDF := filepath.Join(cfg.WorkDir, "orig_pdf")
	rtPDF := filepath.Join(cfg.WorkDir, "rt_pdf")

	for _, side := range []struct {
		name, src, dst string
	}{
		{"original", cfg.OriginalDir, origPDF},
		{"roundtrip", cfg.RoundtripDir, rtPDF},
	} {
		stats, err := converter.ConvertDir(ctx, side.src, side.dst, cfg.Extensions)
		if err != nil {
			return "", "", fmt.Errorf("failed to convert %s documents: %w", side.name, err)
		}
		logger.Info("converted documents",
			"side", side.name,
			"documents", stats.Sources,
			"failed", len(stats.Failed),
		)
	}

	return origPDF, rtPDF, nil
}

// saveRun records the run in the history database.
func saveRun(ctx context.Context, cfg *config.Config, runID string, startTime time.Time, reports []*model.FileReport) error {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	s := report.Summarize(reports, cfg.Threshold)
	run := database.Run{
		ID:        runID,
		StartedAt: startTime,
		Threshold: cfg.Threshold,
		DPI:       cfg.DPI,
		Total:     s.Total,
		Pass:      s.Pass,
		Warn:      s.Warn,
		Error:     s.Error,
	}
	return db.SaveRun(ctx, run, reports)
}
