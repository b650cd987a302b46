package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Defaults for the document converter.
const (
	DefaultConverterCommand = "libreoffice"
	DefaultChunkSize        = 50
	DefaultChunkTimeout     = 600 * time.Second
	DefaultFileTimeout      = 120 * time.Second
)

// ConvertStats summarizes a ConvertDir call.
type ConvertStats struct {
	// Sources is the number of documents found.
	Sources int

	// Failed lists the documents that could not be converted even on their
	// own. They surface later as missing PDFs.
	Failed []string
}

// PDFConverter converts office documents to PDF with a headless office suite.
//
// Documents are converted in chunks so that the suite starts once per chunk
// instead of once per file. When a chunk fails, for instance because one file
// is encrypted, every file of that chunk is retried alone so that a single
// bad document does not cost the whole chunk.
type PDFConverter struct {
	runner       Runner
	command      string
	chunkSize    int
	chunkTimeout time.Duration
	fileTimeout  time.Duration
	logger       *slog.Logger
}

// ConverterOption configures a PDFConverter.
type ConverterOption func(*PDFConverter)

// WithConverterRunner sets the process runner.
func WithConverterRunner(r Runner) ConverterOption {
	return func(c *PDFConverter) {
		c.runner = r
	}
}

// WithConverterCommand sets the office suite program.
func WithConverterCommand(command string) ConverterOption {
	return func(c *PDFConverter) {
		c.command = command
	}
}

// WithChunkSize sets how many documents are passed to one invocation.
func WithChunkSize(n int) ConverterOption {
	return func(c *PDFConverter) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithConverterTimeouts sets the deadlines of a chunk and of a single-file
// retry.
func WithConverterTimeouts(chunk, file time.Duration) ConverterOption {
	return func(c *PDFConverter) {
		c.chunkTimeout = chunk
		c.fileTimeout = file
	}
}

// WithConverterLogger sets the logger.
func WithConverterLogger(logger *slog.Logger) ConverterOption {
	return func(c *PDFConverter) {
		c.logger = logger
	}
}

// NewPDFConverter creates a converter with the default LibreOffice settings.
func NewPDFConverter(opts ...ConverterOption) *PDFConverter {
	c := &PDFConverter{
		runner:       NewExecRunner(),
		command:      DefaultConverterCommand,
		chunkSize:    DefaultChunkSize,
		chunkTimeout: DefaultChunkTimeout,
		fileTimeout:  DefaultFileTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertDir converts every document in srcDir whose extension is in exts
// into outDir. Per-document failures are logged and listed in the stats;
// only cancellation of ctx and I/O errors on the directories are returned.
func (c *PDFConverter) ConvertDir(ctx context.Context, srcDir, outDir string, exts []string) (ConvertStats, error) {
	sources, err := ListSources(srcDir, exts)
	if err != nil {
		return ConvertStats{}, err
	}
	stats := ConvertStats{Sources: len(sources)}
	if len(sources) == 0 {
		return stats, nil
	}

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return stats, fmt.Errorf("failed to create PDF directory: %w", err)
	}

	for start := 0; start < len(sources); start += c.chunkSize {
		end := min(start+c.chunkSize, len(sources))
		chunk := sources[start:end]

		err := c.convert(ctx, c.chunkTimeout, outDir, chunk)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}

		c.logger.Debug("chunk conversion failed, retrying files one by one",
			"first", filepath.Base(chunk[0]),
			"count", len(chunk),
			"error", err)

		for _, src := range chunk {
			if err := c.convert(ctx, c.fileTimeout, outDir, []string{src}); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return stats, ctxErr
				}
				c.logger.Warn("document conversion failed, skipping",
					"document", filepath.Base(src),
					"error", err)
				stats.Failed = append(stats.Failed, filepath.Base(src))
			}
		}
	}

	return stats, nil
}

// convert runs one office suite invocation over files.
func (c *PDFConverter) convert(ctx context.Context, timeout time.Duration, outDir string, files []string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := make([]string, 0, len(files)+5)
	args = append(args, "--headless", "--convert-to", "pdf", "--outdir", outDir)
	args = append(args, files...)

	if err := c.runner.Run(runCtx, c.command, args...); err != nil {
		if errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w after %s", err, timeout)
		}
		return &ToolError{Tool: filepath.Base(c.command), Err: err}
	}
	return nil
}

// ListSources returns the files in dir whose extension matches one of exts,
// case-insensitively, sorted by name. Hidden files and office lock files
// (".~lock.*", "~$*") are skipped.
func ListSources(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list source documents: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if hasExt(name, exts) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
