package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Defaults for the page rasterizer.
const (
	DefaultRendererCommand = "pdftoppm"
	DefaultDPI             = 150
	DefaultRenderTimeout   = 120 * time.Second
)

// PageRenderer rasterizes every page of a PDF into PNG files.
type PageRenderer struct {
	runner  Runner
	command string
	dpi     int
	timeout time.Duration
	logger  *slog.Logger
}

// RendererOption configures a PageRenderer.
type RendererOption func(*PageRenderer)

// WithRunner sets the process runner. Tests use it to avoid spawning
// processes.
func WithRunner(r Runner) RendererOption {
	return func(p *PageRenderer) {
		p.runner = r
	}
}

// WithCommand sets the rasterizer program, e.g. an absolute path to pdftoppm.
func WithCommand(command string) RendererOption {
	return func(p *PageRenderer) {
		p.command = command
	}
}

// WithDPI sets the render resolution.
func WithDPI(dpi int) RendererOption {
	return func(p *PageRenderer) {
		p.dpi = dpi
	}
}

// WithTimeout sets the deadline of a single rasterizer invocation.
func WithTimeout(d time.Duration) RendererOption {
	return func(p *PageRenderer) {
		p.timeout = d
	}
}

// WithRendererLogger sets the logger.
func WithRendererLogger(logger *slog.Logger) RendererOption {
	return func(p *PageRenderer) {
		p.logger = logger
	}
}

// NewPageRenderer creates a renderer that runs pdftoppm at 150 DPI unless
// configured otherwise.
func NewPageRenderer(opts ...RendererOption) *PageRenderer {
	p := &PageRenderer{
		runner:  NewExecRunner(),
		command: DefaultRendererCommand,
		dpi:     DefaultDPI,
		timeout: DefaultRenderTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Render rasterizes pdfPath into outDir and returns the page images ordered
// by page number. outDir must be dedicated to this PDF: it is emptied before
// rendering, and every PNG found in it afterwards is taken to be a page.
//
// A PDF that renders to zero pages is not an error here; the caller decides
// what an empty document means.
func (p *PageRenderer) Render(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	if err := os.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("failed to reset render directory: %w", err)
	}
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create render directory: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	prefix := filepath.Join(outDir, stem)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("rendering PDF", "pdf", pdfPath, "dpi", p.dpi)
	err := p.runner.Run(runCtx, p.command,
		"-png", "-r", strconv.Itoa(p.dpi), pdfPath, prefix)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w after %s", err, p.timeout)
		}
		return nil, &ToolError{Tool: filepath.Base(p.command), Err: err}
	}

	return ListPages(outDir)
}

// ListPages returns the PNG files in dir sorted by their page number.
// pdftoppm names pages <prefix>-<n>.png, zero-padding n to the width of the
// page count, so a numeric sort is required for documents of mixed widths.
func ListPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	var pages []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		pages = append(pages, e.Name())
	}

	sort.SliceStable(pages, func(i, j int) bool {
		ni, oki := pageNumber(pages[i])
		nj, okj := pageNumber(pages[j])
		switch {
		case oki && okj && ni != nj:
			return ni < nj
		case oki != okj:
			// Numbered pages before anything else.
			return oki
		default:
			return pages[i] < pages[j]
		}
	})

	for i, name := range pages {
		pages[i] = filepath.Join(dir, name)
	}
	return pages, nil
}

// pageNumber extracts n from a "<prefix>-<n>.png" file name.
func pageNumber(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndexByte(base, '-')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
