package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/pagediff/internal/imaging"
	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/render"
	"golang.org/x/text/unicode/norm"
)

// Renderer rasterizes a PDF into page images.
// render.PageRenderer is the production implementation.
type Renderer interface {
	// Render writes the pages of pdfPath into outDir and returns their paths
	// in page order.
	Render(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// Dirs groups the directories a Comparator reads from and writes to.
type Dirs struct {
	// OrigPDF holds <stem>.pdf for every original document.
	OrigPDF string

	// RtPDF holds <stem>.pdf for every round-tripped document.
	RtPDF string

	// Work is scratch space. Page renders go to <Work>/orig_png/<stem> and
	// <Work>/rt_png/<stem>.
	Work string

	// Report is the directory of the report files. Page images are copied
	// to <Report>/images/<stem> and referenced relative to Report.
	Report string
}

// ImageDir returns the directory that holds the report images.
func (d Dirs) ImageDir() string {
	return filepath.Join(d.Report, "images")
}

// Comparator compares the original and round-tripped renders of a document.
// It is safe for concurrent use as long as every call handles a different
// document.
type Comparator struct {
	dirs        Dirs
	renderer    Renderer
	limits      imaging.Limits
	keepRenders bool
	logger      *slog.Logger
}

// ComparatorOption configures a Comparator.
type ComparatorOption func(*Comparator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ComparatorOption {
	return func(c *Comparator) {
		c.logger = logger
	}
}

// WithMaxImageSide sets the dimension cap applied before scoring.
func WithMaxImageSide(n int) ComparatorOption {
	return func(c *Comparator) {
		c.limits.MaxSide = n
	}
}

// WithMaxDecodePixels sets the largest page, in pixels, that is decoded.
// Larger renders fail the document as resource exhausted.
func WithMaxDecodePixels(n int64) ComparatorOption {
	return func(c *Comparator) {
		c.limits.MaxPixels = n
	}
}

// WithKeepRenders keeps the scratch renders after a document is done.
func WithKeepRenders(keep bool) ComparatorOption {
	return func(c *Comparator) {
		c.keepRenders = keep
	}
}

// NewComparator creates a Comparator.
func NewComparator(dirs Dirs, renderer Renderer, opts ...ComparatorOption) *Comparator {
	c := &Comparator{
		dirs:     dirs,
		renderer: renderer,
		limits:   imaging.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Compare produces the FileReport of the named document.
// It never fails: errors and panics are recorded in the returned report.
func (c *Comparator) Compare(ctx context.Context, name string) (report *model.FileReport) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while comparing document",
				"document", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			report = model.NewFailedReport(name, model.ErrorKindUnexpected, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	report = model.NewFileReport(name)
	if err := c.compare(ctx, name, report); err != nil {
		if ctx.Err() != nil {
			err = ErrCancelled
		}
		report.Fail(Classify(err), err)
		c.logger.Warn("document comparison failed",
			"document", name,
			"kind", report.ErrorKind,
			"error", err,
		)
		return report
	}

	c.logger.Debug("document compared",
		"document", name,
		"pages", len(report.Pages),
		"min_ssim", report.MinSSIM,
	)
	return report
}

func (c *Comparator) compare(ctx context.Context, name string, report *model.FileReport) (err error) {
	stem := Stem(name)

	origPDF, err := findPDF(c.dirs.OrigPDF, stem)
	if err != nil {
		return fmt.Errorf("original %w", err)
	}
	rtPDF, err := findPDF(c.dirs.RtPDF, stem)
	if err != nil {
		return fmt.Errorf("roundtrip %w", err)
	}

	origDir := filepath.Join(c.dirs.Work, "orig_png", stem)
	rtDir := filepath.Join(c.dirs.Work, "rt_png", stem)
	if !c.keepRenders {
		defer c.cleanup(name, origDir, rtDir)
	}

	origPages, err := c.renderer.Render(ctx, origPDF, origDir)
	if err != nil {
		return err
	}
	rtPages, err := c.renderer.Render(ctx, rtPDF, rtDir)
	if err != nil {
		return err
	}
	if len(origPages) == 0 {
		return fmt.Errorf("original PDF %w", render.ErrNoPages)
	}
	if len(rtPages) == 0 {
		return fmt.Errorf("roundtrip PDF %w", render.ErrNoPages)
	}
	if len(origPages) != len(rtPages) {
		c.logger.Info("page count differs",
			"document", name,
			"original", len(origPages),
			"roundtrip", len(rtPages),
		)
	}

	imgDir := filepath.Join(c.dirs.ImageDir(), stem)
	if err := os.MkdirAll(imgDir, 0750); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	defer func() {
		// A failed report references no images.
		if err != nil {
			_ = os.RemoveAll(imgDir) //nolint:errcheck // Best effort
		}
	}()

	pages := max(len(origPages), len(rtPages))
	for idx := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := c.comparePage(idx, origPages, rtPages, imgDir)
		if err != nil {
			return fmt.Errorf("page %d: %w", idx+1, err)
		}
		report.AddPage(page)
	}
	return nil
}

// comparePage scores page idx. A page missing on one side scores 0.0 and has
// no difference map; the side that exists is still copied for the report.
func (c *Comparator) comparePage(idx int, origPages, rtPages []string, imgDir string) (model.PageResult, error) {
	n := idx + 1
	result := model.PageResult{Page: n}

	var err error
	if idx < len(origPages) {
		if result.OrigPNG, err = c.publish(origPages[idx], imgDir, fmt.Sprintf("orig-%d.png", n)); err != nil {
			return result, err
		}
	}
	if idx < len(rtPages) {
		if result.RtPNG, err = c.publish(rtPages[idx], imgDir, fmt.Sprintf("rt-%d.png", n)); err != nil {
			return result, err
		}
	}
	if idx >= len(origPages) || idx >= len(rtPages) {
		return result, nil
	}

	res, err := imaging.CompareFiles(origPages[idx], rtPages[idx], c.limits)
	if err != nil {
		return result, err
	}

	diffPath := filepath.Join(imgDir, fmt.Sprintf("diff-%d.png", n))
	if err := writePNG(diffPath, res.Diff); err != nil {
		return result, err
	}

	result.SSIMScore = res.Score
	result.DiffPNG = c.relative(diffPath)
	return result, nil
}

// publish copies a render into the image directory and returns the path the
// report should reference.
func (c *Comparator) publish(src, imgDir, name string) (string, error) {
	dst := filepath.Join(imgDir, name)
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return c.relative(dst), nil
}

// relative returns path relative to the report directory, with forward
// slashes so that it works as a URL in the HTML report.
func (c *Comparator) relative(path string) string {
	rel, err := filepath.Rel(c.dirs.Report, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// cleanup removes the scratch renders of a document.
func (c *Comparator) cleanup(name string, dirs ...string) {
	var reclaimed int64
	for _, dir := range dirs {
		reclaimed += dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Warn("failed to remove scratch renders",
				"document", name,
				"dir", dir,
				"error", err,
			)
		}
	}
	if reclaimed > 0 {
		c.logger.Debug("removed scratch renders",
			"document", name,
			"reclaimed", humanize.Bytes(uint64(reclaimed)), //nolint:gosec // Sizes are never negative
		)
	}
}

// Stem returns the document name without directory and extension, in
// Unicode normalization form C. Names coming from macOS file systems are
// often decomposed (NFD) while manifests are composed, so both sides are
// normalized before they meet.
func Stem(name string) string {
	base := filepath.Base(name)
	return norm.NFC.String(strings.TrimSuffix(base, filepath.Ext(base)))
}

// findPDF locates <stem>.pdf in dir, comparing names after NFC normalization
// when the direct lookup fails.
func findPDF(dir, stem string) (string, error) {
	path := filepath.Join(dir, stem+".pdf")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ErrMissingPDF
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		if Stem(name) == stem {
			return filepath.Join(dir, name), nil
		}
	}
	return "", ErrMissingPDF
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // Render paths are produced by this package
	if err != nil {
		return fmt.Errorf("failed to open render: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst) //nolint:gosec // Destination is inside the report image directory
	if err != nil {
		return fmt.Errorf("failed to create report image: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close() //nolint:errcheck // The copy error is more relevant
		return fmt.Errorf("failed to copy render: %w", err)
	}
	return out.Close()
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) //nolint:gosec // Destination is inside the report image directory
	if err != nil {
		return fmt.Errorf("failed to create diff image: %w", err)
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		_ = f.Close() //nolint:errcheck // The encode error is more relevant
		return fmt.Errorf("failed to encode diff image: %w", err)
	}
	return f.Close()
}

// dirSize returns the total size of the regular files under dir.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error { //nolint:errcheck // Best effort for logging
		if err != nil {
			return nil //nolint:nilerr // Skip unreadable entries
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
