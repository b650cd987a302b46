package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/pagediff/internal/imaging"
	"github.com/nao1215/pagediff/internal/render"
	"github.com/nao1215/pagediff/internal/report"
)

// Default configuration values.
// Rendering and conversion defaults are owned by the render package so that
// the CLI and library callers agree on them.
const (
	// DefaultThreshold is the minimum page score for a document to pass.
	DefaultThreshold = report.DefaultThreshold

	// DefaultDPI is the page rendering resolution.
	DefaultDPI = render.DefaultDPI

	// DefaultWorkers is the number of documents compared concurrently.
	// Each worker holds at most two decoded pages, so memory grows linearly.
	DefaultWorkers = 4

	// DefaultMaxImageSide caps the longest side of a decoded page.
	DefaultMaxImageSide = imaging.DefaultMaxSide

	// DefaultMaxDecodePixels is the largest page, in pixels, that is decoded.
	DefaultMaxDecodePixels = imaging.DefaultMaxPixels

	// DefaultExtension is the document extension compared when the config
	// names none.
	DefaultExtension = ".docx"

	// AppName is the application name used for XDG directory paths.
	AppName = "pagediff"
)

// Config holds all configuration options for pagediff.
// This struct is populated from the config file and CLI flags and passed
// through the application via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The number of options is manageable, and nesting would add
// complexity without significant benefit.
type Config struct {
	// OriginalDir holds the original documents, or their PDFs when
	// SkipConvert is set.
	OriginalDir string

	// RoundtripDir holds the round-tripped documents and manifest.json, or
	// their PDFs when SkipConvert is set.
	RoundtripDir string

	// WorkDir is the scratch directory for PDFs and page renders.
	WorkDir string

	// ReportPath is the path of the HTML report. The JSON and Markdown
	// reports are written next to it.
	ReportPath string

	// Threshold is the minimum page score for a document to pass.
	Threshold float64

	// DPI is the page rendering resolution.
	DPI int

	// Workers is the number of documents compared concurrently.
	Workers int

	// MaxImageSide caps the longest side of a decoded page in pixels.
	// Larger pages are downscaled before scoring.
	MaxImageSide int

	// MaxDecodePixels is the largest declared page size, in pixels, that is
	// decoded. Larger pages fail their document as resource exhausted.
	MaxDecodePixels int64

	// Extensions lists the document extensions picked up when there is no
	// manifest and when converting.
	Extensions []string

	// RendererCommand is the PDF rasterizer (pdftoppm compatible).
	RendererCommand string

	// ConverterCommand is the document to PDF converter (LibreOffice
	// compatible).
	ConverterCommand string

	// ChunkSize is the number of documents handed to one converter call.
	ChunkSize int

	// RenderTimeout bounds one rasterizer call.
	RenderTimeout time.Duration

	// ChunkTimeout bounds one chunked converter call.
	ChunkTimeout time.Duration

	// FileTimeout bounds one single-document converter call made after a
	// chunk failed.
	FileTimeout time.Duration

	// SkipConvert treats OriginalDir and RoundtripDir as PDF directories.
	SkipConvert bool

	// KeepRenders keeps the page renders in WorkDir after each document.
	KeepRenders bool

	// SaveToDB stores the run in the history database.
	SaveToDB bool

	// DBDir is the directory of the history database.
	// Defaults to XDG data directory (~/.local/share/pagediff on Linux).
	DBDir string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// JSONLog writes logs as JSON lines instead of text.
	JSONLog bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .pagediff in the current directory
	// and then in the user's home directory.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., threshold, DPI).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Threshold:        DefaultThreshold,
		DPI:              DefaultDPI,
		Workers:          DefaultWorkers,
		MaxImageSide:     DefaultMaxImageSide,
		MaxDecodePixels:  DefaultMaxDecodePixels,
		Extensions:       []string{DefaultExtension},
		RendererCommand:  render.DefaultRendererCommand,
		ConverterCommand: render.DefaultConverterCommand,
		ChunkSize:        render.DefaultChunkSize,
		RenderTimeout:    render.DefaultRenderTimeout,
		ChunkTimeout:     render.DefaultChunkTimeout,
		FileTimeout:      render.DefaultFileTimeout,
		SaveToDB:         true,
		DBDir:            XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for pagediff.
// On Linux: ~/.local/share/pagediff
// On macOS: ~/Library/Application Support/pagediff
// On Windows: %LOCALAPPDATA%\pagediff
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast. This is called once after CLI parsing, before
// any document is touched, and is the only place a run can fail as a whole.
func (c *Config) Validate() error {
	switch {
	case c.OriginalDir == "":
		return ErrNoOriginalDir
	case c.RoundtripDir == "":
		return ErrNoRoundtripDir
	case c.WorkDir == "":
		return ErrNoWorkDir
	case c.ReportPath == "":
		return ErrNoReportPath
	}

	// The JSON and Markdown reports take the HTML path's base name.
	// Compared case-insensitively for case-insensitive file systems.
	files := report.NewFileSet(c.ReportPath)
	if strings.EqualFold(files.HTML, files.JSON) || strings.EqualFold(files.HTML, files.Markdown) {
		return ErrReportPathConflict
	}

	// Scores live in [0, 1]; a threshold of 0 would pass everything.
	if c.Threshold <= 0 || c.Threshold > 1 {
		return ErrInvalidThreshold
	}

	if c.DPI <= 0 {
		return ErrInvalidDPI
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.MaxImageSide < imaging.WindowSize {
		return ErrInvalidMaxImageSide
	}

	if c.MaxDecodePixels <= 0 {
		return ErrInvalidMaxDecodePixels
	}

	if len(c.Extensions) == 0 {
		return ErrNoExtensions
	}

	if c.RenderTimeout <= 0 || c.ChunkTimeout <= 0 || c.FileTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if !c.SkipConvert && c.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}

	if c.SaveToDB && c.DBDir == "" {
		return ErrNoDBDir
	}

	return nil
}

// ResolvePaths makes every configured location absolute, relative to the
// current directory. Unset locations stay empty.
func (c *Config) ResolvePaths() error {
	for _, p := range []*string{
		&c.OriginalDir,
		&c.RoundtripDir,
		&c.WorkDir,
		&c.ReportPath,
		&c.DBDir,
	} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}
