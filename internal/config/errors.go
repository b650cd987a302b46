package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoOriginalDir is returned when the original document directory is not set.
	ErrNoOriginalDir = errors.New("no original directory specified: use --original-dir")

	// ErrNoRoundtripDir is returned when the round-tripped document directory is not set.
	ErrNoRoundtripDir = errors.New("no roundtrip directory specified: use --roundtrip-dir")

	// ErrNoWorkDir is returned when the scratch directory is not set.
	ErrNoWorkDir = errors.New("no work directory specified: use --work-dir")

	// ErrNoReportPath is returned when the HTML report path is not set.
	ErrNoReportPath = errors.New("no report path specified: use --report")

	// ErrReportPathConflict is returned when the report path ends in .json or
	// .md, so the HTML report would share a path with a sibling report.
	ErrReportPathConflict = errors.New("invalid report path: use an .html path, the .json and .md reports are written next to it")

	// ErrInvalidThreshold is returned when the threshold is outside (0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold: must be greater than 0 and at most 1")

	// ErrInvalidDPI is returned when the rendering resolution is not positive.
	ErrInvalidDPI = errors.New("invalid DPI: must be positive")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidMaxImageSide is returned when the image cap is smaller than
	// the SSIM window.
	ErrInvalidMaxImageSide = errors.New("invalid max image side: must be at least the SSIM window size")

	// ErrInvalidMaxDecodePixels is returned when the decode budget is not positive.
	ErrInvalidMaxDecodePixels = errors.New("invalid max decode pixels: must be positive")

	// ErrNoExtensions is returned when no document extension is configured.
	ErrNoExtensions = errors.New("no document extensions configured")

	// ErrInvalidTimeout is returned when a tool timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidChunkSize is returned when the converter chunk size is not positive.
	ErrInvalidChunkSize = errors.New("invalid chunk size: must be positive")

	// ErrNoDBDir is returned when history is enabled without a database directory.
	ErrNoDBDir = errors.New("no database directory specified: use --db-dir or --no-history")
)
