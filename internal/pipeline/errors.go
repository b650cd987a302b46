package pipeline

import (
	"errors"

	"github.com/nao1215/pagediff/internal/imaging"
	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/render"
)

// Document errors. They end up in FileReport.Error, so their messages are
// phrased for the report reader.
var (
	// ErrUpstreamFailed marks documents the round-trip tool already failed on.
	ErrUpstreamFailed = errors.New("roundtrip failed")

	// ErrMissingPDF is returned when an expected PDF does not exist.
	// Callers prefix it with the side, e.g. "original PDF missing (...)".
	ErrMissingPDF = errors.New("PDF missing (document conversion likely failed)")

	// ErrCancelled marks documents that were not compared because the run
	// was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrPanic marks documents whose comparison panicked.
	ErrPanic = errors.New("panic")
)

// Manifest errors.
var (
	// ErrInvalidManifest is returned when the manifest cannot be used.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// Classify maps a document error to the ErrorKind recorded in the report.
func Classify(err error) model.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUpstreamFailed):
		return model.ErrorKindUpstream
	case errors.Is(err, ErrMissingPDF):
		return model.ErrorKindMissingArtifact
	case errors.Is(err, render.ErrRendererFailed),
		errors.Is(err, render.ErrNoPages),
		errors.Is(err, render.ErrTimeout):
		return model.ErrorKindExternalTool
	case errors.Is(err, imaging.ErrImageTooLarge):
		return model.ErrorKindResourceExhausted
	default:
		return model.ErrorKindUnexpected
	}
}
