package model

// Status is the pass/warn/fail classification of a FileReport.
//
// Design decision: We use iota-based constants so that the natural ordering
// (fail < warn < pass) doubles as the report sort order, worst first.
type Status int

const (
	// StatusFail means the document could not be compared.
	StatusFail Status = iota

	// StatusWarn means the document was compared but at least one page
	// scored below the threshold.
	StatusWarn

	// StatusPass means every page scored at or above the threshold.
	StatusPass
)

// String returns the lowercase name used in reports and CSS classes.
func (s Status) String() string {
	switch s {
	case StatusFail:
		return "fail"
	case StatusWarn:
		return "warn"
	case StatusPass:
		return "pass"
	default:
		return "unknown"
	}
}

// ErrorKind tags why a document failed.
// The values are serialized into the JSON report.
type ErrorKind string

const (
	// ErrorKindUpstream means the round-trip tool already failed on the document.
	ErrorKindUpstream ErrorKind = "upstream"

	// ErrorKindMissingArtifact means an expected PDF was not produced.
	ErrorKindMissingArtifact ErrorKind = "missing_artifact"

	// ErrorKindExternalTool means a converter or renderer exited non-zero,
	// timed out, or produced nothing.
	ErrorKindExternalTool ErrorKind = "external_tool"

	// ErrorKindResourceExhausted means a page image was too large to process.
	ErrorKindResourceExhausted ErrorKind = "resource_exhausted"

	// ErrorKindUnexpected covers everything else, including recovered panics.
	ErrorKindUnexpected ErrorKind = "unexpected"
)

// ManifestEntry is one entry of the manifest written by the round-trip tool.
type ManifestEntry struct {
	// Name is the document file name.
	Name string `json:"name"`

	// OK is false when the round-trip itself failed.
	OK bool `json:"ok"`

	// Error is the round-trip failure message, if any.
	Error string `json:"error,omitempty"`

	// Elapsed is the round-trip duration as printed by the producer.
	Elapsed string `json:"elapsed,omitempty"`
}
