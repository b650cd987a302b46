package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/pagediff/internal/model"
)

// TextWriter outputs a short human-readable summary for the terminal.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or CI logs
// 3. The HTML report is where details belong
type TextWriter struct {
	baseWriter

	// verbose lists every non-passing document instead of the first few.
	verbose bool

	// reportPath is printed as a pointer to the full report, if set.
	reportPath string
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithVerbose lists every non-passing document.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// WithReportPath prints the location of the full report.
func WithReportPath(path string) TextWriterOption {
	return func(w *TextWriter) {
		w.reportPath = path
	}
}

// textListLimit caps the documents listed without verbose output.
const textListLimit = 10

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, threshold float64, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{
		baseWriter: newBaseWriter(output, threshold),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary.
func (w *TextWriter) Write(reports []*model.FileReport) (int, error) {
	var sb strings.Builder
	s := Summarize(reports, w.threshold)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%d files, %d pass, %d below threshold, %d errors\n",
		s.Total, s.Pass, s.Warn, s.Error)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	w.writeFailures(&sb, reports)

	if w.reportPath != "" {
		fmt.Fprintf(&sb, "report: %s\n", w.reportPath)
	}

	return io.WriteString(w.output, sb.String())
}

// writeFailures lists the documents that did not pass, worst first.
func (w *TextWriter) writeFailures(sb *strings.Builder, reports []*model.FileReport) {
	var listed, remaining int
	for _, r := range Sort(reports) {
		status := Classify(r, w.threshold)
		if status == model.StatusPass {
			break
		}
		if !w.verbose && listed == textListLimit {
			remaining++
			continue
		}
		listed++

		if status == model.StatusFail {
			fmt.Fprintf(sb, "  [%s] %s: %s\n", status, r.Name, r.Error)
			continue
		}
		fmt.Fprintf(sb, "  [%s] %s: min=%s mean=%s\n",
			status, r.Name, formatScore(r.MinSSIM), formatScore(r.MeanSSIM))
	}
	if remaining > 0 {
		fmt.Fprintf(sb, "  ... and %d more (use --verbose to list all)\n", remaining)
	}
}
