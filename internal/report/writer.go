package report

import (
	"io"

	"github.com/nao1215/pagediff/internal/model"
)

// Writer defines the interface for report output.
// Implementations write the results of one run in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the same
// API.
type Writer interface {
	// Write outputs the reports to the configured destination.
	// Reports are given in manifest order; writers that present a ranking
	// sort them with Sort. Returns the number of bytes written.
	Write(reports []*model.FileReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// The CLI uses it to produce the HTML, JSON and Markdown files of a run.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the reports to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(reports []*model.FileReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(reports)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output    io.Writer
	threshold float64
}

// newBaseWriter creates a baseWriter with the given output destination and
// pass threshold.
func newBaseWriter(output io.Writer, threshold float64) baseWriter {
	return baseWriter{output: output, threshold: threshold}
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
