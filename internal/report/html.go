package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/nao1215/pagediff/internal/model"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

// htmlTemplate is parsed once; html/template escapes document names and
// error messages, which come from untrusted input.
var htmlTemplate = template.Must(
	template.New("report.html.tmpl").
		Funcs(template.FuncMap{"score": formatScore}).
		ParseFS(templateFS, "templates/report.html.tmpl"),
)

// DefaultTitle is the heading of the HTML report.
const DefaultTitle = "OPC Visual Regression Report"

// HTMLWriter outputs a self-contained HTML report.
// Documents are listed worst first with a summary of the run on top. Every
// compared document expands to its pages with the original, round-tripped
// and difference images side by side. Image references are written as they
// are stored in the reports, relative to the report's directory.
type HTMLWriter struct {
	baseWriter

	// title is the page heading.
	title string

	// runID identifies the run in the page header. Optional.
	runID string

	// generated is the time shown in the page header. Zero hides it.
	generated time.Time
}

// HTMLWriterOption configures an HTMLWriter.
type HTMLWriterOption func(*HTMLWriter)

// WithTitle sets the page heading.
func WithTitle(title string) HTMLWriterOption {
	return func(w *HTMLWriter) {
		w.title = title
	}
}

// WithRunInfo shows the run ID and its start time in the page header.
func WithRunInfo(runID string, generated time.Time) HTMLWriterOption {
	return func(w *HTMLWriter) {
		w.runID = runID
		w.generated = generated
	}
}

// NewHTMLWriter creates an HTMLWriter that classifies documents against
// threshold.
func NewHTMLWriter(output io.Writer, threshold float64, opts ...HTMLWriterOption) *HTMLWriter {
	w := &HTMLWriter{
		baseWriter: newBaseWriter(output, threshold),
		title:      DefaultTitle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// htmlPage is the template data.
type htmlPage struct {
	Title     string
	RunID     string
	Generated string
	Summary   Summary
	Rows      []htmlRow
}

type htmlRow struct {
	Name   string
	Status string
	Result string
	Pages  []htmlPageRow
}

type htmlPageRow struct {
	Page   int
	Status string
	Score  float64
	Orig   string
	Rt     string
	Diff   string
}

// Write renders the HTML report.
func (w *HTMLWriter) Write(reports []*model.FileReport) (int, error) {
	page := htmlPage{
		Title:   w.title,
		RunID:   w.runID,
		Summary: Summarize(reports, w.threshold),
	}
	if !w.generated.IsZero() {
		page.Generated = w.generated.Format("2006-01-02 15:04:05 MST")
	}

	for _, r := range Sort(reports) {
		page.Rows = append(page.Rows, w.row(r))
	}

	cw := &countingWriter{w: w.output}
	if err := htmlTemplate.Execute(cw, page); err != nil {
		return cw.n, fmt.Errorf("failed to render HTML report: %w", err)
	}
	return cw.n, nil
}

func (w *HTMLWriter) row(r *model.FileReport) htmlRow {
	row := htmlRow{
		Name:   r.Name,
		Status: Classify(r, w.threshold).String(),
	}
	if !r.OK {
		row.Result = r.Error
		return row
	}

	row.Result = fmt.Sprintf("min=%s  mean=%s", formatScore(r.MinSSIM), formatScore(r.MeanSSIM))
	for _, p := range r.Pages {
		status := model.StatusPass
		if p.SSIMScore < w.threshold {
			status = model.StatusWarn
		}
		row.Pages = append(row.Pages, htmlPageRow{
			Page:   p.Page,
			Status: status.String(),
			Score:  p.SSIMScore,
			Orig:   p.OrigPNG,
			Rt:     p.RtPNG,
			Diff:   p.DiffPNG,
		})
	}
	return row
}

// formatScore formats a score with four decimals.
func formatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
