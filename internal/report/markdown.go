package report

import (
	"bytes"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/pagediff/internal/model"
)

// DefaultWorstLimit is how many non-passing documents the Markdown summary
// lists.
const DefaultWorstLimit = 20

// MarkdownWriter outputs a run summary in Markdown format.
// This format is designed for CI step summaries and pull request comments,
// where the full HTML report is one click away.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter

	// limit caps the number of listed documents.
	limit int

	// reportLink is the location of the HTML report, if any.
	reportLink string
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithWorstLimit sets how many non-passing documents are listed.
func WithWorstLimit(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		if n > 0 {
			w.limit = n
		}
	}
}

// WithReportLink links the full HTML report from the summary.
func WithReportLink(link string) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.reportLink = link
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, threshold float64, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output, threshold),
		limit:      DefaultWorstLimit,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(reports []*model.FileReport) (int, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)
	summary := Summarize(reports, w.threshold)

	md.H1("Visual Regression Summary")
	md.PlainText("")

	w.writeSummary(md, summary)
	w.writeWorst(md, reports)

	if w.reportLink != "" {
		md.PlainTextf("Full report: [HTML](%s)", w.reportLink)
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return 0, err
	}
	return w.output.Write(buf.Bytes())
}

// writeSummary writes the status table, chart and verdict.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s Summary) {
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Documents"},
		Rows: [][]string{
			{"✅ Pass (SSIM ≥ " + strconv.FormatFloat(s.Threshold, 'f', -1, 64) + ")", strconv.Itoa(s.Pass)},
			{"⚠️ Below threshold", strconv.Itoa(s.Warn)},
			{"❌ Errors", strconv.Itoa(s.Error)},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}

	switch {
	case s.Error > 0:
		md.Cautionf("%d document(s) could not be compared.", s.Error)
	case s.Warn > 0:
		md.Warningf("%d document(s) have pages below the SSIM threshold.", s.Warn)
	default:
		md.Tip("Every document matches its original.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of the status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Document Status"),
		piechart.WithShowData(true),
	)

	if s.Pass > 0 {
		chart.LabelAndIntValue("Pass", uint64(s.Pass))
	}
	if s.Warn > 0 {
		chart.LabelAndIntValue("Below threshold", uint64(s.Warn))
	}
	if s.Error > 0 {
		chart.LabelAndIntValue("Error", uint64(s.Error))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeWorst lists the documents that did not pass, worst first.
func (w *MarkdownWriter) writeWorst(md *markdown.Markdown, reports []*model.FileReport) {
	var rows [][]string
	for _, r := range Sort(reports) {
		status := Classify(r, w.threshold)
		if status == model.StatusPass {
			break
		}
		if len(rows) == w.limit {
			break
		}

		result := r.Error
		if status == model.StatusWarn {
			result = "min " + formatScore(r.MinSSIM) + ", mean " + formatScore(r.MeanSSIM) +
				", worst page " + strconv.Itoa(worstPage(r))
		}
		rows = append(rows, []string{
			"`" + r.Name + "`",
			status.String(),
			truncateString(result, 80),
		})
	}
	if len(rows) == 0 {
		return
	}

	md.H2("Documents Needing Attention")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Document", "Status", "Result"},
		Rows:   rows,
	})
	md.PlainText("")
}

// worstPage returns the number of the lowest scoring page.
func worstPage(r *model.FileReport) int {
	if len(r.Pages) == 0 {
		return 0
	}
	worst := r.Pages[0]
	for _, p := range r.Pages[1:] {
		if p.SSIMScore < worst.SSIMScore {
			worst = p
		}
	}
	return worst.Page
}

// truncateString truncates a string to maxLen bytes with ellipsis, without
// splitting a UTF-8 sequence.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	cut := maxLen - 3
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
