package report

import (
	"errors"
	"sort"

	"github.com/nao1215/pagediff/internal/model"
)

// DefaultThreshold is the minimum page score for a document to pass.
const DefaultThreshold = 0.98

// ErrRegression is returned when at least one document did not pass.
// The CLI maps it to exit status 1.
var ErrRegression = errors.New("visual regression detected")

// Classify returns the status of a report against threshold.
func Classify(r *model.FileReport, threshold float64) model.Status {
	return r.Status(threshold)
}

// Sort returns a copy of reports ordered for display: failures first, then
// by ascending minimum score, then by name. The input is not modified.
func Sort(reports []*model.FileReport) []*model.FileReport {
	sorted := make([]*model.FileReport, len(reports))
	copy(sorted, reports)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.OK != b.OK {
			return !a.OK
		}
		if a.MinSSIM != b.MinSSIM {
			return a.MinSSIM < b.MinSSIM
		}
		return a.Name < b.Name
	})
	return sorted
}

// Summary counts documents by status.
type Summary struct {
	// Threshold is the pass threshold the counts were computed with.
	Threshold float64 `json:"threshold"`

	// Total is the number of documents.
	Total int `json:"total"`

	// Pass is the number of documents with every page at or above Threshold.
	Pass int `json:"pass"`

	// Warn is the number of compared documents with a page below Threshold.
	Warn int `json:"warn"`

	// Error is the number of documents that could not be compared.
	Error int `json:"error"`
}

// Summarize counts reports by status.
func Summarize(reports []*model.FileReport, threshold float64) Summary {
	s := Summary{Threshold: threshold, Total: len(reports)}
	for _, r := range reports {
		switch Classify(r, threshold) {
		case model.StatusPass:
			s.Pass++
		case model.StatusWarn:
			s.Warn++
		default:
			s.Error++
		}
	}
	return s
}

// Passed reports whether every document passed.
func (s Summary) Passed() bool {
	return s.Warn == 0 && s.Error == 0
}

// Err returns ErrRegression unless every document passed.
func (s Summary) Err() error {
	if s.Passed() {
		return nil
	}
	return ErrRegression
}
