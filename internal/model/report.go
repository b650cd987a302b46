package model

// PageResult is the comparison result for a single page.
// It is created once per page index and never modified afterwards.
type PageResult struct {
	// Page is the 1-based page number in render order.
	Page int `json:"page"`

	// SSIMScore is the structural similarity of the page pair in [0, 1].
	// Pages present on one side only score 0.0.
	SSIMScore float64 `json:"ssim_score"`

	// OrigPNG is the path of the original page image, relative to the
	// report directory. Empty when the original has no such page.
	OrigPNG string `json:"orig_png"`

	// RtPNG is the path of the round-tripped page image, relative to the
	// report directory. Empty when the round-tripped document has no such page.
	RtPNG string `json:"rt_png"`

	// DiffPNG is the path of the difference map, relative to the report
	// directory. Empty unless both sides were scored.
	DiffPNG string `json:"diff_png"`
}

// Scored reports whether both sides of the page existed and were compared.
func (p PageResult) Scored() bool {
	return p.DiffPNG != ""
}

// FileReport is the comparison result for one document.
//
// MinSSIM and MeanSSIM are derived from Pages and are recomputed every time
// the page list changes. Callers must use AddPage and Fail instead of
// mutating Pages directly so that the derived fields never go stale.
type FileReport struct {
	// Name is the document file name as listed in the manifest.
	Name string `json:"name"`

	// OK is false when the document could not be compared at all.
	OK bool `json:"ok"`

	// Error is the human-readable failure reason. Set only when OK is false.
	Error string `json:"error"`

	// ErrorKind classifies Error. Empty when OK is true.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Pages contains one entry per page index, in page order.
	Pages []PageResult `json:"pages"`

	// MinSSIM is the lowest page score, or 1.0 when there are no pages.
	MinSSIM float64 `json:"min_ssim"`

	// MeanSSIM is the average page score, or 1.0 when there are no pages.
	MeanSSIM float64 `json:"mean_ssim"`
}

// NewFileReport creates a passing FileReport with no pages.
// A report without pages carries no evidence of failure, so both derived
// scores start at 1.0.
func NewFileReport(name string) *FileReport {
	return &FileReport{
		Name:     name,
		OK:       true,
		Pages:    []PageResult{},
		MinSSIM:  1.0,
		MeanSSIM: 1.0,
	}
}

// NewFailedReport is a shortcut for NewFileReport followed by Fail.
func NewFailedReport(name string, kind ErrorKind, err error) *FileReport {
	r := NewFileReport(name)
	r.Fail(kind, err)
	return r
}

// AddPage appends a page result and recomputes the derived scores.
func (r *FileReport) AddPage(p PageResult) {
	r.Pages = append(r.Pages, p)
	r.recompute()
}

// Fail marks the report as failed.
// Pages are discarded because a failed document has no trustworthy scores.
// A nil error still produces a non-empty message.
func (r *FileReport) Fail(kind ErrorKind, err error) {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	if kind == "" {
		kind = ErrorKindUnexpected
	}

	r.OK = false
	r.Error = msg
	r.ErrorKind = kind
	r.Pages = []PageResult{}
	r.recompute()
}

// Status classifies the report against the given threshold.
func (r *FileReport) Status(threshold float64) Status {
	switch {
	case !r.OK:
		return StatusFail
	case r.MinSSIM < threshold:
		return StatusWarn
	default:
		return StatusPass
	}
}

// recompute derives MinSSIM and MeanSSIM from Pages.
func (r *FileReport) recompute() {
	if len(r.Pages) == 0 {
		r.MinSSIM = 1.0
		r.MeanSSIM = 1.0
		return
	}

	minScore := r.Pages[0].SSIMScore
	var sum float64
	for _, p := range r.Pages {
		if p.SSIMScore < minScore {
			minScore = p.SSIMScore
		}
		sum += p.SSIMScore
	}

	r.MinSSIM = minScore
	r.MeanSSIM = sum / float64(len(r.Pages))
}
