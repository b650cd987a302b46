package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/pagediff/internal/model"
)

// FileSet names the files written for one run. The JSON and Markdown files
// sit next to the HTML report and share its base name.
type FileSet struct {
	HTML     string
	JSON     string
	Markdown string
}

// NewFileSet derives the file set from the HTML report path.
func NewFileSet(htmlPath string) FileSet {
	base := strings.TrimSuffix(htmlPath, filepath.Ext(htmlPath))
	return FileSet{
		HTML:     htmlPath,
		JSON:     base + ".json",
		Markdown: base + ".md",
	}
}

// Dir returns the report directory. Image references in the reports are
// relative to it.
func (fs FileSet) Dir() string {
	return filepath.Dir(fs.HTML)
}

// Write writes all three files.
func (fs FileSet) Write(reports []*model.FileReport, threshold float64, opts ...HTMLWriterOption) (err error) {
	if err := os.MkdirAll(fs.Dir(), 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	var files []*os.File
	defer func() {
		for _, f := range files {
			err = errors.Join(err, f.Close())
		}
	}()

	create := func(path string) (*os.File, error) {
		f, err := os.Create(path) //nolint:gosec // Path is given by the user
		if err != nil {
			return nil, fmt.Errorf("failed to create report file: %w", err)
		}
		files = append(files, f)
		return f, nil
	}

	htmlFile, err := create(fs.HTML)
	if err != nil {
		return err
	}
	jsonFile, err := create(fs.JSON)
	if err != nil {
		return err
	}
	mdFile, err := create(fs.Markdown)
	if err != nil {
		return err
	}

	w := NewMultiWriter(
		NewHTMLWriter(htmlFile, threshold, opts...),
		NewJSONWriter(jsonFile, WithPrettyPrint()),
		NewMarkdownWriter(mdFile, threshold, WithReportLink(filepath.Base(fs.HTML))),
	)
	if _, err := w.Write(reports); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
