package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/render"
)

// discardLogger returns a logger that drops everything.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// page returns a w x h page image with a deterministic texture.
func page(w, h, seed int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Pix[y*g.Stride+x] = uint8((x*5 + y*11 + seed*37 + (x*y)%13) % 256)
		}
	}
	return g
}

// fakeRenderer writes pre-registered page images instead of running a
// rasterizer. Pages are keyed by PDF path.
type fakeRenderer struct {
	pages    map[string][]*image.Gray
	err      error
	panicMsg string
	calls    atomic.Int32
}

func (f *fakeRenderer) Render(_ context.Context, pdfPath, outDir string) ([]string, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.MkdirAll(outDir, 0750); err != nil {
		return nil, err
	}

	stem := strings.TrimSuffix(filepath.Base(pdfPath), ".pdf")
	var out []string
	for i, img := range f.pages[pdfPath] {
		path := filepath.Join(outDir, fmt.Sprintf("%s-%d.png", stem, i+1))
		if err := encodePNG(path, img); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}

func encodePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// fixture is a temporary directory layout with a fake renderer.
type fixture struct {
	dirs     Dirs
	renderer *fakeRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	f := &fixture{
		dirs: Dirs{
			OrigPDF: filepath.Join(root, "orig_pdf"),
			RtPDF:   filepath.Join(root, "rt_pdf"),
			Work:    filepath.Join(root, "work"),
			Report:  filepath.Join(root, "report"),
		},
		renderer: &fakeRenderer{pages: map[string][]*image.Gray{}},
	}
	for _, dir := range []string{f.dirs.OrigPDF, f.dirs.RtPDF} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

// addDoc registers a document. A nil page list means the PDF is missing.
func (f *fixture) addDoc(t *testing.T, stem string, orig, rt []*image.Gray) {
	t.Helper()

	for _, side := range []struct {
		dir   string
		pages []*image.Gray
	}{{f.dirs.OrigPDF, orig}, {f.dirs.RtPDF, rt}} {
		if side.pages == nil {
			continue
		}
		path := filepath.Join(side.dir, stem+".pdf")
		if err := os.WriteFile(path, []byte("%PDF-1.7"), 0600); err != nil {
			t.Fatal(err)
		}
		f.renderer.pages[path] = side.pages
	}
}

func (f *fixture) comparator(opts ...ComparatorOption) *Comparator {
	opts = append([]ComparatorOption{WithLogger(discardLogger())}, opts...)
	return NewComparator(f.dirs, f.renderer, opts...)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// TestComparatorCompare tests the per-document comparison.
func TestComparatorCompare(t *testing.T) {
	t.Parallel()

	t.Run("identical pages pass with perfect scores", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		pages := []*image.Gray{page(40, 50, 1), page(40, 50, 2)}
		f.addDoc(t, "report", pages, pages)

		r := f.comparator().Compare(context.Background(), "report.docx")

		if !r.OK {
			t.Fatalf("expected ok, got error %q", r.Error)
		}
		if len(r.Pages) != 2 {
			t.Fatalf("expected 2 pages, got %d", len(r.Pages))
		}
		if r.MinSSIM != 1.0 || r.MeanSSIM != 1.0 {
			t.Errorf("expected min=mean=1.0, got %v/%v", r.MinSSIM, r.MeanSSIM)
		}
		if r.Status(0.98) != model.StatusPass {
			t.Errorf("expected pass, got %s", r.Status(0.98))
		}

		p := r.Pages[1]
		if p.Page != 2 || p.DiffPNG != "images/report/diff-2.png" ||
			p.OrigPNG != "images/report/orig-2.png" || p.RtPNG != "images/report/rt-2.png" {
			t.Errorf("unexpected page result %+v", p)
		}
		for _, ref := range []string{p.DiffPNG, p.OrigPNG, p.RtPNG} {
			if !exists(filepath.Join(f.dirs.Report, filepath.FromSlash(ref))) {
				t.Errorf("expected %s to exist", ref)
			}
		}
		if exists(filepath.Join(f.dirs.Work, "orig_png", "report")) {
			t.Error("expected scratch renders to be removed")
		}
	})

	t.Run("different pages score below one", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.addDoc(t, "doc", []*image.Gray{page(40, 40, 1)}, []*image.Gray{page(40, 40, 9)})

		r := f.comparator().Compare(context.Background(), "doc.docx")
		if !r.OK {
			t.Fatalf("unexpected failure %q", r.Error)
		}
		if r.MinSSIM >= 1.0 || r.MinSSIM < 0 {
			t.Errorf("expected score in [0,1), got %v", r.MinSSIM)
		}
	})

	t.Run("page count drift scores missing pages zero", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		orig := []*image.Gray{page(30, 30, 1), page(30, 30, 2), page(30, 30, 3)}
		rt := []*image.Gray{page(30, 30, 1), page(30, 30, 2)}
		f.addDoc(t, "drift", orig, rt)

		r := f.comparator().Compare(context.Background(), "drift.docx")
		if !r.OK {
			t.Fatalf("unexpected failure %q", r.Error)
		}
		if len(r.Pages) != 3 {
			t.Fatalf("expected 3 pages, got %d", len(r.Pages))
		}
		last := r.Pages[2]
		if last.SSIMScore != 0 || last.RtPNG != "" || last.DiffPNG != "" {
			t.Errorf("unexpected extra page %+v", last)
		}
		if last.OrigPNG != "images/drift/orig-3.png" {
			t.Errorf("expected the present side to be published, got %q", last.OrigPNG)
		}
		if r.MinSSIM != 0 {
			t.Errorf("expected min 0, got %v", r.MinSSIM)
		}
		if want := 2.0 / 3.0; r.MeanSSIM != want {
			t.Errorf("expected mean %v, got %v", want, r.MeanSSIM)
		}
	})

	t.Run("mismatched dimensions are padded", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.addDoc(t, "tall", []*image.Gray{page(30, 40, 4)}, []*image.Gray{page(30, 43, 4)})

		r := f.comparator().Compare(context.Background(), "tall.docx")
		if !r.OK {
			t.Fatalf("unexpected failure %q", r.Error)
		}
		if s := r.Pages[0].SSIMScore; s < 0 || s > 1 {
			t.Errorf("score out of range: %v", s)
		}
	})

	t.Run("decomposed file names are matched", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		pages := []*image.Gray{page(20, 20, 1)}
		// The PDF name uses a combining acute accent, as macOS stores it.
		f.addDoc(t, "cafe\u0301", pages, pages)

		r := f.comparator().Compare(context.Background(), "caf\u00e9.docx")
		if !r.OK {
			t.Fatalf("unexpected failure %q", r.Error)
		}
	})

	t.Run("keeps renders when asked", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		pages := []*image.Gray{page(20, 20, 1)}
		f.addDoc(t, "kept", pages, pages)

		f.comparator(WithKeepRenders(true)).Compare(context.Background(), "kept.docx")
		if !exists(filepath.Join(f.dirs.Work, "rt_png", "kept", "kept-1.png")) {
			t.Error("expected scratch renders to be kept")
		}
	})
}

// pdftoppmRunner is a render.Runner that writes the pages registered for a
// PDF path using pdftoppm's argument order and file naming.
type pdftoppmRunner struct {
	pages map[string][]*image.Gray
}

func (r *pdftoppmRunner) Run(_ context.Context, _ string, args ...string) error {
	pdfPath, prefix := args[len(args)-2], args[len(args)-1]
	for i, img := range r.pages[pdfPath] {
		if err := encodePNG(fmt.Sprintf("%s-%d.png", prefix, i+1), img); err != nil {
			return err
		}
	}
	return nil
}

// TestComparatorKeptRendersDoNotLeak tests that renders kept by an earlier
// run are not counted as pages of the next one.
func TestComparatorKeptRendersDoNotLeak(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	pages := []*image.Gray{page(30, 30, 1), page(30, 30, 2), page(30, 30, 3)}
	f.addDoc(t, "drift", pages, pages)

	runner := &pdftoppmRunner{pages: f.renderer.pages}
	renderer := render.NewPageRenderer(render.WithRunner(runner), render.WithRendererLogger(discardLogger()))
	c := NewComparator(f.dirs, renderer, WithLogger(discardLogger()), WithKeepRenders(true))

	first := c.Compare(context.Background(), "drift.docx")
	if !first.OK || len(first.Pages) != 3 || first.MinSSIM != 1.0 {
		t.Fatalf("unexpected first run: ok=%v pages=%d min=%v error=%q",
			first.OK, len(first.Pages), first.MinSSIM, first.Error)
	}

	runner.pages[filepath.Join(f.dirs.RtPDF, "drift.pdf")] = pages[:2]

	second := c.Compare(context.Background(), "drift.docx")
	if !second.OK {
		t.Fatalf("unexpected failure %q", second.Error)
	}
	if len(second.Pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(second.Pages))
	}
	if s := second.Pages[2].SSIMScore; s != 0 {
		t.Errorf("expected the dropped page to score 0, got %v", s)
	}
	if second.MinSSIM != 0 {
		t.Errorf("expected min 0, got %v", second.MinSSIM)
	}
	if exists(filepath.Join(f.dirs.Work, "rt_png", "drift", "drift-3.png")) {
		t.Error("expected the stale page render to be gone")
	}
}

// TestComparatorFailures tests how failures are recorded.
func TestComparatorFailures(t *testing.T) {
	t.Parallel()

	pages := []*image.Gray{page(20, 20, 1)}

	tests := []struct {
		name      string
		setup     func(t *testing.T, f *fixture)
		wantError string
		wantKind  model.ErrorKind
	}{
		{
			name:      "original PDF missing",
			setup:     func(t *testing.T, f *fixture) { f.addDoc(t, "doc", nil, pages) },
			wantError: "original PDF missing (document conversion likely failed)",
			wantKind:  model.ErrorKindMissingArtifact,
		},
		{
			name:      "roundtrip PDF missing",
			setup:     func(t *testing.T, f *fixture) { f.addDoc(t, "doc", pages, nil) },
			wantError: "roundtrip PDF missing (document conversion likely failed)",
			wantKind:  model.ErrorKindMissingArtifact,
		},
		{
			name: "renderer fails",
			setup: func(t *testing.T, f *fixture) {
				f.addDoc(t, "doc", pages, pages)
				f.renderer.err = &render.ToolError{Tool: "pdftoppm", Err: errors.New("exit status 1")}
			},
			wantError: "pdftoppm failed: exit status 1",
			wantKind:  model.ErrorKindExternalTool,
		},
		{
			name:      "original renders no pages",
			setup:     func(t *testing.T, f *fixture) { f.addDoc(t, "doc", []*image.Gray{}, pages) },
			wantError: "original PDF produced no pages",
			wantKind:  model.ErrorKindExternalTool,
		},
		{
			name:      "roundtrip renders no pages",
			setup:     func(t *testing.T, f *fixture) { f.addDoc(t, "doc", pages, []*image.Gray{}) },
			wantError: "roundtrip PDF produced no pages",
			wantKind:  model.ErrorKindExternalTool,
		},
		{
			name: "renderer panics",
			setup: func(t *testing.T, f *fixture) {
				f.addDoc(t, "doc", pages, pages)
				f.renderer.panicMsg = "boom"
			},
			wantError: "panic: boom",
			wantKind:  model.ErrorKindUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.setup(t, f)

			r := f.comparator().Compare(context.Background(), "doc.docx")
			if r.OK {
				t.Fatal("expected failure")
			}
			if r.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, r.Error)
			}
			if r.ErrorKind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, r.ErrorKind)
			}
			if len(r.Pages) != 0 {
				t.Errorf("expected no pages, got %d", len(r.Pages))
			}
		})
	}

	t.Run("page too small for the window", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		tiny := []*image.Gray{page(3, 3, 1)}
		f.addDoc(t, "tiny", tiny, tiny)

		r := f.comparator().Compare(context.Background(), "tiny.docx")
		if r.OK || !strings.HasPrefix(r.Error, "page 1: ") {
			t.Fatalf("expected a page failure, got %+v", r)
		}
		if exists(filepath.Join(f.dirs.ImageDir(), "tiny")) {
			t.Error("expected images of a failed document to be removed")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.addDoc(t, "doc", pages, pages)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		r := f.comparator().Compare(ctx, "doc.docx")
		if r.OK || r.Error != "cancelled" {
			t.Errorf("expected cancelled, got %+v", r)
		}
	})
}

// TestStem tests document stem extraction.
func TestStem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, want string
	}{
		{"report.docx", "report"},
		{"archive.tar.docx", "archive.tar"},
		{"noext", "noext"},
		{"../escape.docx", "escape"},
		{"cafe\u0301.docx", "caf\u00e9"},
	}

	for _, tt := range tests {
		if got := Stem(tt.name); got != tt.want {
			t.Errorf("Stem(%q) = %q, expected %q", tt.name, got, tt.want)
		}
	}
}
