package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nao1215/pagediff/internal/imaging"
	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/render"
)

// TestClassify tests the mapping from errors to report kinds.
func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want model.ErrorKind
	}{
		{"nil", nil, ""},
		{"upstream", fmt.Errorf("%w: boom", ErrUpstreamFailed), model.ErrorKindUpstream},
		{"missing PDF", fmt.Errorf("original %w", ErrMissingPDF), model.ErrorKindMissingArtifact},
		{"tool failure", &render.ToolError{Tool: "pdftoppm", Err: errors.New("exit status 99")}, model.ErrorKindExternalTool},
		{"no pages", fmt.Errorf("original PDF %w", render.ErrNoPages), model.ErrorKindExternalTool},
		{"timeout", render.ErrTimeout, model.ErrorKindExternalTool},
		{"too large", fmt.Errorf("page 3: %w", imaging.ErrImageTooLarge), model.ErrorKindResourceExhausted},
		{"cancelled", ErrCancelled, model.ErrorKindUnexpected},
		{"anything else", errors.New("disk full"), model.ErrorKindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
