package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/nao1215/pagediff/internal/model"
	"golang.org/x/sync/errgroup"
)

// DocumentComparator compares a single document. *Comparator implements it.
type DocumentComparator interface {
	Compare(ctx context.Context, name string) *model.FileReport
}

// DefaultProgressInterval is how many documents pass between progress lines.
const DefaultProgressInterval = 50

// BatchProcessor compares every document of a manifest with bounded
// concurrency.
//
// Design decision: Results are written to the slot of their manifest index,
// never appended in completion order, so the output is identical for any
// worker count.
type BatchProcessor struct {
	// comparator handles one document at a time.
	comparator DocumentComparator

	// concurrency is the maximum number of documents compared at once.
	concurrency int

	// progressInterval controls how often progress is logged.
	progressInterval int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent comparisons.
// Default is 4 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithProgressInterval sets how many documents pass between progress lines.
func WithProgressInterval(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.progressInterval = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(comparator DocumentComparator, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		comparator:       comparator,
		concurrency:      4,
		progressInterval: DefaultProgressInterval,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// Run produces one FileReport per manifest entry, in manifest order.
//
// Entries the round-trip tool failed on are reported as upstream failures
// without touching any file. The others are compared concurrently.
//
// When ctx is cancelled, documents already being compared finish (or fail
// as cancelled) and the rest are reported as cancelled. The returned error
// is ctx.Err() in that case; the reports are complete either way.
func (bp *BatchProcessor) Run(ctx context.Context, entries []model.ManifestEntry) ([]*model.FileReport, error) {
	reports := make([]*model.FileReport, len(entries))

	var pending []int
	for i, e := range entries {
		if e.OK {
			pending = append(pending, i)
			continue
		}
		reports[i] = upstreamReport(e)
	}

	bp.logger.Info("starting comparison",
		"documents", len(entries),
		"upstream_failures", len(entries)-len(pending),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	var done atomic.Int64
	total := len(pending)

	for _, idx := range pending {
		name := entries[idx].Name

		// g.Go blocks while the pool is full, so this check sees
		// cancellations that happen during the run.
		if ctx.Err() != nil {
			reports[idx] = cancelledReport(name)
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				reports[idx] = cancelledReport(name)
			} else {
				reports[idx] = bp.compare(ctx, name)
			}

			n := done.Add(1)
			if n%int64(bp.progressInterval) == 0 || n == int64(total) {
				bp.logger.Info("progress", "compared", fmt.Sprintf("[%d/%d]", n, total))
			}
			return nil
		})
	}

	// Workers never return errors; failures live in the reports.
	_ = g.Wait() //nolint:errcheck // Always nil

	bp.logger.Info("comparison complete",
		"documents", len(entries),
		"elapsed", time.Since(startTime).Round(time.Millisecond),
	)

	return reports, ctx.Err()
}

// compare calls the comparator and turns anything that escapes it into a
// failed report.
func (bp *BatchProcessor) compare(ctx context.Context, name string) (report *model.FileReport) {
	defer func() {
		if r := recover(); r != nil {
			bp.logger.Error("panic escaped document comparison",
				"document", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			report = model.NewFailedReport(name, model.ErrorKindUnexpected, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	report = bp.comparator.Compare(ctx, name)
	if report == nil {
		report = model.NewFailedReport(name, model.ErrorKindUnexpected, nil)
	}
	return report
}

func upstreamReport(e model.ManifestEntry) *model.FileReport {
	err := ErrUpstreamFailed
	if e.Error != "" {
		err = fmt.Errorf("%w: %s", ErrUpstreamFailed, e.Error)
	}
	return model.NewFailedReport(e.Name, Classify(err), err)
}

func cancelledReport(name string) *model.FileReport {
	return model.NewFailedReport(name, Classify(ErrCancelled), ErrCancelled)
}
