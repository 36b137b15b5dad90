package engine

import (
	"context"
	"sync"
	"time"
)

// BatchOptions controls a batch validation run.
type BatchOptions struct {
	// Workers caps concurrent validations. Zero means 4.
	Workers int

	// Target is the compilation target every file is checked against.
	// Empty uses the engine default.
	Target string
}

// BatchItem is one file's outcome from a batch run.
type BatchItem struct {
	// Path is the plan file.
	Path string `json:"path"`

	// Report is the validation outcome, nil when Err is set.
	Report *ValidationReport `json:"report,omitempty"`

	// Err is the engine fault that stopped this file, nil when the
	// file was judged. An invalid plan is a judged outcome and lands
	// in Report.
	Err error `json:"-"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total    int           `json:"total"`
	Valid    int           `json:"valid"`
	Invalid  int           `json:"invalid"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration_ns"`
}

// ValidateBatch validates many plan files concurrently. Results keep
// the input order regardless of completion order; per-file faults are
// in the items.
func (e *Engine) ValidateBatch(ctx context.Context, paths []string, opts BatchOptions) ([]BatchItem, *BatchSummary) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	if len(paths) < workers {
		workers = len(paths)
	}

	start := time.Now()
	items := make([]BatchItem, len(paths))

	type job struct {
		index int
		path  string
	}
	queue := make(chan job, len(paths))
	for i, path := range paths {
		queue <- job{index: i, path: path}
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				select {
				case <-ctx.Done():
					items[j.index] = BatchItem{Path: j.path, Err: ctx.Err()}
					continue
				default:
				}

				report, err := e.ValidateFile(ctx, j.path, opts.Target)
				items[j.index] = BatchItem{Path: j.path, Report: report, Err: err}
			}
		}()
	}
	wg.Wait()

	summary := &BatchSummary{
		Total:    len(items),
		Duration: time.Since(start),
	}
	for _, item := range items {
		switch {
		case item.Err != nil:
			summary.Failed++
		case item.Report.Valid():
			summary.Valid++
		default:
			summary.Invalid++
		}
	}

	e.logger.Info().
		Int("total", summary.Total).
		Int("valid", summary.Valid).
		Int("invalid", summary.Invalid).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Batch validation complete")
	return items, summary
}
