// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dispatch runs extraction, combination and chromatogram tasks
// against the document cache and reports every outcome to a status sink.
// Tasks run inline with Run or on their own goroutine with Dispatch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// Cache is the subset of the document cache the dispatcher drives.
type Cache interface {
	RequestExtraction(ctx context.Context, key types.IonKey, mode types.ExtractionMode) (types.ExtractionRecord, error)
	RequestCombination(ctx context.Context, key types.IonKey) (types.ExtractionRecord, error)
	LoadChromatogram(ctx context.Context, docID string) ([]float64, error)
}

// Task is a unit of work. Informational errors (duplicate or unselected
// ions) are not treated as failures. Any other error a task returns is
// reported to the sink once; errors already reported by a Dispatcher method
// are not repeated.
type Task func(ctx context.Context) error

// Reducer combines a raw heatmap into a voltage-resolved heatmap.
type Reducer interface {
	Reduce(ctx context.Context, raw *types.RawHeatmap, params types.AcquisitionParameters) (*types.CombinedHeatmap, error)
}

// reportedError marks an error the dispatcher has already sent to its sink.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

func reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Total returns the number of ions processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any ion failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

func (s *BatchSummary) add(err error) {
	switch {
	case err == nil:
		s.Extracted++
	case types.Informational(err):
		s.Skipped++
	default:
		s.Failed++
	}
}

// Dispatcher executes tasks and forwards their status to a Sink.
type Dispatcher struct {
	cache       Cache
	sink        Sink
	concurrency int
	logger      *slog.Logger

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

// New creates a Dispatcher. A non-positive cfg.Concurrency uses
// types.DefaultConcurrency; a nil logger uses slog.Default().
func New(cache Cache, sink Sink, cfg types.DispatchConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = types.DefaultConcurrency
	}
	return &Dispatcher{cache: cache, sink: sink, concurrency: n, logger: logger}
}

// Run executes task on the calling goroutine.
func (d *Dispatcher) Run(ctx context.Context, task Task) error {
	err := task(ctx)
	d.failed(err)
	return err
}

// Dispatch starts task on its own goroutine and returns immediately. Its
// error, if any, is returned by Wait.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := task(ctx); d.failed(err) {
			d.logger.DebugContext(ctx, "dispatched task failed", "error", err)
			d.mu.Lock()
			d.errs = append(d.errs, err)
			d.mu.Unlock()
		}
	}()
}

// failed reports whether err is a task failure, sending it to the sink
// unless a Dispatcher method already did.
func (d *Dispatcher) failed(err error) bool {
	if err == nil || types.Informational(err) {
		return false
	}
	var done reportedError
	if !errors.As(err, &done) {
		d.sink.Report(fmt.Sprintf("failed  task: %v", err), SeverityError)
	}
	return true
}

// Wait blocks until every dispatched task has returned and reports their
// joined failures. The collected errors are cleared.
func (d *Dispatcher) Wait() error {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	err := errors.Join(d.errs...)
	d.errs = nil
	return err
}

// ExtractIon requests extraction of one ion and reports the outcome.
func (d *Dispatcher) ExtractIon(ctx context.Context, key types.IonKey, mode types.ExtractionMode) (types.ExtractionRecord, error) {
	rec, err := d.cache.RequestExtraction(ctx, key, mode)
	d.report(key, rec, err)
	return rec, reported(err)
}

// ExtractIons extracts keys one after another. A failure never stops the
// batch.
func (d *Dispatcher) ExtractIons(ctx context.Context, keys []types.IonKey, mode types.ExtractionMode) BatchSummary {
	var summary BatchSummary
	for _, key := range keys {
		_, err := d.ExtractIon(ctx, key, mode)
		summary.add(err)
	}
	d.reportSummary(summary)
	return summary
}

// ExtractIonsConcurrent extracts keys with at most the configured number of
// extractions in flight. Keys that normalize to the same ion are extracted
// once; the repeats are counted as skipped.
func (d *Dispatcher) ExtractIonsConcurrent(ctx context.Context, keys []types.IonKey, mode types.ExtractionMode) BatchSummary {
	var (
		summary BatchSummary
		mu      sync.Mutex
		seen    = make(map[types.IonKey]bool, len(keys))
	)

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, key := range keys {
		if norm, err := key.Normalize(); err == nil {
			if seen[norm] {
				d.sink.Report(fmt.Sprintf("skipped %s: repeated in batch", norm), SeverityInfo)
				summary.Skipped++
				continue
			}
			seen[norm] = true
		}

		key := key
		g.Go(func() error {
			_, err := d.ExtractIon(ctx, key, mode)
			mu.Lock()
			summary.add(err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	d.reportSummary(summary)
	return summary
}

// CombineIon re-combines an extracted ion with the document's current
// acquisition parameters.
func (d *Dispatcher) CombineIon(ctx context.Context, key types.IonKey) (types.ExtractionRecord, error) {
	rec, err := d.cache.RequestCombination(ctx, key)
	d.report(key, rec, err)
	return rec, reported(err)
}

// Reduce combines raw with params outside any document and reports the
// outcome, including a resample warning, under key.
func (d *Dispatcher) Reduce(ctx context.Context, r Reducer, key types.IonKey, raw *types.RawHeatmap, params types.AcquisitionParameters) (*types.CombinedHeatmap, error) {
	combined, err := r.Reduce(ctx, raw, params)
	rec := types.ExtractionRecord{Key: key, State: types.StateFailed, Raw: raw}
	if err == nil {
		rec.State = types.StateCombined
		rec.Combined = combined
	}
	d.report(key, rec, err)
	return combined, reported(err)
}

// LoadChromatogram reads the total ion chromatogram of a document.
func (d *Dispatcher) LoadChromatogram(ctx context.Context, docID string) ([]float64, error) {
	chrom, err := d.cache.LoadChromatogram(ctx, docID)
	if err != nil {
		d.sink.Report(fmt.Sprintf("failed  %s chromatogram: %v", docID, err), SeverityError)
		return nil, reported(err)
	}
	d.sink.Report(fmt.Sprintf("loaded chromatogram %s (%d scans)", docID, len(chrom)), SeverityInfo)
	return chrom, nil
}

func (d *Dispatcher) report(key types.IonKey, rec types.ExtractionRecord, err error) {
	if rec.Key.DocumentID != "" {
		key = rec.Key
	}

	switch {
	case errors.Is(err, types.ErrDuplicateExtraction):
		d.sink.Report(fmt.Sprintf("skipped %s: already extracted", key), SeverityInfo)
		return
	case errors.Is(err, types.ErrNotSelected):
		d.sink.Report(fmt.Sprintf("skipped %s: not selected", key), SeverityInfo)
		return
	case err != nil:
		d.sink.Report(fmt.Sprintf("failed  %s: %v", key, err), SeverityError)
		return
	}

	if rec.Combined != nil && rec.Combined.Resample != nil {
		d.sink.Report(fmt.Sprintf("%s: %v", key, rec.Combined.Resample), SeverityWarning)
	}
	switch rec.State {
	case types.StateCombined:
		d.sink.Report(fmt.Sprintf("combined %s (%d voltage steps)", key, len(rec.Combined.VoltageAxis)), SeverityInfo)
	default:
		d.sink.Report(fmt.Sprintf("extracted %s (%d scans)", key, rec.Raw.Scans()), SeverityInfo)
	}
}

func (d *Dispatcher) reportSummary(s BatchSummary) {
	d.sink.Report(fmt.Sprintf("batch summary: %d extracted, %d skipped, %d failed (total: %d)",
		s.Extracted, s.Skipped, s.Failed, s.Total()), SeverityInfo)
}
