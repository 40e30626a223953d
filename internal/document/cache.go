// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// RawReader reads drift-time data from the raw file backing a document.
// Implementations report a missing file with an error matching
// types.ErrSourceUnavailable.
type RawReader interface {
	DriftTimeMatrix(ctx context.Context, path string, mzStart, mzEnd float64) (*types.RawHeatmap, error)
	Chromatogram(ctx context.Context, path string) ([]float64, error)
	Mobiligram(ctx context.Context, path string, mzStart, mzEnd float64) ([]float64, error)
}

// Reducer combines a raw heatmap into a voltage-resolved heatmap.
type Reducer interface {
	Reduce(ctx context.Context, raw *types.RawHeatmap, params types.AcquisitionParameters) (*types.CombinedHeatmap, error)
}

// Selector reports whether the caller has marked an ion as selected.
type Selector interface {
	IsSelected(key types.IonKey) bool
}

// SelectionSet is a Selector backed by a set of keys. It is safe for
// concurrent use.
type SelectionSet struct {
	mu   sync.RWMutex
	keys map[types.IonKey]struct{}
}

// NewSelectionSet creates a SelectionSet holding keys.
func NewSelectionSet(keys ...types.IonKey) *SelectionSet {
	s := &SelectionSet{keys: make(map[types.IonKey]struct{})}
	for _, k := range keys {
		s.Select(k)
	}
	return s
}

// Select marks key as selected. Invalid keys are ignored.
func (s *SelectionSet) Select(key types.IonKey) {
	key, err := key.Normalize()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

// Deselect clears the selection of key.
func (s *SelectionSet) Deselect(key types.IonKey) {
	key, err := key.Normalize()
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
}

// IsSelected implements Selector.
func (s *SelectionSet) IsSelected(key types.IonKey) bool {
	key, err := key.Normalize()
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok
}

// Cache runs extractions and combinations against a Store. Requests for
// the same key are serialised; requests for different keys run
// concurrently.
type Cache struct {
	store    *Store
	reader   RawReader
	reducer  Reducer
	selector Selector
	logger   *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithSelector sets the selector consulted by types.ModeSelected requests.
func WithSelector(sel Selector) Option {
	return func(c *Cache) { c.selector = sel }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// NewCache creates a Cache over store.
func NewCache(store *Store, reader RawReader, reducer Reducer, opts ...Option) *Cache {
	c := &Cache{store: store, reader: reader, reducer: reducer}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Store returns the underlying document store.
func (c *Cache) Store() *Store {
	return c.store
}

// RequestExtraction extracts the raw drift-time matrix for key and, for CIU
// documents, combines it into a voltage-resolved heatmap.
//
// Under types.ModeNew a key that already holds a result is left untouched
// and types.ErrDuplicateExtraction is returned. Under types.ModeSelected
// keys the selector does not report as selected return types.ErrNotSelected.
// types.ModeAll always re-runs. Both informational errors leave the record
// unmodified. An unknown mode is rejected before any record is created.
//
// On failure the record moves to types.StateFailed with its error set, and
// the previous combined heatmap is kept. The returned record is the state
// committed by this call. When the document is removed or reopened while the
// request runs, its result is discarded and ErrDocumentReopened or
// types.ErrDocumentNotFound is returned.
func (c *Cache) RequestExtraction(ctx context.Context, key types.IonKey, mode types.ExtractionMode) (types.ExtractionRecord, error) {
	switch mode {
	case types.ModeNew, types.ModeSelected, types.ModeAll:
	default:
		return types.ExtractionRecord{}, fmt.Errorf("%w: unknown extraction mode %q", types.ErrInvalidParameters, mode)
	}
	key, err := key.Normalize()
	if err != nil {
		return types.ExtractionRecord{}, err
	}
	if _, err := c.store.Get(key.DocumentID); err != nil {
		return types.ExtractionRecord{}, err
	}

	unlock := c.store.lock(key)
	defer unlock()

	// Another request may have finished while this one waited.
	prior, _, gen, err := c.store.getOrCreate(key)
	if err != nil {
		return types.ExtractionRecord{}, err
	}

	switch mode {
	case types.ModeNew:
		if prior.State.Done() {
			return prior, fmt.Errorf("%s: %w", key, types.ErrDuplicateExtraction)
		}
	case types.ModeSelected:
		if c.selector == nil || !c.selector.IsSelected(key) {
			return prior, fmt.Errorf("%s: %w", key, types.ErrNotSelected)
		}
	}

	doc, err := c.store.Get(key.DocumentID)
	if err != nil {
		return prior, err
	}

	c.store.mark(key, gen, types.StateExtracting)
	c.logger.DebugContext(ctx, "extracting ion", "key", key.String(), "mode", mode)

	raw, err := c.extract(ctx, doc, key)
	if err != nil {
		return c.fail(key, gen, prior, nil, fmt.Errorf("extracting %s: %w", key, err))
	}

	switch doc.Kind {
	case types.DocumentMobility:
		rec := types.ExtractionRecord{Key: key, State: types.StateExtracted, Raw: raw}
		return rec, c.commit(ctx, rec, gen)
	case types.DocumentCIU:
		return c.combine(ctx, key, gen, prior, raw, doc.Parameters)
	}
	return c.fail(key, gen, prior, raw, fmt.Errorf("%w: %q", types.ErrUnsupportedDocument, doc.Kind))
}

// RequestCombination re-combines the raw heatmap already extracted for key
// using the document's current acquisition parameters. It returns
// types.ErrNotExtracted when no raw heatmap is available.
func (c *Cache) RequestCombination(ctx context.Context, key types.IonKey) (types.ExtractionRecord, error) {
	key, err := key.Normalize()
	if err != nil {
		return types.ExtractionRecord{}, err
	}

	unlock := c.store.lock(key)
	defer unlock()

	prior, gen, err := c.store.snapshot(key)
	if errors.Is(err, ErrRecordNotFound) {
		return types.ExtractionRecord{}, fmt.Errorf("%s: %w", key, types.ErrNotExtracted)
	}
	if err != nil {
		return types.ExtractionRecord{}, err
	}
	if prior.Raw == nil {
		return prior, fmt.Errorf("%s: %w", key, types.ErrNotExtracted)
	}

	doc, err := c.store.Get(key.DocumentID)
	if err != nil {
		return prior, err
	}
	if doc.Kind != types.DocumentCIU {
		return prior, fmt.Errorf("combining %s: %w: %q", key, types.ErrUnsupportedDocument, doc.Kind)
	}

	return c.combine(ctx, key, gen, prior, prior.Raw, doc.Parameters)
}

// Mobiligram reads the drift-time profile of key straight from the raw
// file, without touching the record.
func (c *Cache) Mobiligram(ctx context.Context, key types.IonKey) ([]float64, error) {
	key, err := key.Normalize()
	if err != nil {
		return nil, err
	}
	doc, err := c.store.Get(key.DocumentID)
	if err != nil {
		return nil, err
	}
	return c.reader.Mobiligram(ctx, doc.SourcePath, key.MZStart, key.MZEnd)
}

// LoadChromatogram reads the document's total ion chromatogram and stores
// it on the document.
func (c *Cache) LoadChromatogram(ctx context.Context, docID string) ([]float64, error) {
	doc, err := c.store.Get(docID)
	if err != nil {
		return nil, err
	}
	if doc.SourcePath == "" {
		return nil, fmt.Errorf("%w: document %s has no raw file", types.ErrSourceUnavailable, docID)
	}
	chrom, err := c.reader.Chromatogram(ctx, doc.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("reading chromatogram of %s: %w", docID, err)
	}
	if err := c.store.SetChromatogram(docID, chrom); err != nil {
		return nil, err
	}
	return chrom, nil
}

func (c *Cache) extract(ctx context.Context, doc types.Document, key types.IonKey) (*types.RawHeatmap, error) {
	if doc.SourcePath == "" {
		return nil, fmt.Errorf("%w: document %s has no raw file", types.ErrSourceUnavailable, doc.ID)
	}
	return c.reader.DriftTimeMatrix(ctx, doc.SourcePath, key.MZStart, key.MZEnd)
}

// combine reduces raw and commits the result. A reduction failure still
// records raw, so the ion can be re-combined without re-reading the file.
func (c *Cache) combine(ctx context.Context, key types.IonKey, gen uint64, prior types.ExtractionRecord, raw *types.RawHeatmap, params types.AcquisitionParameters) (types.ExtractionRecord, error) {
	c.store.mark(key, gen, types.StateCombinationPending)

	combined, err := c.reducer.Reduce(ctx, raw, params)
	if err != nil {
		return c.fail(key, gen, prior, raw, fmt.Errorf("combining %s: %w", key, err))
	}

	rec := types.ExtractionRecord{Key: key, State: types.StateCombined, Raw: raw, Combined: combined}
	return rec, c.commit(ctx, rec, gen)
}

// fail commits a failed record that keeps the prior heatmaps. A non-nil raw
// replaces the prior raw heatmap.
func (c *Cache) fail(key types.IonKey, gen uint64, prior types.ExtractionRecord, raw *types.RawHeatmap, cause error) (types.ExtractionRecord, error) {
	rec := prior
	rec.Key = key
	rec.State = types.StateFailed
	rec.Error = types.NewErrorInfo(cause)
	if raw != nil {
		rec.Raw = raw
	}
	if err := c.store.commit(rec, gen); err != nil {
		return rec, errors.Join(cause, err)
	}
	c.logger.Debug("extraction failed", "key", key.String(), "kind", rec.Error.Kind, "error", cause)
	return rec, cause
}

func (c *Cache) commit(ctx context.Context, rec types.ExtractionRecord, gen uint64) error {
	if err := c.store.commit(rec, gen); err != nil {
		return fmt.Errorf("committing %s: %w", rec.Key, err)
	}
	c.logger.DebugContext(ctx, "record committed", "key", rec.Key.String(), "state", rec.State)
	return nil
}
