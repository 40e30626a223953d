// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package document holds open documents and their extraction records, and
// gates extraction requests so that each ion is extracted at most once per
// request policy.
//
// Store is the shared in-memory document model. Readers always receive
// copies; heatmaps referenced by a record are immutable once committed, so
// copies share them. Cache serialises work on each IonKey and is the only
// writer of populated records.
package document

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/ciu-engine/pkg/types"
)

// Store maps document ids to documents and their extraction records. It is
// safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]*entry
	gen   uint64
	locks map[types.IonKey]*sync.Mutex
}

// entry is one open document. gen changes every time a document id is
// (re)opened, so work started against a removed document cannot commit into
// its successor.
type entry struct {
	doc     types.Document
	gen     uint64
	records map[types.IonKey]types.ExtractionRecord
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		docs:  make(map[string]*entry),
		locks: make(map[types.IonKey]*sync.Mutex),
	}
}

// Add registers a document. An empty ID is replaced by a new UUID, an empty
// Kind by types.DocumentCIU, and a zero CreatedAt by the current time. The
// stored document is returned.
func (s *Store) Add(doc types.Document) (types.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Kind == "" {
		doc.Kind = types.DocumentCIU
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc = cloneDocument(doc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return types.Document{}, fmt.Errorf("%w: %s", types.ErrDuplicateDocument, doc.ID)
	}
	s.gen++
	s.docs[doc.ID] = &entry{doc: doc, gen: s.gen, records: make(map[types.IonKey]types.ExtractionRecord)}
	return cloneDocument(doc), nil
}

// Restore replaces any document with the same id by doc and records. It is
// used to re-open a persisted document.
func (s *Store) Restore(doc types.Document, records []types.ExtractionRecord) error {
	if doc.ID == "" {
		return fmt.Errorf("restoring document: empty id")
	}
	e := &entry{doc: cloneDocument(doc), records: make(map[types.IonKey]types.ExtractionRecord, len(records))}
	for _, rec := range records {
		key, err := rec.Key.Normalize()
		if err != nil {
			return err
		}
		if key.DocumentID != doc.ID {
			return fmt.Errorf("%w: record %s belongs to another document", types.ErrInvalidIonKey, key)
		}
		rec.Key = key
		e.records[key] = rec
	}

	s.mu.Lock()
	s.gen++
	e.gen = s.gen
	s.docs[doc.ID] = e
	s.mu.Unlock()
	return nil
}

// Remove deletes a document and all of its records. Per-key locks are kept:
// a request still running against the removed document holds one, and a
// document reopened under the same id must wait for it.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	delete(s.docs, id)
	return nil
}

// Get returns a copy of the document.
func (s *Store) Get(id string) (types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[id]
	if !ok {
		return types.Document{}, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	return cloneDocument(e.doc), nil
}

// List returns copies of all documents ordered by creation time.
func (s *Store) List() []types.Document {
	s.mu.RLock()
	out := make([]types.Document, 0, len(s.docs))
	for _, e := range s.docs {
		out = append(out, cloneDocument(e.doc))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// SetParameters replaces the acquisition parameters of a document. Running
// extractions keep the parameters they started with.
func (s *Store) SetParameters(id string, params types.AcquisitionParameters) error {
	return s.update(id, func(doc *types.Document) {
		doc.Parameters = cloneParameters(params)
	})
}

// SetChromatogram stores the document-level total ion chromatogram.
func (s *Store) SetChromatogram(id string, chrom []float64) error {
	return s.update(id, func(doc *types.Document) {
		doc.Chromatogram = slices.Clone(chrom)
	})
}

func (s *Store) update(id string, fn func(doc *types.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	fn(&e.doc)
	return nil
}

// GetOrCreate returns the record for key, creating it in the not-extracted
// state when absent. The created flag reports whether this call created it.
// It is the single authority for duplicate detection: concurrent callers
// with the same key observe one record.
func (s *Store) GetOrCreate(key types.IonKey) (rec types.ExtractionRecord, created bool, err error) {
	key, err = key.Normalize()
	if err != nil {
		return types.ExtractionRecord{}, false, err
	}
	rec, created, _, err = s.getOrCreate(key)
	return rec, created, err
}

// getOrCreate is GetOrCreate for a normalized key. It also returns the
// generation of the document the record belongs to.
func (s *Store) getOrCreate(key types.IonKey) (types.ExtractionRecord, bool, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[key.DocumentID]
	if !ok {
		return types.ExtractionRecord{}, false, 0, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, key.DocumentID)
	}
	if rec, ok := e.records[key]; ok {
		return rec, false, e.gen, nil
	}
	rec := types.ExtractionRecord{Key: key, State: types.StateNotExtracted}
	e.records[key] = rec
	return rec, true, e.gen, nil
}

// Record returns a copy of the record for key.
func (s *Store) Record(key types.IonKey) (types.ExtractionRecord, error) {
	key, err := key.Normalize()
	if err != nil {
		return types.ExtractionRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[key.DocumentID]
	if !ok {
		return types.ExtractionRecord{}, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, key.DocumentID)
	}
	rec, ok := e.records[key]
	if !ok {
		return types.ExtractionRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	return rec, nil
}

// Records returns copies of all records of a document ordered by m/z.
func (s *Store) Records(docID string) ([]types.ExtractionRecord, error) {
	s.mu.RLock()
	e, ok := s.docs[docID]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, docID)
	}
	out := make([]types.ExtractionRecord, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b types.ExtractionRecord) int {
		if c := cmp.Compare(a.Key.MZStart, b.Key.MZStart); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.MZEnd, b.Key.MZEnd)
	})
	return out, nil
}

// snapshot returns the record for key with the generation of its document.
func (s *Store) snapshot(key types.IonKey) (types.ExtractionRecord, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[key.DocumentID]
	if !ok {
		return types.ExtractionRecord{}, 0, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, key.DocumentID)
	}
	rec, ok := e.records[key]
	if !ok {
		return types.ExtractionRecord{}, e.gen, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	return rec, e.gen, nil
}

// current returns the open entry for id when it still has generation gen.
// s.mu must be held.
func (s *Store) current(id string, gen uint64) (*entry, error) {
	e, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	if e.gen != gen {
		return nil, fmt.Errorf("%w: %s", ErrDocumentReopened, id)
	}
	return e, nil
}

// lock acquires the per-key mutex and returns its release function. key
// must be normalized.
func (s *Store) lock(key types.IonKey) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// mark moves the state of an existing record without touching its data.
// Nothing happens when the document is no longer at generation gen.
func (s *Store) mark(key types.IonKey, gen uint64, state types.ExtractionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.current(key.DocumentID, gen)
	if err != nil {
		return
	}
	if rec, ok := e.records[key]; ok {
		rec.State = state
		e.records[key] = rec
	}
}

// commit replaces a record. It is the only place a populated record enters
// the store, and it refuses documents that were removed or reopened since
// generation gen.
func (s *Store) commit(rec types.ExtractionRecord, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.current(rec.Key.DocumentID, gen)
	if err != nil {
		return err
	}
	e.records[rec.Key] = rec
	return nil
}

func cloneParameters(p types.AcquisitionParameters) types.AcquisitionParameters {
	p.UserDefinedTable = slices.Clone(p.UserDefinedTable)
	return p
}

func cloneDocument(doc types.Document) types.Document {
	doc.Parameters = cloneParameters(doc.Parameters)
	doc.Chromatogram = slices.Clone(doc.Chromatogram)
	return doc
}
