// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// DocumentKind distinguishes the experiment types a document can hold.
type DocumentKind string

const (
	// DocumentCIU is a ramped collision-voltage experiment. Extraction is
	// followed by scan-to-voltage combination.
	DocumentCIU DocumentKind = "ciu"

	// DocumentMobility is a single-voltage IM-MS acquisition. Extraction
	// stops after the raw drift-time matrix is read.
	DocumentMobility DocumentKind = "mobility"
)

// ParseDocumentKind converts a kind name into a DocumentKind. An empty string
// selects DocumentCIU.
func ParseDocumentKind(s string) (DocumentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ciu", "origami":
		return DocumentCIU, nil
	case "mobility", "imms":
		return DocumentMobility, nil
	}
	return "", fmt.Errorf("%w: unknown document kind %q", ErrInvalidParameters, s)
}

// Document holds the metadata of one open data file. Its extraction records
// live in the document store.
type Document struct {
	// ID is a UUID assigned when the document is added to a store.
	ID string `json:"id" yaml:"id"`

	Title string `json:"title" yaml:"title"`

	// SourcePath is the raw file backing the document.
	SourcePath string `json:"source_path" yaml:"source_path"`

	Kind DocumentKind `json:"kind" yaml:"kind"`

	Parameters AcquisitionParameters `json:"parameters" yaml:"parameters"`

	// Chromatogram is the document-level total ion chromatogram, loaded on
	// demand from the raw file.
	Chromatogram []float64 `json:"chromatogram,omitempty" yaml:"chromatogram,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// IonKey identifies an extraction target within a document.
type IonKey struct {
	DocumentID string  `json:"document_id" yaml:"document_id"`
	MZStart    float64 `json:"mz_start" yaml:"mz_start"`
	MZEnd      float64 `json:"mz_end" yaml:"mz_end"`
}

// Normalize returns the key with MZStart < MZEnd, swapping reversed bounds.
// Equal bounds and empty document ids are rejected.
func (k IonKey) Normalize() (IonKey, error) {
	if k.DocumentID == "" {
		return IonKey{}, fmt.Errorf("%w: empty document id", ErrInvalidIonKey)
	}
	if k.MZStart == k.MZEnd {
		return IonKey{}, fmt.Errorf("%w: empty m/z window %g", ErrInvalidIonKey, k.MZStart)
	}
	if k.MZStart > k.MZEnd {
		k.MZStart, k.MZEnd = k.MZEnd, k.MZStart
	}
	return k, nil
}

// String formats the key as "doc:start-end".
func (k IonKey) String() string {
	return fmt.Sprintf("%s:%.2f-%.2f", k.DocumentID, k.MZStart, k.MZEnd)
}

// ExtractionState tracks the progress of one ion through extraction and
// combination.
type ExtractionState string

const (
	StateNotExtracted       ExtractionState = "not_extracted"
	StateExtracting         ExtractionState = "extracting"
	StateExtracted          ExtractionState = "extracted"
	StateCombinationPending ExtractionState = "combination_pending"
	StateCombined           ExtractionState = "combined"
	StateFailed             ExtractionState = "failed"
)

// Done reports whether the state holds a usable extraction result.
func (s ExtractionState) Done() bool {
	return s == StateExtracted || s == StateCombined
}

// ErrorKind classifies the failure stored on an extraction record.
type ErrorKind string

const (
	ErrorInsufficientScans ErrorKind = "insufficient_scans"
	ErrorSourceUnavailable ErrorKind = "source_unavailable"
	ErrorInvalidParameters ErrorKind = "invalid_parameters"
	ErrorCanceled          ErrorKind = "canceled"
	ErrorIO                ErrorKind = "io"
)

// ErrorInfo is the failure recorded on an extraction record.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

// ExtractionRecord is the cached result for one IonKey. Raw and Combined are
// replaced wholesale and never modified in place, so a record copy can share
// them with the store.
type ExtractionRecord struct {
	Key      IonKey           `json:"key" yaml:"key"`
	State    ExtractionState  `json:"state" yaml:"state"`
	Raw      *RawHeatmap      `json:"raw,omitempty" yaml:"raw,omitempty"`
	Combined *CombinedHeatmap `json:"combined,omitempty" yaml:"combined,omitempty"`
	Error    *ErrorInfo       `json:"error,omitempty" yaml:"error,omitempty"`
}

// ExtractionMode selects how an extraction request treats existing results.
type ExtractionMode string

const (
	// ModeNew extracts only keys without a result.
	ModeNew ExtractionMode = "new"

	// ModeSelected re-extracts keys the caller has marked as selected.
	ModeSelected ExtractionMode = "selected"

	// ModeAll always re-extracts, overwriting prior results.
	ModeAll ExtractionMode = "all"
)

// ParseExtractionMode converts a mode name into an ExtractionMode. An empty
// string selects ModeNew.
func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "new":
		return ModeNew, nil
	case "selected":
		return ModeSelected, nil
	case "all":
		return ModeAll, nil
	}
	return "", fmt.Errorf("%w: unknown extraction mode %q", ErrInvalidParameters, s)
}
