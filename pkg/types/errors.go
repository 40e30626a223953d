// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by the reduction pipeline.
var (
	ErrInsufficientScans   = errors.New("insufficient scans for ramp protocol")
	ErrSourceUnavailable   = errors.New("raw source unavailable")
	ErrInvalidParameters   = errors.New("invalid acquisition parameters")
	ErrInvalidIonKey       = errors.New("invalid ion key")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDuplicateDocument   = errors.New("document already exists")
	ErrNotExtracted        = errors.New("ion has not been extracted")
	ErrUnsupportedDocument = errors.New("operation not supported for document kind")

	// ErrDuplicateExtraction and ErrNotSelected are informational: the
	// request was a no-op and nothing was modified.
	ErrDuplicateExtraction = errors.New("already extracted")
	ErrNotSelected         = errors.New("ion not selected")
)

// InsufficientScansError reports that a ramp protocol needs more scans than
// the raw data holds.
type InsufficientScansError struct {
	Required  int
	Available int
}

func (e *InsufficientScansError) Error() string {
	return fmt.Sprintf("ramp requires %d scans but only %d are available", e.Required, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientScans) match.
func (e *InsufficientScansError) Is(target error) bool {
	return target == ErrInsufficientScans
}

// ResampleWarning records that a non-uniform voltage axis was resampled onto
// an evenly spaced grid. It is never returned as a failure.
type ResampleWarning struct {
	// Steps is the number of voltage steps on the axis.
	Steps int `json:"steps" yaml:"steps"`

	// Deviation is the spread between the largest and smallest consecutive
	// voltage deltas of the original axis.
	Deviation float64 `json:"deviation" yaml:"deviation"`
}

func (w *ResampleWarning) Error() string {
	return fmt.Sprintf("voltage axis resampled onto %d evenly spaced steps (delta spread %g V)", w.Steps, w.Deviation)
}

// Informational reports whether err only signals a no-op request.
func Informational(err error) bool {
	return errors.Is(err, ErrDuplicateExtraction) || errors.Is(err, ErrNotSelected)
}

// NewErrorInfo classifies err for storage on an extraction record.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Kind: classify(err), Message: err.Error()}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCanceled
	case errors.Is(err, ErrInsufficientScans):
		return ErrorInsufficientScans
	case errors.Is(err, ErrSourceUnavailable):
		return ErrorSourceUnavailable
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, ErrUnsupportedDocument):
		return ErrorInvalidParameters
	}
	return ErrorIO
}
