// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package document

import "errors"

var (
	// ErrRecordNotFound is returned when no extraction record exists for a key.
	ErrRecordNotFound = errors.New("extraction record not found")

	// ErrDocumentReopened is returned when a document was removed and opened
	// again while a request on one of its ions was running. The result of
	// that request is discarded.
	ErrDocumentReopened = errors.New("document was reopened")
)
