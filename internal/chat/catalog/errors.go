package catalog

import "errors"

var (
	// ErrNotFound - file is absent in catalog.
	ErrNotFound = errors.New("catalog: not found")

	// ErrInvalidName - declared file name is not acceptable as a storage name.
	ErrInvalidName = errors.New("invalid file name")

	// ErrSizeMismatch - stored bytes differ from the declared size.
	ErrSizeMismatch = errors.New("catalog: size mismatch")

	// ErrUploadClosed - upload was already committed or aborted.
	ErrUploadClosed = errors.New("catalog: upload is closed")
)
