package domain

import "errors"

// Batch level failures. Row level problems during commit and rollback are
// reported as per-row outcomes, never as errors.
var (
	// ErrInvalidFormat is returned when a file's byte signature does not match
	// its declared extension, or a delimited file contains binary data.
	ErrInvalidFormat = errors.New("invalid file format")

	// ErrTooLarge is returned when an upload exceeds the configured byte ceiling.
	ErrTooLarge = errors.New("file exceeds size limit")

	// ErrTooManyRows is returned when an upload exceeds the configured row ceiling.
	ErrTooManyRows = errors.New("file exceeds row limit")

	// ErrInvalidState is returned when an operation is requested against a
	// batch whose status does not permit it.
	ErrInvalidState = errors.New("batch is not in a valid state for this operation")

	// ErrNotFound is returned for unknown batches, rows, customers, or
	// templates, including records owned by a different tenant.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRolledBack is returned on a duplicate rollback attempt.
	ErrAlreadyRolledBack = errors.New("batch already rolled back")

	// ErrDuplicateTemplate is returned when a tenant already owns a mapping
	// template with the requested name.
	ErrDuplicateTemplate = errors.New("template name already in use")
)
