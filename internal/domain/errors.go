package domain

import "errors"

var (
	// ErrValidation marks an input item that is skipped (missing shipmentId or detailType).
	ErrValidation = errors.New("validation error")
	// ErrUpstreamLookup marks a missing master plan or plan step; reconciliation is skipped.
	ErrUpstreamLookup = errors.New("upstream lookup error")
	ErrStoreWrite     = errors.New("store write error")
	ErrChannelPublish = errors.New("channel publish error")
	ErrNotFound       = errors.New("not found")
	// ErrConflict is returned by conditional writes when the record version moved.
	ErrConflict = errors.New("version conflict")
)
