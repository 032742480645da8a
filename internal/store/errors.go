package store

import "errors"

var (
	// ErrConnection reports that the feature store could not be opened or reached.
	ErrConnection = errors.New("store connection error")

	// ErrQuery reports a failed or malformed query against an open store.
	ErrQuery = errors.New("store query error")
)
