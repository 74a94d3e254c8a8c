package domain

import "errors"

var (
	// ErrValidation signals a malformed input record (e.g. a category reference missing id or name).
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrTransient signals a retryable store failure (conflict or connectivity).
	ErrTransient = errors.New("transient store error")
	// ErrCatalogLoad signals a missing or unparsable catalog snapshot.
	ErrCatalogLoad = errors.New("catalog load failed")
	// ErrUnknownKind signals an unknown category kind or collection name.
	ErrUnknownKind = errors.New("unknown category kind")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
