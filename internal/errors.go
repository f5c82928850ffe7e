package stash

import "errors"

// Sentinel errors for the cache domain.
var (
	ErrNotFound         = errors.New("not found")
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidJSON      = errors.New("invalid json value")
	ErrAlreadySent      = errors.New("response already sent")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownBackend   = errors.New("unknown cache backend")
)
