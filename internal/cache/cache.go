// Package cache provides stash.Store implementations: an in-process
// W-TinyLFU cache, a Redis-backed shared cache and a tiered combination.
package cache

import (
	stash "github.com/eugener/stash/internal"
)

var (
	_ stash.Store = (*Memory)(nil)
	_ stash.Store = (*Redis)(nil)
	_ stash.Store = (*Tiered)(nil)
)
