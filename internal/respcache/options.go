package respcache

import (
	"net/http"
	"time"

	stash "github.com/eugener/stash/internal"
)

// Defaults for the store a gateway builds when Options.Store is nil.
const (
	DefaultMaxEntries = 10_000
	DefaultTTL        = 5 * time.Minute
)

// AuthFunc returns an opaque string identifying the authenticated caller,
// or "" for requests whose cached responses are shared.
type AuthFunc func(w http.ResponseWriter, r *http.Request) string

// Predicate decides a per-request policy question.
type Predicate func(w http.ResponseWriter, r *http.Request) bool

// ObserveFunc receives the request URI and the time spent checking the cache.
type ObserveFunc func(key string, elapsed time.Duration)

// Options is a partial gateway configuration. Zero fields fall back to
// defaults: no scoping, automatic delivery, JSON responses, both predicates
// always true, no observers, and an in-memory store.
type Options struct {
	// Name identifies the gateway in logs and metrics.
	Name string
	// Auth scopes cache entries per caller.
	Auth AuthFunc
	// ManualResponse hands cache hits to the downstream handler instead of
	// writing them.
	ManualResponse bool
	// ResponseType selects how values are written. Unknown types fall back
	// to JSON.
	ResponseType stash.ResponseType
	// ShouldCache gates writes to the store.
	ShouldCache Predicate
	// ShouldCheckCache gates the lookup itself. When it returns false the
	// request bypasses the cache: no auth evaluation, no observer call.
	ShouldCheckCache Predicate
	OnCacheHit       ObserveFunc
	OnCacheMiss      ObserveFunc

	// Store is the backend. When nil, an in-memory store is built from
	// MaxEntries and TTL.
	Store      stash.Store
	MaxEntries int
	TTL        time.Duration
}

// config is Options after defaulting; every field is set.
type config struct {
	name             string
	auth             AuthFunc
	manualResponse   bool
	responseType     stash.ResponseType
	shouldCache      Predicate
	shouldCheckCache Predicate
	onCacheHit       ObserveFunc
	onCacheMiss      ObserveFunc
}

func always(http.ResponseWriter, *http.Request) bool   { return true }
func noScope(http.ResponseWriter, *http.Request) string { return "" }
func noObserve(string, time.Duration)                   {}

func newConfig(o Options) config {
	c := config{
		name:             o.Name,
		auth:             o.Auth,
		manualResponse:   o.ManualResponse,
		responseType:     o.ResponseType,
		shouldCache:      o.ShouldCache,
		shouldCheckCache: o.ShouldCheckCache,
		onCacheHit:       o.OnCacheHit,
		onCacheMiss:      o.OnCacheMiss,
	}
	if c.name == "" {
		c.name = "default"
	}
	if c.auth == nil {
		c.auth = noScope
	}
	if !c.responseType.Valid() {
		c.responseType = stash.ResponseJSON
	}
	if c.shouldCache == nil {
		c.shouldCache = always
	}
	if c.shouldCheckCache == nil {
		c.shouldCheckCache = always
	}
	if c.onCacheHit == nil {
		c.onCacheHit = noObserve
	}
	if c.onCacheMiss == nil {
		c.onCacheMiss = noObserve
	}
	return c
}

// GetOnly is a Predicate that admits only GET requests. Use it as
// ShouldCache alongside SafeMethods so HEAD responses are served from the
// cache but never stored in place of a full body.
func GetOnly(_ http.ResponseWriter, r *http.Request) bool {
	return r.Method == http.MethodGet
}

// SafeMethods is a Predicate that admits only GET and HEAD requests.
func SafeMethods(_ http.ResponseWriter, r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}
