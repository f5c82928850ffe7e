package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	stash "github.com/eugener/stash/internal"
	"github.com/eugener/stash/internal/cache"
	"github.com/eugener/stash/internal/config"
	"github.com/eugener/stash/internal/storage/sqlite"
)

// stores builds one stash.Store per origin on the configured backend and
// owns the shared resources behind them.
type stores struct {
	backend   string
	cfg       config.CacheConfig
	db        *sqlite.DB
	sweepable []stash.Sweepable
	closers   []func() error
	pingers   []func(context.Context) error
}

func newStores(cfg config.CacheConfig) (*stores, error) {
	s := &stores{backend: cfg.Backend, cfg: cfg}
	switch cfg.Backend {
	case config.BackendMemory, config.BackendRedis, config.BackendTiered:
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLite.DSN)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.sweepable = append(s.sweepable, db)
		s.closers = append(s.closers, db.Close)
		s.pingers = append(s.pingers, db.Ping)
	default:
		return nil, fmt.Errorf("cache backend %q: %w", cfg.Backend, stash.ErrUnknownBackend)
	}
	return s, nil
}

// forOrigin returns the store for origin o. Per-origin limits override the
// cache defaults.
func (s *stores) forOrigin(o config.OriginEntry) (stash.Store, error) {
	maxEntries := s.cfg.MaxEntries
	if o.MaxEntries > 0 {
		maxEntries = o.MaxEntries
	}
	ttl := s.cfg.TTL
	if o.TTL > 0 {
		ttl = o.TTL
	}

	switch s.backend {
	case config.BackendMemory:
		return cache.NewMemory(maxEntries, ttl)
	case config.BackendSQLite:
		return s.db.Store(o.Name, sqlite.Options{TTL: ttl, MaxEntries: maxEntries}), nil
	case config.BackendRedis:
		return s.redis(o.Name, ttl), nil
	case config.BackendTiered:
		l1, err := cache.NewMemory(maxEntries, min(ttl, time.Minute))
		if err != nil {
			return nil, err
		}
		return cache.NewTiered(l1, s.redis(o.Name, ttl)), nil
	default:
		return nil, fmt.Errorf("cache backend %q: %w", s.backend, stash.ErrUnknownBackend)
	}
}

func (s *stores) redis(name string, ttl time.Duration) *cache.Redis {
	r := cache.NewRedis(cache.RedisOptions{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		Prefix:   s.cfg.Redis.Prefix + name + ":",
		TTL:      ttl,
	})
	s.closers = append(s.closers, r.Close)
	s.pingers = append(s.pingers, r.Ping)
	return r
}

// Ping checks every shared backend.
func (s *stores) Ping(ctx context.Context) error {
	for _, p := range s.pingers {
		if err := p(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every backend connection.
func (s *stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
