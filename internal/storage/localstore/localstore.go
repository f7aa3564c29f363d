// Package localstore provides durable string key-value storage for the
// per-customer order history.
package localstore

import (
	"context"
	"io"

	"github.com/go-faster/errors"
)

// Store is durable string key-value storage.
type Store interface {
	// Get reports ok=false when key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	io.Closer
}

// Driver names accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config selects and configures a Store.
type Config struct {
	Driver   string `default:"sqlite" usage:"Local order storage driver: sqlite, redis or memory"`
	Path     string `default:"easyeat-local.db" usage:"SQLite database file"`
	RedisURL string `usage:"Redis connection URL (falls back to REDIS_URL)" flag:"redis-url"`
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.Path)
	case DriverRedis:
		return OpenRedis(ctx, cfg.RedisURL)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unknown local store driver %q", cfg.Driver)
	}
}

// Prefixed scopes every key of s under prefix. The returned store does not
// own s; closing it is a no-op.
func Prefixed(s Store, prefix string) Store {
	return &prefixed{s: s, prefix: prefix + ":"}
}

type prefixed struct {
	s      Store
	prefix string
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.s.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.s.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.s.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Close() error { return nil }
