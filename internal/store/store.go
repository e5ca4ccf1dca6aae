// Package store provides the durable key-value collaborator shared by the
// label-resolution cache and the per-job answer cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// Store is a durable key-value store. Put is an idempotent upsert.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `mapstructure:"backend"`
	URL     string `mapstructure:"url"`
	Prefix  string `mapstructure:"prefix"`
	Table   string `mapstructure:"table"`
}

// Open returns the backend named in cfg. A nil or empty config yields an in-memory store.
func Open(ctx context.Context, cfg *Config) (Store, func() error, error) {
	backend := BackendMemory
	if cfg != nil && strings.TrimSpace(cfg.Backend) != "" {
		backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	}

	switch backend {
	case BackendMemory:
		return NewMemory(), func() error { return nil }, nil
	case BackendRedis:
		r, err := NewRedis(ctx, cfg.URL, cfg.Prefix)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case BackendPostgres:
		p, err := NewPostgres(ctx, cfg.URL, cfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { p.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}
