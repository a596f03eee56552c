package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Opener opens a Store for a backend. The DSN format is backend specific.
type Opener func(ctx context.Context, dsn string, opts OpenOptions) (Store, error)

// OpenOptions carries settings shared by all SQL backends.
type OpenOptions struct {
	MaxOpenConns int
	MaxIdleConns int
	// Location is the zone calendar days and returned times are expressed in.
	Location *time.Location
	// Logger receives migration progress. Nil disables logging.
	Logger *zap.Logger
}

// Loc returns the configured location or time.Local.
func (o OpenOptions) Loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

// Log returns the configured logger or a no-op logger.
func (o OpenOptions) Log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

var (
	backends   = make(map[string]Opener)
	backendsMu sync.RWMutex
)

// RegisterBackend registers a Store opener under a driver name.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// Backends returns the registered driver names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a Store with the named backend.
func Open(ctx context.Context, driver, dsn string, opts OpenOptions) (Store, error) {
	backendsMu.RLock()
	open, ok := backends[driver]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown database driver %q (available: %v)", driver, Backends())
	}

	store, err := open(ctx, dsn, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return store, nil
}
