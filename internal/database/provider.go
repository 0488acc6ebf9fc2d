package database

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/faceverify/internal/config"
)

// Opener connects to a database, applies migrations and returns the
// repository together with the handle that closes it.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (ReferenceWriter, io.Closer, error)

var (
	openers   = make(map[string]Opener)
	openersMu sync.RWMutex
)

// RegisterBackend registers a driver. Called from the init functions of the
// driver packages to avoid import cycles.
func RegisterBackend(driver string, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = open
}

// Drivers returns the registered driver names.
func Drivers() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the repository for cfg.Driver.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (ReferenceWriter, io.Closer, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is required: set DATABASE_URL")
	}

	openersMu.RLock()
	open, ok := openers[cfg.Driver]
	openersMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown database driver %q (registered: %s)", cfg.Driver, strings.Join(Drivers(), ", "))
	}
	return open(ctx, cfg)
}
