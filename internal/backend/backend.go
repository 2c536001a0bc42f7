// Package backend defines the Backend contract every SQL dialect driver
// implements (ExecSQL/ExecSQLStream/GenerateSQL/CheckUser/Clone), plus
// the init()-based registry the concrete drivers register themselves
// into, the same registration shape the teacher module used for its
// generic Source interface.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// Backend executes compiled SQL against one configured data source and
// decodes rows into a DataFrame.
type Backend interface {
	// Kind identifies the dialect this backend speaks, e.g. "clickhouse".
	Kind() string

	// GenerateSQL turns a resolved QueryIR into this dialect's SQL.
	GenerateSQL(ir *queryir.QueryIR) (string, error)

	// ExecSQL runs sql to completion and returns the whole result as one
	// DataFrame.
	ExecSQL(ctx context.Context, sql string) (*dataframe.DataFrame, error)

	// ExecSQLStream runs sql and delivers the result in row-count-bounded
	// DataFrame chunks over the returned channel, closing it when the
	// query completes or ctx is cancelled. The second channel carries at
	// most one error.
	ExecSQLStream(ctx context.Context, sql string) (<-chan *dataframe.DataFrame, <-chan error)

	// CheckUser reports whether user/pass authenticates against this
	// backend's data source, for the subset of deployments that delegate
	// the server's own auth to the database.
	CheckUser(ctx context.Context, user, pass string) (bool, error)

	// Clone returns a new Backend pointed at the same data source,
	// without copying in-flight state; used by the logic layer to fan a
	// query out into several concurrent sibling queries.
	Clone() Backend

	// Close releases the backend's connection pool.
	Close() error
}

// Config is the yaml-decoded shape every dialect's Config implements,
// named the way the `kind` field of a server config `sources` entry
// refers to it.
type Config interface {
	Kind() string
}

// Factory builds a Backend from a decoded Config.
type Factory func(ctx context.Context, cfg Config) (Backend, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register associates a dialect kind with the Factory that builds its
// Backend. Called from each dialect package's init().
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New builds the Backend registered for cfg.Kind().
func New(ctx context.Context, cfg Config) (Backend, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind()]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend: no driver registered for kind %q", cfg.Kind())
	}
	return f(ctx, cfg)
}
