// Package sqlgen defines the Generator contract every SQL dialect
// backend implements, plus the init()-based registry the three
// concrete dialects (clickhouse, postgres, mysql) register themselves
// into — the same registration pattern the rest of this module's
// connection drivers use.
package sqlgen

import (
	"fmt"
	"sync"

	"github.com/tesseract-olap/tesseract/internal/queryir"
)

// Generator turns a fully-resolved QueryIR into one dialect-specific SQL
// statement.
type Generator interface {
	// Generate composes the three nested stages (primary aggregation,
	// special calculations, options wrapper) into one SQL string.
	Generate(ir *queryir.QueryIR) (string, error)
}

var (
	mu      sync.RWMutex
	byKind  = map[string]Generator{}
)

// Register associates a dialect Kind string (e.g. "clickhouse") with its
// Generator. Called from each dialect package's init().
func Register(kind string, g Generator) {
	mu.Lock()
	defer mu.Unlock()
	byKind[kind] = g
}

// Get returns the Generator registered for kind, or an error if no
// dialect package registered it (most likely a missing blank import of
// the dialect package from main).
func Get(kind string) (Generator, error) {
	mu.RLock()
	defer mu.RUnlock()
	g, ok := byKind[kind]
	if !ok {
		return nil, fmt.Errorf("sqlgen: no generator registered for dialect %q", kind)
	}
	return g, nil
}
