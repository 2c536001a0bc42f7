// Package schema is the in-memory representation of a Tesseract schema:
// cubes, their dimensions/hierarchies/levels/measures, shared
// dimensions, and inline tables. It is built by internal/schemaio and
// consulted read-only by internal/compiler and internal/cache.
package schema

import (
	"fmt"
	"sync"

	"github.com/tesseract-olap/tesseract/internal/schema/aggregator"
)

// KeyType controls whether a level's key column (and a cut against it)
// is quoted as a SQL string literal.
type KeyType int

const (
	KeyTypeNonText KeyType = iota
	KeyTypeText
)

// DimensionKind distinguishes the handling a dimension gets from the
// logic layer: geo dimensions consult the geoservice for `:neighbors`;
// time dimensions are indexed by precision in the members cache.
type DimensionKind int

const (
	DimensionStandard DimensionKind = iota
	DimensionGeo
	DimensionTime
)

// Annotations is a free-form string map attached to most schema
// entities and echoed verbatim in cube metadata responses.
type Annotations map[string]string

// Schema is the top-level container: a named set of cubes plus the
// shared dimensions they may reference via DimensionUsage.
type Schema struct {
	Name             string
	Cubes            []*Cube
	SharedDimensions map[string]*Dimension
	Annotations      Annotations
}

// CubeByName returns the cube with the given name, or nil.
func (s *Schema) CubeByName(name string) *Cube {
	for _, c := range s.Cubes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Cube is one fact table plus the dimensions and measures that can be
// queried against it.
type Cube struct {
	Name          string
	Table         Table
	Dimensions    []*Dimension
	Measures      []*Measure
	MinAuthLevel  int
	CanAggregate  bool
	Annotations   Annotations
}

// DimensionByName returns the dimension with the given name (matched
// against the dimension's own name, not a shared dimension's original
// name when used via DimensionUsage), or nil.
func (c *Cube) DimensionByName(name string) *Dimension {
	for _, d := range c.Dimensions {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func (c *Cube) MeasureByName(name string) *Measure {
	for _, m := range c.Measures {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Table identifies a physical table or view, optionally namespaced.
type Table struct {
	Schema string
	Name   string
}

func (t Table) FullName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Dimension is an axis of analysis. A cube-local dimension owns its
// hierarchies directly; a shared dimension is defined once at the
// schema level and referenced from multiple cubes via DimensionUsage,
// which only needs to override the foreign key.
type Dimension struct {
	Name        string
	ForeignKey  string
	IsShared    bool
	SourceName  string // for a usage of a shared dimension, the shared dimension's own Name
	Kind        DimensionKind
	Hierarchies []*Hierarchy
	Annotations Annotations
}

func (d *Dimension) HierarchyByName(name string) *Hierarchy {
	for _, h := range d.Hierarchies {
		if h.Name == name {
			return h
		}
	}
	return nil
}

// Hierarchy is a drill path: an ordered sequence of levels, optionally
// backed by its own dimension table (snowflaked) or an InlineTable.
type Hierarchy struct {
	Name          string
	Table         *Table // nil when levels live directly on the fact table or InlineTable is set
	InlineTable   *InlineTable
	PrimaryKey    string // defaults to the lowest level's KeyColumn when empty
	Levels        []*Level
	DefaultMember string
	Annotations   Annotations
}

// EffectivePrimaryKey returns the hierarchy's declared primary key, or
// the lowest level's key column when none was declared.
func (h *Hierarchy) EffectivePrimaryKey() string {
	if h.PrimaryKey != "" {
		return h.PrimaryKey
	}
	if len(h.Levels) == 0 {
		return ""
	}
	return h.Levels[len(h.Levels)-1].KeyColumn
}

func (h *Hierarchy) LevelByName(name string) (*Level, int) {
	for i, l := range h.Levels {
		if l.Name == name {
			return l, i
		}
	}
	return nil, -1
}

// SourceTable returns the table the hierarchy's levels should be read
// from: its own dim table, its inline table's synthesized alias, or the
// fact table passed in when the hierarchy has neither (degenerate/inline
// dimension).
func (h *Hierarchy) SourceTable(factTable Table) Table {
	if h.Table != nil {
		return *h.Table
	}
	if h.InlineTable != nil {
		return Table{Name: h.InlineTable.Alias}
	}
	return factTable
}

// Level is one step of a hierarchy: a key column, optional label
// column, and the properties available at that level.
type Level struct {
	Name        string
	KeyColumn   string
	NameColumn  string // empty when the level has no separate label
	KeyType     KeyType
	Properties  []*Property
	Annotations Annotations
}

func (l *Level) PropertyByName(name string) *Property {
	for _, p := range l.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Property is a non-aggregated attribute of a level's members.
type Property struct {
	Name        string
	Column      string
	CaptionSet  string
	Annotations Annotations
}

// Measure is a fact-table column plus the Aggregator that combines rows
// into its value.
type Measure struct {
	Name        string
	Column      string
	Aggregator  aggregator.Aggregator
	Annotations Annotations
}

// InlineColumn defines one column of an InlineTable.
type InlineColumn struct {
	Name     string
	KeyType  KeyType
	CastType string // optional SQL cast, e.g. "UInt8"
}

// InlineTable is a small, schema-declared lookup table serialized as a
// `union all` of literal `select`s rather than read from the warehouse.
type InlineTable struct {
	Alias   string
	Columns []InlineColumn
	Rows    []map[string]string
}

// ToSQL renders the inline table as `(select ... union all select ...)
// as alias`, casting each value per its column's KeyType/CastType.
func (t *InlineTable) ToSQL() string {
	if len(t.Rows) == 0 {
		return "(select null limit 0) as " + t.Alias
	}
	selects := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		parts := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			val := row[col.Name]
			lit := val
			if col.KeyType == KeyTypeText {
				lit = "'" + escapeSingleQuote(val) + "'"
			}
			if col.CastType != "" {
				lit = fmt.Sprintf("cast(%s as %s)", lit, col.CastType)
			}
			parts[j] = fmt.Sprintf("%s as %s", lit, col.Name)
		}
		selects[i] = "select " + join(parts, ", ")
	}
	return "(" + join(selects, " union all ") + ") as " + t.Alias
}

func escapeSingleQuote(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// Store holds the active Schema behind a RWMutex, supporting the
// startup-load-then-flush lifecycle: readers take a read lock for the
// duration of one query compile; Flush swaps in a new Schema wholesale
// under a write lock so no reader ever observes a torn replacement.
type Store struct {
	mu     sync.RWMutex
	schema *Schema
}

func NewStore(s *Schema) *Store {
	return &Store{schema: s}
}

// Get returns the current Schema. Callers must not retain the pointer
// past the scope of their request, since Flush may swap it concurrently
// (the Schema value itself is treated as immutable once published, so
// holding the pointer is safe — just stale).
func (s *Store) Get() *Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

// Flush atomically replaces the held Schema.
func (s *Store) Flush(next *Schema) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = next
}
