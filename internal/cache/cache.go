// Package cache builds, per cube, the member listings the logic-layer
// rewriter needs to resolve ids that a query addresses by member value
// rather than by SQL: distinct member sets per level, parent/child/
// neighbor maps, sorted time-precision values, and the unique-name
// lookup tables the HTTP surface's Dimension=<id> shorthand depends on.
// It is built once at startup (and again on /flush) by probing the
// configured backend with `select distinct` queries, the same way
// internal/compiler resolves schema names into SQL, but eagerly rather
// than per-request.
package cache

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/util"
)

// LevelMembers is the probed member set of one level: every distinct
// key value, sorted, plus the maps the logic layer's cut operators
// (:children/:parents/:neighbors) resolve against.
type LevelMembers struct {
	Level    names.LevelName
	Members  []string
	Parent   map[string]string   // child id -> nearest-ancestor id
	Children map[string][]string // id -> child ids one level down
	index    map[string]int      // member -> its position in Members
}

// Neighbors returns up to `around` preceding and `around` following
// member ids around id in sorted order, excluding id itself. Returns
// nil if id is not a known member of this level.
func (lm *LevelMembers) Neighbors(id string, around int) []string {
	i, ok := lm.index[id]
	if !ok {
		return nil
	}
	lo := i - around
	if lo < 0 {
		lo = 0
	}
	hi := i + around + 1
	if hi > len(lm.Members) {
		hi = len(lm.Members)
	}
	out := make([]string, 0, hi-lo-1)
	for j := lo; j < hi; j++ {
		if j == i {
			continue
		}
		out = append(out, lm.Members[j])
	}
	return out
}

// Cube is the members cache for a single cube: one LevelMembers per
// level, sorted time values per time-precision level, the per-dimension
// inverse id->LevelName map used to disambiguate Dimension=<id> cuts,
// and the cube-wide unique-name lookup tables.
type Cube struct {
	Name                 string
	Levels               map[names.LevelName]*LevelMembers
	TimeValues           map[names.LevelName][]string
	GeoLevels            map[names.LevelName]bool
	idsByDimension       map[string]map[string][]names.LevelName
	UniqueNameToLevel    map[string]names.LevelName
	UniqueNameToProperty map[string]names.Property
}

// LevelMembers returns the probed member set for ln, or nil if ln was
// never resolved during the build pass (unknown level).
func (c *Cube) LevelMembers(ln names.LevelName) *LevelMembers {
	return c.Levels[ln]
}

// ResolveDimensionID maps a bare member id addressed only by dimension
// name (rather than a fully qualified level) to the one level it
// belongs to, failing with a CacheError when the id is not a member of
// any level in that dimension (unknown) or of more than one (ambiguous).
func (c *Cube) ResolveDimensionID(dimension, id string) (names.LevelName, error) {
	byID, ok := c.idsByDimension[dimension]
	if !ok {
		return names.LevelName{}, util.NewCacheError(fmt.Sprintf("unknown dimension %q", dimension), nil)
	}
	matches := byID[id]
	switch len(matches) {
	case 0:
		return names.LevelName{}, util.NewCacheError(fmt.Sprintf("unknown member %q in dimension %q", id, dimension), nil)
	case 1:
		return matches[0], nil
	default:
		return names.LevelName{}, util.NewCacheError(fmt.Sprintf("member %q is ambiguous in dimension %q: present in %d levels", id, dimension, len(matches)), nil)
	}
}

// NonUniqueIDs returns, in sorted order, every member id within
// dimension that belongs to more than one level — the same ambiguity
// ResolveDimensionID rejects at request time, surfaced here in bulk for
// the diagnosis endpoint to report before a query ever hits it.
func (c *Cube) NonUniqueIDs(dimension string) []string {
	byID, ok := c.idsByDimension[dimension]
	if !ok {
		return nil
	}
	var out []string
	for id, levels := range byID {
		if len(levels) > 1 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Cache is the members cache for every cube of one Schema snapshot.
type Cache struct {
	cubes map[string]*Cube
}

func (c *Cache) CubeByName(name string) *Cube {
	if c == nil {
		return nil
	}
	return c.cubes[name]
}

// Build probes b for every cube in sch and assembles their member
// caches. Database-backed hierarchies are probed with one `select
// distinct key[, parent_key]` per level; inline tables are enumerated
// directly from the schema, issuing no SQL.
func Build(ctx context.Context, b backend.Backend, sch *schema.Schema) (*Cache, error) {
	cubes := make(map[string]*Cube, len(sch.Cubes))
	for _, cube := range sch.Cubes {
		c, err := buildCube(ctx, b, cube)
		if err != nil {
			return nil, fmt.Errorf("building members cache for cube %q: %w", cube.Name, err)
		}
		cubes[cube.Name] = c
	}
	return &Cache{cubes: cubes}, nil
}

func buildCube(ctx context.Context, b backend.Backend, cube *schema.Cube) (*Cube, error) {
	c := &Cube{
		Name:                 cube.Name,
		Levels:               map[names.LevelName]*LevelMembers{},
		TimeValues:           map[names.LevelName][]string{},
		GeoLevels:            map[names.LevelName]bool{},
		idsByDimension:       map[string]map[string][]names.LevelName{},
		UniqueNameToLevel:    map[string]names.LevelName{},
		UniqueNameToProperty: map[string]names.Property{},
	}

	for _, dim := range cube.Dimensions {
		c.idsByDimension[dim.Name] = map[string][]names.LevelName{}
		for _, hier := range dim.Hierarchies {
			for idx, level := range hier.Levels {
				ln := names.NewLevelName(dim.Name, hier.Name, level.Name)

				lm, err := probeLevel(ctx, b, cube, hier, idx)
				if err != nil {
					return nil, fmt.Errorf("level %s: %w", ln, err)
				}
				lm.Level = ln
				c.Levels[ln] = lm
				if idx > 0 {
					parent := c.Levels[names.NewLevelName(dim.Name, hier.Name, hier.Levels[idx-1].Name)]
					parent.Children, lm.Children = lm.Children, map[string][]string{}
				}

				for _, id := range lm.Members {
					c.idsByDimension[dim.Name][id] = append(c.idsByDimension[dim.Name][id], ln)
				}

				uniqueName := uniqueNameOr(level.Annotations, level.Name)
				c.UniqueNameToLevel[uniqueName] = ln
				for _, p := range level.Properties {
					propUniqueName := uniqueNameOr(p.Annotations, p.Name)
					c.UniqueNameToProperty[propUniqueName] = names.NewProperty(dim.Name, hier.Name, level.Name, p.Name)
				}

				if dim.Kind == schema.DimensionTime {
					c.TimeValues[ln] = sortTimeValues(lm.Members)
				}
				if dim.Kind == schema.DimensionGeo {
					c.GeoLevels[ln] = true
				}
			}
		}
	}
	return c, nil
}

// probeLevel issues the distinct-member query for the level at position
// idx within hier.Levels: its own key column, plus the key column of
// the level immediately above it (its nearest-ancestor parent key) when
// one exists.
func probeLevel(ctx context.Context, b backend.Backend, cube *schema.Cube, hier *schema.Hierarchy, idx int) (*LevelMembers, error) {
	level := hier.Levels[idx]
	var parentCol string
	if idx > 0 {
		parentCol = hier.Levels[idx-1].KeyColumn
	}

	var rows [][]string
	if hier.InlineTable != nil {
		rows = inlineRows(hier.InlineTable, level.KeyColumn, parentCol)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	} else {
		var err error
		rows, err = queryDistinct(ctx, b, hier.SourceTable(cube.Table), level.KeyColumn, parentCol)
		if err != nil {
			return nil, err
		}
	}
	return buildLevelMembers(rows, parentCol != "")
}

func inlineRows(t *schema.InlineTable, keyCol, parentCol string) [][]string {
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if parentCol != "" {
			rows = append(rows, []string{row[keyCol], row[parentCol]})
		} else {
			rows = append(rows, []string{row[keyCol]})
		}
	}
	return rows
}

func queryDistinct(ctx context.Context, b backend.Backend, table schema.Table, keyCol, parentCol string) ([][]string, error) {
	cols := keyCol
	if parentCol != "" {
		cols += ", " + parentCol
	}
	sql := fmt.Sprintf("select distinct %s from %s order by %s", cols, table.FullName(), keyCol)

	df, err := b.ExecSQL(ctx, sql)
	if err != nil {
		return nil, err
	}
	return df.Stringify(), nil
}

func buildLevelMembers(rows [][]string, hasParent bool) (*LevelMembers, error) {
	lm := &LevelMembers{
		Members:  make([]string, 0, len(rows)),
		Parent:   map[string]string{},
		Children: map[string][]string{},
		index:    map[string]int{},
	}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		id := row[0]
		if _, seen := lm.index[id]; seen {
			continue
		}
		lm.index[id] = len(lm.Members)
		lm.Members = append(lm.Members, id)
		if hasParent && len(row) > 1 && row[1] != "" {
			lm.Parent[id] = row[1]
			lm.Children[row[1]] = append(lm.Children[row[1]], id)
		}
	}
	return lm, nil
}

func uniqueNameOr(ann schema.Annotations, fallback string) string {
	if v, ok := ann["unique_name"]; ok && v != "" {
		return v
	}
	return fallback
}

// sortTimeValues orders a time level's distinct values numerically when
// every value parses as an integer (the common case: years, or
// zero-padded periods), falling back to a lexical sort otherwise.
func sortTimeValues(members []string) []string {
	out := make([]string, len(members))
	copy(out, members)

	allNumeric := true
	for _, m := range out {
		if _, err := strconv.ParseInt(m, 10, 64); err != nil {
			allNumeric = false
			break
		}
	}
	if allNumeric {
		sort.Slice(out, func(i, j int) bool {
			a, _ := strconv.ParseInt(out[i], 10, 64)
			bb, _ := strconv.ParseInt(out[j], 10, 64)
			return a < bb
		})
	} else {
		sort.Strings(out)
	}
	return out
}
