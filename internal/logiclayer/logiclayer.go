// Package logiclayer rewrites a user-facing query against cube aliases,
// time macros, named sets, and member cut operators into one or more
// internal/query.Query values addressed purely by schema name, runs
// them concurrently, and merges their results back into a single
// DataFrame. It is the component behind the /data endpoint; the core
// aggregate endpoint (/aggregate) bypasses it and hands internal/query
// straight to internal/compiler.
//
// Modeled on the teacher's concurrent tool-execution path: independent
// units of work are fanned out with golang.org/x/sync/errgroup and their
// results collected positionally, the same shape the teacher uses to run
// several MCP tool calls in parallel and gather their responses.
package logiclayer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tesseract-olap/tesseract/internal/cache"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/geoservice"
	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/query"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/util"
)

// NamedSet is a configured shorthand: a name that expands to a fixed
// member list on a given level, usable as a drilldown (expanding to that
// level plus a cut restricting it to the set) or as a cut value.
type NamedSet struct {
	Level   names.LevelName
	Members []string
}

// Config is the logic layer's static configuration: cube aliases and
// named sets, loaded once at startup from the logic-layer config file
// alongside the schema.
type Config struct {
	Aliases   map[string]string
	NamedSets map[string]NamedSet
}

func (c *Config) CanonicalCube(name string) string {
	if c == nil {
		return name
	}
	if canon, ok := c.Aliases[name]; ok {
		return canon
	}
	return name
}

func (c *Config) LookupNamedSet(name string) (NamedSet, bool) {
	if c == nil {
		return NamedSet{}, false
	}
	s, ok := c.NamedSets[name]
	return s, ok
}

// CutOperator is a suffix on a cut member id that expands it to a
// related set of ids rather than using it literally.
type CutOperator int

const (
	OpNone CutOperator = iota
	OpChildren
	OpParents
	OpNeighbors
)

// ParseCutOperator splits a trailing :children/:parents/:neighbors
// suffix off one cut value.
func ParseCutOperator(raw string) (string, CutOperator) {
	switch {
	case strings.HasSuffix(raw, ":children"):
		return strings.TrimSuffix(raw, ":children"), OpChildren
	case strings.HasSuffix(raw, ":parents"):
		return strings.TrimSuffix(raw, ":parents"), OpParents
	case strings.HasSuffix(raw, ":neighbors"):
		return strings.TrimSuffix(raw, ":neighbors"), OpNeighbors
	default:
		return raw, OpNone
	}
}

// RawCut is one dimension-or-unique-level-keyed cut as it arrives off
// the query string, before named-set and cut-operator expansion:
// <Dimension|UniqueLevelName>=<id>[:op][,<id>[:op]...]
type RawCut struct {
	Key    string
	Values []string
}

// TimeSelector picks which end (or offset) of a time level's cached
// value list a TimeMacro addresses.
type TimeSelector int

const (
	TimeLatest TimeSelector = iota
	TimeOldest
	TimeOffset
)

// TimeMacro is one `time=<precision>.<latest|oldest|n>` segment.
type TimeMacro struct {
	Precision string
	Selector  TimeSelector
	Offset    int
}

// ParseTimeMacro parses one comma-separated segment of a `time=` query
// parameter.
func ParseTimeMacro(s string) (TimeMacro, error) {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return TimeMacro{}, util.NewInputError(
			fmt.Sprintf("time macro %q must be <precision>.<latest|oldest|n>", s), nil)
	}
	precision, sel := s[:idx], s[idx+1:]
	switch sel {
	case "latest":
		return TimeMacro{Precision: precision, Selector: TimeLatest}, nil
	case "oldest":
		return TimeMacro{Precision: precision, Selector: TimeOldest}, nil
	default:
		n, err := strconv.Atoi(sel)
		if err != nil {
			return TimeMacro{}, util.NewInputError(
				fmt.Sprintf("time macro %q has unrecognized selector %q", s, sel), nil)
		}
		return TimeMacro{Precision: precision, Selector: TimeOffset, Offset: n}, nil
	}
}

// ExcludeClause drops, after merge, every row whose named level carries
// one of the listed ids: `exclude=<level>:<id>[,<id>...]`.
type ExcludeClause struct {
	Level  string
	Values []string
}

// ParseExclude parses one semicolon-separated segment of `exclude=`.
func ParseExclude(s string) (ExcludeClause, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return ExcludeClause{}, util.NewInputError(
			fmt.Sprintf("exclude clause %q must be <level>:<id>[,<id>...]", s), nil)
	}
	return ExcludeClause{Level: parts[0], Values: strings.Split(parts[1], ",")}, nil
}

// Request is the parsed /data query before rewriting: schema entities
// are still named loosely (dimension name, unique name, or set name)
// rather than resolved to a single names.LevelName.
type Request struct {
	Cube       string
	Time       []TimeMacro
	Cuts       []RawCut
	Drilldowns []string
	Measures   []query.MeasureRef
	Properties []query.PropertyRef
	Captions   []query.PropertyRef

	Parents  bool
	Top      *query.TopQuery
	TopWhere *query.TopWhereQuery
	Sort     *query.SortQuery
	Limit    *query.LimitQuery
	Filters  []query.FilterQuery
	RCA      *query.RCAQuery
	Growth   *query.GrowthQuery
	Rate     *query.RateQuery

	Exclude               []ExcludeClause
	Debug                 bool
	Sparse                bool
	ExcludeDefaultMembers bool
}

// Runner compiles and executes one resolved query.Query against a
// backend. internal/server supplies the real implementation (compiler +
// configured backend.Backend); tests supply a stub.
type Runner interface {
	Run(ctx context.Context, q *query.Query) (sqlText string, df *dataframe.DataFrame, err error)
}

// SiblingDebug carries one fanned-out sibling query's generated SQL, for
// the response's debug echo.
type SiblingDebug struct {
	SQL string
}

// Result is the rewriter's output: the merged DataFrame plus, when
// requested, the SQL every sibling query ran.
type Result struct {
	DataFrame *dataframe.DataFrame
	Debug     []SiblingDebug
}

// Rewrite expands req against sch/cubeCache/cfg into one or more sibling
// query.Query values, runs them concurrently through runner, and merges
// the results.
func Rewrite(
	ctx context.Context,
	sch *schema.Schema,
	cubeCache *cache.Cube,
	geo *geoservice.Client,
	cfg *Config,
	runner Runner,
	req *Request,
) (*Result, error) {
	cubeName := cfg.CanonicalCube(req.Cube)
	cube := sch.CubeByName(cubeName)
	if cube == nil {
		return nil, util.NewSchemaError(fmt.Sprintf("unknown cube %q", cubeName), nil)
	}
	if cubeCache == nil {
		return nil, util.NewCacheError(fmt.Sprintf("no members cache built for cube %q", cubeName), nil)
	}

	timeCuts, err := resolveTimeMacros(cube, cubeCache, req.Time)
	if err != nil {
		return nil, err
	}

	drills, setCuts, err := resolveDrilldowns(cube, cubeCache, cfg, req.Drilldowns)
	if err != nil {
		return nil, err
	}

	cuts, err := resolveCuts(ctx, cube, cubeCache, geo, cfg, req.Cuts)
	if err != nil {
		return nil, err
	}
	cuts = append(cuts, timeCuts...)
	cuts = append(cuts, setCuts...)

	siblingCutSets := fanOut(cuts)

	measureNames := make([]string, len(req.Measures))
	for i, m := range req.Measures {
		measureNames[i] = m.Name
	}
	if len(measureNames) == 0 {
		for _, m := range cube.Measures {
			measureNames = append(measureNames, m.Name)
		}
	}

	queries := make([]*query.Query, len(siblingCutSets))
	for i, cs := range siblingCutSets {
		queries[i] = &query.Query{
			Cube:                  cubeName,
			Drilldowns:            drills,
			Cuts:                  cs,
			Measures:              req.Measures,
			Properties:            req.Properties,
			Captions:              req.Captions,
			Parents:               req.Parents,
			Top:                   req.Top,
			TopWhere:              req.TopWhere,
			Sort:                  req.Sort,
			Limit:                 req.Limit,
			Filters:               req.Filters,
			RCA:                   req.RCA,
			Growth:                req.Growth,
			Rate:                  req.Rate,
			Debug:                 req.Debug,
			Sparse:                req.Sparse,
			ExcludeDefaultMembers: req.ExcludeDefaultMembers,
		}
	}

	frames := make([]*dataframe.DataFrame, len(queries))
	sqlTexts := make([]string, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			sqlText, df, err := runner.Run(gctx, q)
			if err != nil {
				return err
			}
			frames[i] = df
			sqlTexts[i] = sqlText
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged, err := mergeFrames(frames)
	if err != nil {
		return nil, err
	}

	if err := applyExcludes(merged, cube, cubeCache, req.Exclude); err != nil {
		return nil, err
	}

	renameHeaders(merged, cube, cubeCache, measureNames)

	debug := make([]SiblingDebug, len(sqlTexts))
	for i, s := range sqlTexts {
		debug[i] = SiblingDebug{SQL: s}
	}
	return &Result{DataFrame: merged, Debug: debug}, nil
}

// findLevel resolves a LevelName against cube's schema tree. A small,
// intentional duplicate of internal/compiler's unexported resolveLevel:
// that function is not exported, and this package's needs (existence
// check, index within the hierarchy) are narrow enough not to warrant
// exporting it.
func findLevel(cube *schema.Cube, ln names.LevelName) (*schema.Dimension, *schema.Hierarchy, *schema.Level, int, error) {
	dim := cube.DimensionByName(ln.Dimension)
	if dim == nil {
		return nil, nil, nil, 0, util.NewSchemaError(fmt.Sprintf("unknown dimension %q", ln.Dimension), nil)
	}
	hier := dim.HierarchyByName(ln.Hierarchy)
	if hier == nil {
		return nil, nil, nil, 0, util.NewSchemaError(fmt.Sprintf("unknown hierarchy %q", ln.Hierarchy), nil)
	}
	level, idx := hier.LevelByName(ln.Level)
	if level == nil {
		return nil, nil, nil, 0, util.NewSchemaError(fmt.Sprintf("unknown level %q", ln.Level), nil)
	}
	return dim, hier, level, idx, nil
}

func resolveTimeMacros(cube *schema.Cube, c *cache.Cube, macros []TimeMacro) ([]names.Cut, error) {
	out := make([]names.Cut, 0, len(macros))
	for _, m := range macros {
		ln, err := findTimeLevel(cube, m.Precision)
		if err != nil {
			return nil, err
		}
		values := c.TimeValues[ln]
		if len(values) == 0 {
			return nil, util.NewCacheError(fmt.Sprintf("no time values cached for precision %q", m.Precision), nil)
		}

		var idx int
		switch m.Selector {
		case TimeLatest:
			idx = len(values) - 1
		case TimeOldest:
			idx = 0
		default:
			idx = len(values) - 1 - m.Offset
		}
		if idx < 0 || idx >= len(values) {
			return nil, util.NewInputError(
				fmt.Sprintf("time macro on %q is out of range (%d cached values)", m.Precision, len(values)), nil)
		}
		out = append(out, names.NewCut(ln, []string{values[idx]}, names.MaskInclude, false))
	}
	return out, nil
}

func findTimeLevel(cube *schema.Cube, precision string) (names.LevelName, error) {
	for _, dim := range cube.Dimensions {
		if dim.Kind != schema.DimensionTime {
			continue
		}
		for _, hier := range dim.Hierarchies {
			if level, _ := hier.LevelByName(precision); level != nil {
				return names.NewLevelName(dim.Name, hier.Name, precision), nil
			}
		}
	}
	return names.LevelName{}, util.NewSchemaError(fmt.Sprintf("unknown time precision %q", precision), nil)
}

// resolveDrilldowns resolves each raw drilldown reference to a level,
// substituting a configured named set with the level it was declared
// against and a cut restricting that level to the set's members.
func resolveDrilldowns(cube *schema.Cube, c *cache.Cube, cfg *Config, raw []string) ([]names.LevelName, []names.Cut, error) {
	drills := make([]names.LevelName, 0, len(raw))
	var extraCuts []names.Cut
	for _, d := range raw {
		if set, ok := cfg.LookupNamedSet(d); ok {
			drills = append(drills, set.Level)
			extraCuts = append(extraCuts, names.NewCut(set.Level, set.Members, names.MaskInclude, false))
			continue
		}
		ln, err := ResolveLevelRef(cube, c, d)
		if err != nil {
			return nil, nil, err
		}
		drills = append(drills, ln)
	}
	return drills, extraCuts, nil
}

func ResolveLevelRef(cube *schema.Cube, c *cache.Cube, raw string) (names.LevelName, error) {
	if ln, err := names.ParseLevelName(raw); err == nil {
		if _, _, lvl, _, ferr := findLevel(cube, ln); ferr == nil && lvl != nil {
			return ln, nil
		}
	}
	if c != nil {
		if ln, ok := c.UniqueNameToLevel[raw]; ok {
			return ln, nil
		}
	}
	return names.LevelName{}, util.NewSchemaError(fmt.Sprintf("unknown drilldown %q", raw), nil)
}

// resolvedCut is one (level, member ids) pair a cut operator expanded
// into; :parents can expand a single raw cut into several of these, one
// per ancestor level.
type resolvedCut struct {
	Level   names.LevelName
	Members []string
}

func resolveCuts(ctx context.Context, cube *schema.Cube, c *cache.Cube, geo *geoservice.Client, cfg *Config, raw []RawCut) ([]names.Cut, error) {
	byLevel := map[names.LevelName][]string{}
	var order []names.LevelName

	record := func(ln names.LevelName, members []string) {
		if _, exists := byLevel[ln]; !exists {
			order = append(order, ln)
		}
		byLevel[ln] = append(byLevel[ln], members...)
	}

	for _, rc := range raw {
		if len(rc.Values) == 1 {
			if set, ok := cfg.LookupNamedSet(rc.Values[0]); ok {
				record(set.Level, set.Members)
				continue
			}
		}
		for _, v := range rc.Values {
			id, op := ParseCutOperator(v)
			ln, err := ResolveCutTarget(cube, c, rc.Key, id)
			if err != nil {
				return nil, err
			}
			resolved, err := applyCutOperator(ctx, cube, c, geo, ln, id, op)
			if err != nil {
				return nil, err
			}
			for _, r := range resolved {
				record(r.Level, r.Members)
			}
		}
	}

	out := make([]names.Cut, 0, len(order))
	for _, ln := range order {
		out = append(out, names.NewCut(ln, dedupe(byLevel[ln]), names.MaskInclude, false))
	}
	return out, nil
}

// ResolveCutTarget finds the level a single cut key addresses: a unique
// level name resolves directly, a fully qualified name resolves via the
// schema, and anything else is treated as a bare dimension name whose id
// the members cache must disambiguate (an AmbiguousId failure when the
// same id is a member of more than one level of that dimension). Also
// used directly by internal/server's /relations endpoint.
func ResolveCutTarget(cube *schema.Cube, c *cache.Cube, key, id string) (names.LevelName, error) {
	if ln, ok := c.UniqueNameToLevel[key]; ok {
		return ln, nil
	}
	if ln, err := names.ParseLevelName(key); err == nil {
		if _, _, lvl, _, ferr := findLevel(cube, ln); ferr == nil && lvl != nil {
			return ln, nil
		}
	}
	return c.ResolveDimensionID(key, id)
}

func applyCutOperator(ctx context.Context, cube *schema.Cube, c *cache.Cube, geo *geoservice.Client, ln names.LevelName, id string, op CutOperator) ([]resolvedCut, error) {
	switch op {
	case OpNone:
		return []resolvedCut{{Level: ln, Members: []string{id}}}, nil

	case OpChildren:
		childLevel, err := levelBelow(cube, ln)
		if err != nil {
			return nil, err
		}
		lm := c.LevelMembers(ln)
		if lm == nil {
			return nil, util.NewCacheError(fmt.Sprintf("no cached members for level %s", ln), nil)
		}
		return []resolvedCut{{Level: childLevel, Members: lm.Children[id]}}, nil

	case OpParents:
		ancestors, err := ancestorLevels(cube, ln)
		if err != nil {
			return nil, err
		}
		out := make([]resolvedCut, 0, len(ancestors))
		currentLevel, currentID := ln, id
		for _, anc := range ancestors {
			lm := c.LevelMembers(currentLevel)
			if lm == nil {
				return nil, util.NewCacheError(fmt.Sprintf("no cached members for level %s", currentLevel), nil)
			}
			parentID, ok := lm.Parent[currentID]
			if !ok {
				break
			}
			out = append(out, resolvedCut{Level: anc, Members: []string{parentID}})
			currentLevel, currentID = anc, parentID
		}
		return out, nil

	case OpNeighbors:
		if c.GeoLevels[ln] {
			if geo == nil {
				return nil, util.NewUpstreamError(
					fmt.Sprintf(":neighbors requested on geo level %s but no geoservice is configured", ln), nil)
			}
			ids, err := geo.Neighbors(ctx, id)
			if err != nil {
				return nil, err
			}
			return []resolvedCut{{Level: ln, Members: ids}}, nil
		}
		lm := c.LevelMembers(ln)
		if lm == nil {
			return nil, util.NewCacheError(fmt.Sprintf("no cached members for level %s", ln), nil)
		}
		return []resolvedCut{{Level: ln, Members: lm.Neighbors(id, 2)}}, nil

	default:
		return nil, util.NewInputError(fmt.Sprintf("unrecognized cut operator on %s", ln), nil)
	}
}

func levelBelow(cube *schema.Cube, ln names.LevelName) (names.LevelName, error) {
	dim, hier, _, idx, err := findLevel(cube, ln)
	if err != nil {
		return names.LevelName{}, err
	}
	if idx+1 >= len(hier.Levels) {
		return names.LevelName{}, util.NewInputError(fmt.Sprintf("level %s has no child level for :children", ln), nil)
	}
	return names.NewLevelName(dim.Name, hier.Name, hier.Levels[idx+1].Name), nil
}

// ancestorLevels returns the levels above ln within its hierarchy,
// nearest ancestor first.
func ancestorLevels(cube *schema.Cube, ln names.LevelName) ([]names.LevelName, error) {
	dim, hier, _, idx, err := findLevel(cube, ln)
	if err != nil {
		return nil, err
	}
	out := make([]names.LevelName, 0, idx)
	for i := idx - 1; i >= 0; i-- {
		out = append(out, names.NewLevelName(dim.Name, hier.Name, hier.Levels[i].Name))
	}
	return out, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// fanOut splits cuts into sibling cut sets. Cuts on the same dimension
// that target more than one distinct level cannot both apply to a
// single SQL query (the fact table only carries one foreign key per
// dimension, so there is no row-level conjunction of "country = X" and
// "state = Y" once both have been rewritten onto the same join); one
// sibling query is produced per level alternative, and the product is
// taken across every dimension that needs it. Dimensions with cuts on a
// single level pass through unchanged onto every sibling.
func fanOut(cuts []names.Cut) [][]names.Cut {
	byDim := map[string][]names.Cut{}
	var dimOrder []string
	for _, c := range cuts {
		d := c.LevelName.Dimension
		if _, ok := byDim[d]; !ok {
			dimOrder = append(dimOrder, d)
		}
		byDim[d] = append(byDim[d], c)
	}

	combos := [][]names.Cut{{}}
	for _, d := range dimOrder {
		dimCuts := byDim[d]
		if countDistinctLevels(dimCuts) <= 1 {
			for i := range combos {
				combos[i] = append(combos[i], dimCuts...)
			}
			continue
		}

		next := make([][]names.Cut, 0, len(combos)*len(dimCuts))
		for _, combo := range combos {
			for _, c := range dimCuts {
				sibling := make([]names.Cut, len(combo), len(combo)+1)
				copy(sibling, combo)
				sibling = append(sibling, c)
				next = append(next, sibling)
			}
		}
		combos = next
	}
	return combos
}

func countDistinctLevels(cuts []names.Cut) int {
	seen := map[names.LevelName]bool{}
	for _, c := range cuts {
		seen[c.LevelName] = true
	}
	return len(seen)
}

// mergeFrames row-concatenates sibling DataFrames in fan-out order,
// matching columns by position (every sibling query shares the same
// drilldown/measure shape, only their cuts differ). A column keeps its
// type only when every contributing frame agrees on it; otherwise the
// merged column is downgraded to text.
func mergeFrames(frames []*dataframe.DataFrame) (*dataframe.DataFrame, error) {
	if len(frames) == 0 {
		return dataframe.New(), nil
	}
	nCols := len(frames[0].Columns)
	for _, f := range frames[1:] {
		if len(f.Columns) != nCols {
			return nil, util.NewFormatterError(
				"sibling queries returned a different number of columns and cannot be merged", nil)
		}
	}

	merged := make([]*dataframe.Column, nCols)
	for ci := 0; ci < nCols; ci++ {
		merged[ci] = mergeColumn(frames, ci)
	}
	return dataframe.New(merged...), nil
}

func mergeColumn(frames []*dataframe.DataFrame, ci int) *dataframe.Column {
	name := frames[0].Columns[ci].Name
	kind := frames[0].Columns[ci].Kind
	sameKind := true
	total := 0
	for _, f := range frames {
		if f.Columns[ci].Kind != kind {
			sameKind = false
		}
		total += f.Columns[ci].Len()
	}

	if !sameKind {
		out := dataframe.NewColumn(name, dataframe.KindText, total)
		for _, f := range frames {
			tmp := dataframe.New(f.Columns[ci])
			for _, row := range tmp.Stringify() {
				out.Texts = append(out.Texts, row[0])
			}
		}
		return out
	}

	out := dataframe.NewColumn(name, kind, total)
	for _, f := range frames {
		appendColumn(out, f.Columns[ci])
	}
	return out
}

func appendColumn(dst, src *dataframe.Column) {
	switch dst.Kind {
	case dataframe.KindInt8, dataframe.KindInt16, dataframe.KindInt32, dataframe.KindInt64, dataframe.KindNullableInt64:
		dst.Ints = append(dst.Ints, src.Ints...)
	case dataframe.KindUint8, dataframe.KindUint16, dataframe.KindUint32, dataframe.KindUint64:
		dst.UInts = append(dst.UInts, src.UInts...)
	case dataframe.KindFloat32:
		dst.F32s = append(dst.F32s, src.F32s...)
	case dataframe.KindFloat64, dataframe.KindNullableFloat64:
		dst.F64s = append(dst.F64s, src.F64s...)
	default:
		dst.Texts = append(dst.Texts, src.Texts...)
	}
	if dst.IsNullable() {
		dst.Valid = append(dst.Valid, src.Valid...)
	}
}

// applyExcludes drops every row whose named level column carries one of
// the excluded ids. Matching against a bare column name is tried first
// (the level's key column is exactly the header emitted by sqlgen's
// final select), falling back to resolving the clause's level reference
// through the schema/cache when it isn't.
func applyExcludes(df *dataframe.DataFrame, cube *schema.Cube, c *cache.Cube, excludes []ExcludeClause) error {
	for _, ex := range excludes {
		colName, err := excludeColumnName(df, cube, c, ex.Level)
		if err != nil {
			return err
		}
		col := df.ColumnByName(colName)
		if col == nil {
			continue
		}
		values := make(map[string]bool, len(ex.Values))
		for _, v := range ex.Values {
			values[v] = true
		}

		tmp := dataframe.New(col)
		rows := tmp.Stringify()
		for i := len(rows) - 1; i >= 0; i-- {
			if values[rows[i][0]] {
				df.Remove(i)
			}
		}
	}
	return nil
}

func excludeColumnName(df *dataframe.DataFrame, cube *schema.Cube, c *cache.Cube, level string) (string, error) {
	if df.ColumnByName(level) != nil {
		return level, nil
	}
	var ln names.LevelName
	if l, ok := c.UniqueNameToLevel[level]; ok {
		ln = l
	} else if parsed, err := names.ParseLevelName(level); err == nil {
		ln = parsed
	} else {
		return "", util.NewInputError(fmt.Sprintf("exclude level %q not recognized", level), nil)
	}
	_, _, lvl, _, err := findLevel(cube, ln)
	if err != nil {
		return "", err
	}
	if df.ColumnByName(lvl.KeyColumn) != nil {
		return lvl.KeyColumn, nil
	}
	return "", util.NewInputError(fmt.Sprintf("exclude level %q has no matching column in the result", level), nil)
}

// renameHeaders relabels the merged frame's columns from the bare
// key/name/property columns sqlgen's final select emits: a level's name
// column takes the level's unique name from the members cache (its
// unique_name annotation, else the level name; the bare dimension name
// when there is no cache or the level is not in it), its key column
// takes that name plus " ID", a property column takes the property
// name, and measure columns are renamed from
// their positional final_m{i}/m{i} alias to the requested measure name.
// Columns synthesized by rca/growth/rate keep their own aliases: this
// pass only relabels drilldown/property/measure columns.
func renameHeaders(df *dataframe.DataFrame, cube *schema.Cube, c *cache.Cube, measures []string) {
	aliasMap := columnDisplayNames(cube, c)
	for i, m := range measures {
		aliasMap[fmt.Sprintf("final_m%d", i)] = m
		aliasMap[fmt.Sprintf("m%d", i)] = m
	}
	for _, col := range df.Columns {
		if display, ok := aliasMap[col.Name]; ok {
			col.Name = display
		}
	}
}

func columnDisplayNames(cube *schema.Cube, c *cache.Cube) map[string]string {
	out := map[string]string{}
	for _, dim := range cube.Dimensions {
		for _, hier := range dim.Hierarchies {
			for _, level := range hier.Levels {
				display := dim.Name
				if c != nil {
					for name, ln := range c.UniqueNameToLevel {
						if ln.Dimension == dim.Name && ln.Hierarchy == hier.Name && ln.Level == level.Name {
							display = name
							break
						}
					}
				}
				out[level.KeyColumn] = display + " ID"
				if level.NameColumn != "" {
					out[level.NameColumn] = display
				}
				for _, p := range level.Properties {
					out[p.Column] = p.Name
				}
			}
		}
	}
	for _, mea := range cube.Measures {
		out[mea.Column] = mea.Name
	}
	return out
}
