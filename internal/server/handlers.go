package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/cache"
	"github.com/tesseract-olap/tesseract/internal/compiler"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/format"
	"github.com/tesseract-olap/tesseract/internal/logiclayer"
	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/query"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/util"
)

func (s *Server) handleCubes(w http.ResponseWriter, r *http.Request) {
	sch := s.Schema.Get()
	type cubeSummary struct {
		Name string `json:"name"`
	}
	summaries := make([]cubeSummary, len(sch.Cubes))
	for i, c := range sch.Cubes {
		summaries[i] = cubeSummary{Name: c.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cubes": summaries})
}

func (s *Server) handleCube(w http.ResponseWriter, r *http.Request) {
	cube := s.Schema.Get().CubeByName(chi.URLParam(r, "cube"))
	if cube == nil {
		writeError(w, util.NewSchemaError("unknown cube", nil))
		return
	}

	type dimSummary struct {
		Name string `json:"name"`
	}
	type meaSummary struct {
		Name string `json:"name"`
	}
	dims := make([]dimSummary, len(cube.Dimensions))
	for i, d := range cube.Dimensions {
		dims[i] = dimSummary{Name: d.Name}
	}
	meas := make([]meaSummary, len(cube.Measures))
	for i, m := range cube.Measures {
		meas[i] = meaSummary{Name: m.Name}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       cube.Name,
		"dimensions": dims,
		"measures":   meas,
	})
}

// handleFlush reloads the schema from disk, rebuilds the members cache
// against it, and swaps both stores under their write locks — nothing
// in flight observes a torn replacement, per the shared-state lifecycle
// every other Store in this module follows.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if s.Reload == nil {
		writeError(w, util.NewInputError("flush is not configured on this server", nil))
		return
	}

	sch, c, err := s.Reload(r.Context())
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "flush failed", "error", err)
		writeError(w, util.NewSchemaError("flush failed", err))
		return
	}

	s.Schema.Flush(sch)
	if s.Cache != nil {
		s.Cache.Flush(c)
	}

	s.Logger.InfoContext(r.Context(), "flush completed", "cubes", len(sch.Cubes))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok"})
}

// handleAggregate serves /cubes/{cube}/aggregate[.format]: cube comes
// from the path, every other query option from the query string. This
// is the core path — compiled straight to SQL, with none of the
// logic-layer rewriting /data performs.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r, chi.URLParam(r, "cube"))
	if err != nil {
		writeError(w, err)
		return
	}
	s.runAggregate(w, r, q)
}

func (s *Server) runAggregate(w http.ResponseWriter, r *http.Request, q *query.Query) {
	sch := s.Schema.Get()
	ir, err := compiler.Compile(sch, q)
	if err != nil {
		writeError(w, err)
		return
	}

	sqlStr, err := s.Backend.GenerateSQL(ir)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Logger.DebugContext(r.Context(), "generated sql", "sql", sqlStr)

	df, err := s.Backend.ExecSQL(r.Context(), sqlStr)
	if err != nil {
		writeError(w, err)
		return
	}

	kind, err := format.ParseKind(formatParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if kind == "" {
		kind = format.CSV
	}

	w.Header().Set("Content-Type", format.ContentType(kind))
	if err := format.Write(w, df, kind); err != nil {
		s.Logger.ErrorContext(r.Context(), "writing response", "error", err)
	}
}

// logicLayerRunner adapts the compiler + configured backend to
// logiclayer.Runner, so Rewrite can compile and execute each sibling
// query it fans a request out into.
type logicLayerRunner struct {
	schema *schema.Schema
	be     backend.Backend
}

func (r *logicLayerRunner) Run(ctx context.Context, q *query.Query) (string, *dataframe.DataFrame, error) {
	ir, err := compiler.Compile(r.schema, q)
	if err != nil {
		return "", nil, err
	}
	sqlStr, err := r.be.GenerateSQL(ir)
	if err != nil {
		return "", nil, err
	}
	df, err := r.be.ExecSQL(ctx, sqlStr)
	if err != nil {
		return "", nil, err
	}
	return sqlStr, df, nil
}

// handleLogicLayer serves /data[.format]: cube aliasing, time macros,
// named sets, cut operators and cartesian fan-out all run before
// anything reaches SQL.
func (s *Server) handleLogicLayer(w http.ResponseWriter, r *http.Request) {
	req, err := parseLogicLayerRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sch := s.Schema.Get()
	cubeName := req.Cube
	if s.LogicLayer != nil {
		cubeName = s.LogicLayer.CanonicalCube(req.Cube)
	}
	var cubeCache *cache.Cube
	if s.Cache != nil {
		cubeCache = s.Cache.Get().CubeByName(cubeName)
	}

	runner := &logicLayerRunner{schema: sch, be: s.Backend}
	result, err := logiclayer.Rewrite(r.Context(), sch, cubeCache, s.Geo, s.LogicLayer, runner, req)
	if err != nil {
		writeError(w, err)
		return
	}

	kind, err := format.ParseKind(formatParam(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if kind == "" {
		kind = format.JSONRecords
	}

	w.Header().Set("Content-Type", format.ContentType(kind))
	if err := format.Write(w, result.DataFrame, kind); err != nil {
		s.Logger.ErrorContext(r.Context(), "writing response", "error", err)
	}
}

// handleCubeMembers serves /cubes/{cube}/members[.format]: the cached
// member list of one level, named by the `level` query parameter
// (either a unique name or a dotted level name).
func (s *Server) handleCubeMembers(w http.ResponseWriter, r *http.Request) {
	s.writeMembers(w, r, chi.URLParam(r, "cube"), r.URL.Query().Get("level"))
}

// handleMembersFlat serves /members[.format]: the same member listing
// as handleCubeMembers, but with cube and level both addressed through
// the query string (cube=..., level=...) and the cube name resolved
// through the logic-layer's cube aliases, matching the rest of the
// /data surface's calling convention.
func (s *Server) handleMembersFlat(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	cubeName := v.Get("cube")
	if cubeName == "" {
		writeError(w, util.NewInputError("missing cube name", nil))
		return
	}
	if s.LogicLayer != nil {
		cubeName = s.LogicLayer.CanonicalCube(cubeName)
	}
	s.writeMembers(w, r, cubeName, v.Get("level"))
}

// writeMembers resolves levelParam (a unique name or dotted level name)
// against cubeName's members cache and writes its member list, shared
// by both the path-addressed and query-string-addressed member
// endpoints.
func (s *Server) writeMembers(w http.ResponseWriter, r *http.Request, cubeName, levelParam string) {
	cube := s.Schema.Get().CubeByName(cubeName)
	if cube == nil {
		writeError(w, util.NewSchemaError("unknown cube", nil))
		return
	}
	if s.Cache == nil {
		writeError(w, util.NewCacheError("members cache is not configured on this server", nil))
		return
	}
	cubeCache := s.Cache.Get().CubeByName(cubeName)
	if cubeCache == nil {
		writeError(w, util.NewCacheError(fmt.Sprintf("no members cache for cube %q", cubeName), nil))
		return
	}
	if levelParam == "" {
		writeError(w, util.NewInputError("members requires a level query parameter", nil))
		return
	}

	ln, err := logiclayer.ResolveLevelRef(cube, cubeCache, levelParam)
	if err != nil {
		writeError(w, err)
		return
	}
	lm := cubeCache.LevelMembers(ln)
	if lm == nil {
		writeError(w, util.NewCacheError(fmt.Sprintf("no cached members for level %s", ln), nil))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"level": ln.String(), "members": lm.Members})
}

// handleRelations serves /relations[.format]: given cube, a level or
// dimension name, and a member id, resolves that id's parent, children,
// and neighbors exactly as the logic-layer's cut operators would —
// :neighbors on a geo level calls the configured geoservice.
func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	cubeName := v.Get("cube")
	key := v.Get("level")
	if key == "" {
		key = v.Get("dimension")
	}
	id := v.Get("id")
	if cubeName == "" || key == "" || id == "" {
		writeError(w, util.NewInputError("relations requires cube, level (or dimension), and id", nil))
		return
	}
	if s.LogicLayer != nil {
		cubeName = s.LogicLayer.CanonicalCube(cubeName)
	}

	cube := s.Schema.Get().CubeByName(cubeName)
	if cube == nil {
		writeError(w, util.NewSchemaError("unknown cube", nil))
		return
	}
	if s.Cache == nil {
		writeError(w, util.NewCacheError("members cache is not configured on this server", nil))
		return
	}
	cubeCache := s.Cache.Get().CubeByName(cubeName)
	if cubeCache == nil {
		writeError(w, util.NewCacheError(fmt.Sprintf("no members cache for cube %q", cubeName), nil))
		return
	}

	ln, err := logiclayer.ResolveCutTarget(cube, cubeCache, key, id)
	if err != nil {
		writeError(w, err)
		return
	}
	lm := cubeCache.LevelMembers(ln)
	if lm == nil {
		writeError(w, util.NewCacheError(fmt.Sprintf("no cached members for level %s", ln), nil))
		return
	}

	resp := map[string]any{
		"level":    ln.String(),
		"id":       id,
		"parent":   lm.Parent[id],
		"children": lm.Children[id],
	}
	if cubeCache.GeoLevels[ln] && s.Geo != nil {
		neighbors, err := s.Geo.Neighbors(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		resp["neighbors"] = neighbors
	} else {
		resp["neighbors"] = lm.Neighbors(id, 2)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDiagnosis serves /diagnosis[.format]: two data-quality probes
// per cube, `cube=<name>` selected from the query string. Non-unique
// dimension keys come straight from the members cache's id->levels
// inverse map; orphan dimension ids require one extra probe per
// database-backed hierarchy (fact-table foreign keys absent from the
// dimension table's own key column).
func (s *Server) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	cubeName := r.URL.Query().Get("cube")
	if cubeName == "" {
		writeError(w, util.NewInputError("diagnosis requires a cube query parameter", nil))
		return
	}
	if s.LogicLayer != nil {
		cubeName = s.LogicLayer.CanonicalCube(cubeName)
	}

	cube := s.Schema.Get().CubeByName(cubeName)
	if cube == nil {
		writeError(w, util.NewSchemaError("unknown cube", nil))
		return
	}
	if s.Cache == nil {
		writeError(w, util.NewCacheError("members cache is not configured on this server", nil))
		return
	}
	cubeCache := s.Cache.Get().CubeByName(cubeName)
	if cubeCache == nil {
		writeError(w, util.NewCacheError(fmt.Sprintf("no members cache for cube %q", cubeName), nil))
		return
	}

	nonUnique := map[string][]string{}
	orphans := map[string][]string{}
	for _, dim := range cube.Dimensions {
		if ids := cubeCache.NonUniqueIDs(dim.Name); len(ids) > 0 {
			nonUnique[dim.Name] = ids
		}

		ids, err := orphanIDs(r.Context(), s.Backend, cube, dim)
		if err != nil {
			s.Logger.ErrorContext(r.Context(), "diagnosis orphan probe failed", "dimension", dim.Name, "error", err)
			continue
		}
		if len(ids) > 0 {
			orphans[dim.Name] = ids
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cube":                      cube.Name,
		"non_unique_dimension_keys": nonUnique,
		"orphan_dimension_ids":      orphans,
	})
}

// orphanIDs probes for fact-table foreign key values that have no
// matching row in the bottom level of dim's first database-backed
// hierarchy; inline-table hierarchies have nothing to probe against and
// are skipped.
func orphanIDs(ctx context.Context, be backend.Backend, cube *schema.Cube, dim *schema.Dimension) ([]string, error) {
	for _, hier := range dim.Hierarchies {
		if hier.InlineTable != nil || len(hier.Levels) == 0 {
			continue
		}
		bottom := hier.Levels[len(hier.Levels)-1]
		table := hier.SourceTable(cube.Table)
		sqlStr := fmt.Sprintf(
			"select distinct %s from %s where %s not in (select distinct %s from %s)",
			dim.ForeignKey, cube.Table.FullName(), dim.ForeignKey, bottom.KeyColumn, table.FullName(),
		)
		df, err := be.ExecSQL(ctx, sqlStr)
		if err != nil {
			return nil, err
		}
		rows := df.Stringify()
		out := make([]string, 0, len(rows))
		for _, row := range rows {
			if len(row) > 0 {
				out = append(out, row[0])
			}
		}
		sort.Strings(out)
		return out, nil
	}
	return nil, nil
}

// formatParam reads the format from a ".{format}" chi route param if
// present, falling back to a "format" query string value.
func formatParam(r *http.Request) string {
	if f := chi.URLParam(r, "format"); f != "" {
		return f
	}
	return r.URL.Query().Get("format")
}

func parseQuery(r *http.Request, cube string) (*query.Query, error) {
	if cube == "" {
		return nil, util.NewInputError("missing cube name", nil)
	}
	v := r.URL.Query()
	q := &query.Query{Cube: cube}

	for _, raw := range v["drilldown"] {
		dn, err := names.ParseLevelName(raw)
		if err != nil {
			return nil, err
		}
		q.Drilldowns = append(q.Drilldowns, dn)
	}

	for _, raw := range v["cut"] {
		c, err := names.ParseCut(raw)
		if err != nil {
			return nil, err
		}
		q.Cuts = append(q.Cuts, c)
	}

	for _, raw := range v["measures"] {
		for _, name := range strings.Split(raw, ",") {
			if name == "" {
				continue
			}
			q.Measures = append(q.Measures, query.MeasureRef{Name: names.ParseMeasure(name).Name})
		}
	}

	for _, raw := range v["properties"] {
		p, err := names.ParseProperty(raw)
		if err != nil {
			return nil, err
		}
		q.Properties = append(q.Properties, query.PropertyRef{Property: p})
	}

	for _, raw := range v["captions"] {
		p, err := names.ParseProperty(raw)
		if err != nil {
			return nil, err
		}
		q.Captions = append(q.Captions, query.PropertyRef{Property: p})
	}

	q.Parents = boolParam(v, "parents")
	q.Debug = boolParam(v, "debug")
	q.Sparse = boolParam(v, "sparse")
	q.ExcludeDefaultMembers = boolParam(v, "exclude_default_members")

	q.Sort = parseSort(v)

	var err error
	if q.Limit, err = parseLimit(v); err != nil {
		return nil, err
	}
	if q.Growth, err = parseGrowth(v); err != nil {
		return nil, err
	}
	if q.Rate, err = parseRate(v); err != nil {
		return nil, err
	}
	if q.RCA, err = parseRCA(v); err != nil {
		return nil, err
	}
	if q.Top, err = parseTop(v); err != nil {
		return nil, err
	}
	if q.TopWhere, err = parseTopWhere(v); err != nil {
		return nil, err
	}
	if q.Filters, err = parseFilters(v); err != nil {
		return nil, err
	}

	return q, nil
}

// logicLayerReservedParams names every query parameter the logic-layer
// query string gives a fixed meaning to. Anything else is a
// dimension-or-unique-level-keyed cut (spec §6's "all of the core
// aggregate query string, plus ... Dimension-keyed or level-keyed
// cuts"), so the reserved set has to be checked before falling through
// to cut parsing.
var logicLayerReservedParams = map[string]bool{
	"cube": true, "format": true, "time": true, "exclude": true, "locale": true,
	"drilldowns": true, "drilldown": true, "measures": true, "properties": true, "captions": true,
	"parents": true, "debug": true, "sparse": true, "exclude_default_members": true,
	"sort": true, "limit": true, "growth": true, "rate": true, "rca": true,
	"top": true, "top_where": true, "filters": true, "cut": true,
}

func parseLogicLayerRequest(r *http.Request) (*logiclayer.Request, error) {
	v := r.URL.Query()
	cubeName := v.Get("cube")
	if cubeName == "" {
		return nil, util.NewInputError("missing cube name", nil)
	}
	req := &logiclayer.Request{Cube: cubeName}

	if raw := v.Get("time"); raw != "" {
		for _, seg := range strings.Split(raw, ",") {
			m, err := logiclayer.ParseTimeMacro(seg)
			if err != nil {
				return nil, err
			}
			req.Time = append(req.Time, m)
		}
	}

	for _, raw := range v["drilldowns"] {
		req.Drilldowns = append(req.Drilldowns, strings.Split(raw, ",")...)
	}
	for _, raw := range v["drilldown"] {
		req.Drilldowns = append(req.Drilldowns, raw)
	}

	for _, raw := range v["measures"] {
		for _, name := range strings.Split(raw, ",") {
			if name == "" {
				continue
			}
			req.Measures = append(req.Measures, query.MeasureRef{Name: names.ParseMeasure(name).Name})
		}
	}

	for _, raw := range v["properties"] {
		p, err := names.ParseProperty(raw)
		if err != nil {
			return nil, err
		}
		req.Properties = append(req.Properties, query.PropertyRef{Property: p})
	}
	for _, raw := range v["captions"] {
		p, err := names.ParseProperty(raw)
		if err != nil {
			return nil, err
		}
		req.Captions = append(req.Captions, query.PropertyRef{Property: p})
	}

	req.Parents = boolParam(v, "parents")
	req.Debug = boolParam(v, "debug")
	req.Sparse = boolParam(v, "sparse")
	req.ExcludeDefaultMembers = boolParam(v, "exclude_default_members")

	req.Sort = parseSort(v)

	var err error
	if req.Limit, err = parseLimit(v); err != nil {
		return nil, err
	}
	if req.Growth, err = parseGrowth(v); err != nil {
		return nil, err
	}
	if req.Rate, err = parseRate(v); err != nil {
		return nil, err
	}
	if req.RCA, err = parseRCA(v); err != nil {
		return nil, err
	}
	if req.Top, err = parseTop(v); err != nil {
		return nil, err
	}
	if req.TopWhere, err = parseTopWhere(v); err != nil {
		return nil, err
	}
	if req.Filters, err = parseFilters(v); err != nil {
		return nil, err
	}

	for _, raw := range v["exclude"] {
		for _, clause := range strings.Split(raw, ";") {
			ec, err := logiclayer.ParseExclude(clause)
			if err != nil {
				return nil, err
			}
			req.Exclude = append(req.Exclude, ec)
		}
	}

	cutKeys := make([]string, 0, len(v))
	for key := range v {
		if !logicLayerReservedParams[key] {
			cutKeys = append(cutKeys, key)
		}
	}
	sort.Strings(cutKeys)
	for _, key := range cutKeys {
		for _, raw := range v[key] {
			req.Cuts = append(req.Cuts, logiclayer.RawCut{Key: key, Values: strings.Split(raw, ",")})
		}
	}

	return req, nil
}

func parseSort(v url.Values) *query.SortQuery {
	raw := v.Get("sort")
	if raw == "" {
		return nil
	}
	parts := strings.SplitN(raw, ".", 2)
	dir := query.SortAsc
	if len(parts) == 2 && strings.EqualFold(parts[1], "desc") {
		dir = query.SortDesc
	}
	return &query.SortQuery{Column: parseMeaOrCalc(parts[0]), Direction: dir}
}

func parseLimit(v url.Values) (*query.LimitQuery, error) {
	raw := v.Get("limit")
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	n, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, util.NewInputError("invalid limit", err)
	}
	lim := &query.LimitQuery{N: n}
	if len(parts) == 2 {
		off, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, util.NewInputError("invalid limit offset", err)
		}
		lim.Offset = &off
	}
	return lim, nil
}

func parseGrowth(v url.Values) (*query.GrowthQuery, error) {
	raw := v.Get("growth")
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return nil, util.NewInputError("growth must be time_level,measure", nil)
	}
	ln, err := names.ParseLevelName(parts[0])
	if err != nil {
		return nil, err
	}
	return &query.GrowthQuery{TimeDrill: ln, Measure: parts[1]}, nil
}

func parseRate(v url.Values) (*query.RateQuery, error) {
	raw := v.Get("rate")
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return nil, util.NewInputError("rate must be level:member1,member2", nil)
	}
	ln, err := names.ParseLevelName(parts[0])
	if err != nil {
		return nil, err
	}
	return &query.RateQuery{LevelName: ln, MemberValues: strings.Split(parts[1], ",")}, nil
}

func parseRCA(v url.Values) (*query.RCAQuery, error) {
	raw := v.Get("rca")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return nil, util.NewInputError("rca must be drill1,drill2,measure", nil)
	}
	d1, err := names.ParseLevelName(parts[0])
	if err != nil {
		return nil, err
	}
	d2, err := names.ParseLevelName(parts[1])
	if err != nil {
		return nil, err
	}
	return &query.RCAQuery{Drill1: d1, Drill2: d2, Measure: parts[2]}, nil
}

// parseTop parses `top=N,ByLevel,SortExpr[,dir]`.
func parseTop(v url.Values) (*query.TopQuery, error) {
	raw := v.Get("top")
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) < 3 {
		return nil, util.NewInputError("top must be N,ByLevel,SortExpr[,dir]", nil)
	}
	n, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, util.NewInputError("invalid top N", err)
	}
	byLevel, err := names.ParseLevelName(parts[1])
	if err != nil {
		return nil, err
	}
	dir := query.SortDesc
	if len(parts) >= 4 && strings.EqualFold(parts[3], "asc") {
		dir = query.SortAsc
	}
	return &query.TopQuery{
		N:           n,
		ByDimension: byLevel,
		SortExprs:   []query.MeaOrCalc{parseMeaOrCalc(parts[2])},
		Direction:   dir,
	}, nil
}

// parseTopWhere parses `top_where=mea_or_calc,<cmp>.<n>`.
func parseTopWhere(v url.Values) (*query.TopWhereQuery, error) {
	raw := v.Get("top_where")
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return nil, util.NewInputError("top_where must be mea_or_calc,<cmp>.<n>", nil)
	}
	constraint, err := parseConstraint(parts[1])
	if err != nil {
		return nil, err
	}
	return &query.TopWhereQuery{By: parseMeaOrCalc(parts[0]), Constraint: constraint}, nil
}

// parseFilters parses one or more `filters=mea_or_calc,<cmp>.<n>[,<and|or>,<cmp>.<n>]`
// entries (repeated query parameters chain as independent filters).
func parseFilters(v url.Values) ([]query.FilterQuery, error) {
	var out []query.FilterQuery
	for _, raw := range v["filters"] {
		fq, err := parseFilterQuery(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, fq)
	}
	return out, nil
}

func parseFilterQuery(raw string) (query.FilterQuery, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return query.FilterQuery{}, util.NewInputError(
			"filters must be mea_or_calc,<cmp>.<n>[,<and|or>,<cmp>.<n>]", nil)
	}
	constraint, err := parseConstraint(parts[1])
	if err != nil {
		return query.FilterQuery{}, err
	}
	fq := query.FilterQuery{By: parseMeaOrCalc(parts[0]), Constraint: constraint}
	if len(parts) >= 4 {
		switch strings.ToLower(parts[2]) {
		case "and":
			fq.Op = query.FilterOpAnd
		case "or":
			fq.Op = query.FilterOpOr
		default:
			return query.FilterQuery{}, util.NewInputError(
				fmt.Sprintf("filter chain operator %q must be and/or", parts[2]), nil)
		}
		c2, err := parseConstraint(parts[3])
		if err != nil {
			return query.FilterQuery{}, err
		}
		fq.Constraint2 = c2
	}
	return fq, nil
}

// parseMeaOrCalc resolves a sort/top_where/filter expression to either
// a named measure or one of the reserved calculation result columns.
func parseMeaOrCalc(s string) query.MeaOrCalc {
	switch s {
	case "rca":
		return query.MeaOrCalc{Kind: query.CalcRCA}
	case "growth":
		return query.MeaOrCalc{Kind: query.CalcGrowth}
	case "rate":
		return query.MeaOrCalc{Kind: query.CalcRate}
	default:
		return query.MeaOrCalc{Kind: query.CalcMeasure, Name: s}
	}
}

// parseConstraint parses a `<cmp>.<n>` pair, where cmp is one of
// eq/neq/lt/lte/gt/gte.
func parseConstraint(s string) (query.Constraint, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return query.Constraint{}, util.NewInputError(fmt.Sprintf("constraint %q must be <cmp>.<n>", s), nil)
	}
	n, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return query.Constraint{}, util.NewInputError(fmt.Sprintf("constraint %q has an invalid number", s), err)
	}

	var op query.Comparison
	switch parts[0] {
	case "eq":
		op = query.CmpEQ
	case "neq":
		op = query.CmpNEQ
	case "lt":
		op = query.CmpLT
	case "lte":
		op = query.CmpLTE
	case "gt":
		op = query.CmpGT
	case "gte":
		op = query.CmpGTE
	default:
		return query.Constraint{}, util.NewInputError(fmt.Sprintf("constraint %q has an unknown operator %q", s, parts[0]), nil)
	}
	return query.Constraint{Op: op, N: n}, nil
}

func boolParam(v map[string][]string, key string) bool {
	raw, ok := v[key]
	if !ok || len(raw) == 0 {
		return false
	}
	b, _ := strconv.ParseBool(raw[0])
	return b
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var cat util.ErrorCategory
	if te, ok := err.(util.TesseractError); ok {
		cat = te.Category()
		status = util.StatusCode(cat)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
