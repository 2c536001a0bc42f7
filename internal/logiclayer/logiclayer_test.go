package logiclayer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/cache"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/query"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/schema/aggregator"
)

func testSchema() *schema.Schema {
	return &schema.Schema{
		Name: "test",
		Cubes: []*schema.Cube{
			{
				Name:  "sales",
				Table: schema.Table{Name: "fact_sales"},
				Dimensions: []*schema.Dimension{
					{
						Name:       "geography",
						ForeignKey: "geography_id",
						Hierarchies: []*schema.Hierarchy{
							{
								Name:       "geography",
								Table:      &schema.Table{Name: "dim_geography"},
								PrimaryKey: "id",
								Levels: []*schema.Level{
									{Name: "country", KeyColumn: "country_id"},
									{Name: "state", KeyColumn: "state_id"},
								},
							},
						},
					},
					{
						Name:       "time",
						ForeignKey: "time_id",
						Kind:       schema.DimensionTime,
						Hierarchies: []*schema.Hierarchy{
							{
								Name:       "time",
								Table:      &schema.Table{Name: "dim_time"},
								PrimaryKey: "id",
								Levels: []*schema.Level{
									{Name: "year", KeyColumn: "year"},
								},
							},
						},
					},
				},
				Measures: []*schema.Measure{
					{Name: "Sales", Column: "amount", Aggregator: aggregator.Aggregator{Kind: aggregator.KindSum}},
				},
			},
		},
	}
}

// buildTestCube constructs a members cache for the test schema's one
// cube directly (bypassing cache.Build/a fake backend), since these
// tests only exercise the rewriter, not member probing.
func buildTestCube() *cache.Cube {
	ctx := context.Background()
	fb := &stubProbeBackend{byQuery: map[string]*dataframe.DataFrame{
		"select distinct country_id from dim_geography order by country_id": dataframe.New(
			textCol("country_id", "us", "mx"),
		),
		"select distinct state_id, country_id from dim_geography order by state_id": dataframe.New(
			textCol("state_id", "ca"),
			textCol("country_id", "us"),
		),
		"select distinct year from dim_time order by year": dataframe.New(
			textCol("year", "2019", "2020", "2021"),
		),
	}}
	c, err := cache.Build(ctx, fb, testSchema())
	if err != nil {
		panic(err)
	}
	return c.CubeByName("sales")
}

// stubProbeBackend answers cache.Build's probe queries with fixed rows
// covering a small country/state hierarchy and a three-year time range.
type stubProbeBackend struct {
	byQuery map[string]*dataframe.DataFrame
}

func (b *stubProbeBackend) Kind() string { return "stub" }
func (b *stubProbeBackend) GenerateSQL(ir *queryir.QueryIR) (string, error) { return "", nil }
func (b *stubProbeBackend) ExecSQL(ctx context.Context, sqlStr string) (*dataframe.DataFrame, error) {
	if df, ok := b.byQuery[sqlStr]; ok {
		return df, nil
	}
	return dataframe.New(), nil
}
func (b *stubProbeBackend) ExecSQLStream(ctx context.Context, sqlStr string) (<-chan *dataframe.DataFrame, <-chan error) {
	return nil, nil
}
func (b *stubProbeBackend) CheckUser(ctx context.Context, user, pass string) (bool, error) {
	return true, nil
}
func (b *stubProbeBackend) Clone() backend.Backend { return b }
func (b *stubProbeBackend) Close() error           { return nil }

var _ backend.Backend = (*stubProbeBackend)(nil)

func textCol(name string, values ...string) *dataframe.Column {
	col := dataframe.NewColumn(name, dataframe.KindText, len(values))
	col.Texts = append(col.Texts, values...)
	return col
}

type recordingRunner struct {
	calls []*query.Query
	df    *dataframe.DataFrame
}

func (r *recordingRunner) Run(ctx context.Context, q *query.Query) (string, *dataframe.DataFrame, error) {
	r.calls = append(r.calls, q)
	return "select 1", r.df, nil
}

func TestParseTimeMacro(t *testing.T) {
	m, err := ParseTimeMacro("year.latest")
	require.NoError(t, err)
	assert.Equal(t, TimeMacro{Precision: "year", Selector: TimeLatest}, m)

	m, err = ParseTimeMacro("year.oldest")
	require.NoError(t, err)
	assert.Equal(t, TimeOldest, m.Selector)

	m, err = ParseTimeMacro("year.2")
	require.NoError(t, err)
	assert.Equal(t, TimeOffset, m.Selector)
	assert.Equal(t, 2, m.Offset)

	_, err = ParseTimeMacro("badmacro")
	assert.Error(t, err)
}

func TestParseCutOperator(t *testing.T) {
	id, op := ParseCutOperator("ca:children")
	assert.Equal(t, "ca", id)
	assert.Equal(t, OpChildren, op)

	id, op = ParseCutOperator("ca:parents")
	assert.Equal(t, "ca", id)
	assert.Equal(t, OpParents, op)

	id, op = ParseCutOperator("ca:neighbors")
	assert.Equal(t, "ca", id)
	assert.Equal(t, OpNeighbors, op)

	id, op = ParseCutOperator("ca")
	assert.Equal(t, "ca", id)
	assert.Equal(t, OpNone, op)
}

func TestFanOutSingleLevelPerDimensionStaysOneQuery(t *testing.T) {
	geo := names.NewLevelName("geography", "geography", "state")
	yr := names.NewLevelName("time", "time", "year")
	cuts := []names.Cut{
		names.NewCut(geo, []string{"ca"}, names.MaskInclude, false),
		names.NewCut(yr, []string{"2020"}, names.MaskInclude, false),
	}
	combos := fanOut(cuts)
	require.Len(t, combos, 1)
	assert.Len(t, combos[0], 2)
}

func TestFanOutMultipleLevelsProduceSiblings(t *testing.T) {
	country := names.NewLevelName("geography", "geography", "country")
	state := names.NewLevelName("geography", "geography", "state")
	cuts := []names.Cut{
		names.NewCut(country, []string{"us"}, names.MaskInclude, false),
		names.NewCut(state, []string{"ca"}, names.MaskInclude, false),
	}
	combos := fanOut(cuts)
	require.Len(t, combos, 2)
	for _, combo := range combos {
		assert.Len(t, combo, 1)
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, dedupe([]string{"a", "b", "a"}))
}

func TestRenameHeadersKeyColumnsAndMeasures(t *testing.T) {
	cube := testSchema().CubeByName("sales")
	df := dataframe.New(
		textCol("country_id", "us"),
		dataframe.NewColumn("final_m0", dataframe.KindFloat64, 1),
	)
	df.Columns[1].F64s = append(df.Columns[1].F64s, 42)

	renameHeaders(df, cube, nil, []string{"Sales"})
	assert.Equal(t, "geography ID", df.Columns[0].Name)
	assert.Equal(t, "Sales", df.Columns[1].Name)
}

func TestMergeFramesSameKind(t *testing.T) {
	a := dataframe.New(textCol("country_id", "us"))
	b := dataframe.New(textCol("country_id", "mx"))
	merged, err := mergeFrames([]*dataframe.DataFrame{a, b})
	require.NoError(t, err)
	require.Len(t, merged.Columns, 1)
	assert.Equal(t, []string{"us", "mx"}, merged.Columns[0].Texts)
}

func TestMergeFramesTypeDowngrade(t *testing.T) {
	intCol := dataframe.NewColumn("m0", dataframe.KindInt64, 1)
	intCol.Ints = append(intCol.Ints, 5)
	a := dataframe.New(intCol)

	floatCol := dataframe.NewColumn("m0", dataframe.KindFloat64, 1)
	floatCol.F64s = append(floatCol.F64s, 6.5)
	b := dataframe.New(floatCol)

	merged, err := mergeFrames([]*dataframe.DataFrame{a, b})
	require.NoError(t, err)
	require.Len(t, merged.Columns, 1)
	assert.Equal(t, dataframe.KindText, merged.Columns[0].Kind)
	assert.Equal(t, []string{"5", "6.5"}, merged.Columns[0].Texts)
}

func TestApplyExcludesDropsMatchingRows(t *testing.T) {
	cube := testSchema().CubeByName("sales")
	countryCol := textCol("country_id", "us", "mx")
	measureCol := dataframe.NewColumn("final_m0", dataframe.KindFloat64, 2)
	measureCol.F64s = append(measureCol.F64s, 1, 2)
	df := dataframe.New(countryCol, measureCol)

	err := applyExcludes(df, cube, nil, []ExcludeClause{{Level: "country_id", Values: []string{"mx"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"us"}, df.Columns[0].Texts)
	assert.Equal(t, []float64{1}, df.Columns[1].F64s)
}

func TestRewriteResolvesTimeMacroAndRunsOneSiblingQuery(t *testing.T) {
	sch := testSchema()
	cubeCache := buildTestCube()
	runner := &recordingRunner{df: dataframe.New(textCol("year", "2021"))}

	req := &Request{
		Cube:       "sales",
		Time:       []TimeMacro{{Precision: "year", Selector: TimeLatest}},
		Drilldowns: []string{"time.year"},
	}

	result, err := Rewrite(context.Background(), sch, cubeCache, nil, nil, runner, req)
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	require.Len(t, runner.calls[0].Cuts, 1)
	assert.Equal(t, []string{"2021"}, runner.calls[0].Cuts[0].Members)
	assert.NotNil(t, result.DataFrame)
}

func TestRewriteUnknownCubeErrors(t *testing.T) {
	sch := testSchema()
	cubeCache := buildTestCube()
	runner := &recordingRunner{df: dataframe.New()}

	_, err := Rewrite(context.Background(), sch, cubeCache, nil, nil, runner, &Request{Cube: "missing"})
	assert.Error(t, err)
}

func TestRewriteNamedSetExpandsDrilldownAndCut(t *testing.T) {
	sch := testSchema()
	cubeCache := buildTestCube()
	runner := &recordingRunner{df: dataframe.New(textCol("state_id", "ca"))}

	stateLevel := names.NewLevelName("geography", "geography", "state")
	cfg := &Config{
		NamedSets: map[string]NamedSet{
			"west_coast": {Level: stateLevel, Members: []string{"ca", "or", "wa"}},
		},
	}

	req := &Request{Cube: "sales", Drilldowns: []string{"west_coast"}}
	result, err := Rewrite(context.Background(), sch, cubeCache, nil, cfg, runner, req)
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []names.LevelName{stateLevel}, runner.calls[0].Drilldowns)
	require.Len(t, runner.calls[0].Cuts, 1)
	assert.ElementsMatch(t, []string{"ca", "or", "wa"}, runner.calls[0].Cuts[0].Members)
	assert.NotNil(t, result)
}
