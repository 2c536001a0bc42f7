package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/cache"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/log"
	"github.com/tesseract-olap/tesseract/internal/query"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/schema"
	"github.com/tesseract-olap/tesseract/internal/schema/aggregator"
)

// fakeBackend skips SQL generation/execution entirely so handler tests
// don't need a live dialect registration or database.
type fakeBackend struct{ lastSQL string }

func (f *fakeBackend) Kind() string { return "fake" }

func (f *fakeBackend) GenerateSQL(ir *queryir.QueryIR) (string, error) {
	return "select 1", nil
}

func (f *fakeBackend) ExecSQL(ctx context.Context, sqlStr string) (*dataframe.DataFrame, error) {
	f.lastSQL = sqlStr
	if sqlStr == "select distinct state_id from dim_geography order by state_id" {
		col := dataframe.NewColumn("state_id", dataframe.KindText, 1)
		col.Texts = append(col.Texts, "ca")
		return dataframe.New(col), nil
	}
	col := dataframe.NewColumn("total", dataframe.KindFloat64, 0)
	col.F64s = append(col.F64s, 42)
	return dataframe.New(col), nil
}

func (f *fakeBackend) ExecSQLStream(ctx context.Context, sqlStr string) (<-chan *dataframe.DataFrame, <-chan error) {
	return nil, nil
}

func (f *fakeBackend) CheckUser(ctx context.Context, user, pass string) (bool, error) {
	return true, nil
}

func (f *fakeBackend) Clone() backend.Backend { return f }
func (f *fakeBackend) Close() error           { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

func testSchema() *schema.Schema {
	cube := &schema.Cube{
		Name:         "sales",
		Table:        schema.Table{Name: "fact_sales"},
		CanAggregate: true,
		Measures: []*schema.Measure{
			{Name: "quantity", Column: "quantity", Aggregator: aggregator.Sum()},
		},
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
							{Name: "state", KeyColumn: "state_id"},
						},
					},
				},
			},
		},
	}
	return &schema.Schema{Name: "test", Cubes: []*schema.Cube{cube}}
}

func testLogger(t *testing.T) log.Logger {
	t.Helper()
	logger, err := log.NewLogger("standard", "ERROR", nopWriter{}, nopWriter{})
	require.NoError(t, err)
	return logger
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleCubes(t *testing.T) {
	srv := &Server{Schema: schema.NewStore(testSchema()), Logger: testLogger(t)}
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cubes")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleCubeNotFound(t *testing.T) {
	srv := &Server{Schema: schema.NewStore(testSchema()), Logger: testLogger(t)}
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cubes/unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAggregate(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cubes/sales/aggregate.jsonrecords?drilldown=geography.state&measures=quantity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "data")
	assert.Equal(t, "select 1", fb.lastSQL)
}

func TestHandleAggregateDefaultsToCSV(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cubes/sales/aggregate?drilldown=geography.state&measures=quantity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
}

func TestParseQueryBasics(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/?drilldown=geography.state&measures=quantity&cut=geography.state.1,2&limit=10,5&sort=quantity.desc",
		nil)
	q, err := parseQuery(req, "sales")
	require.NoError(t, err)

	assert.Equal(t, "sales", q.Cube)
	require.Len(t, q.Drilldowns, 1)
	assert.Equal(t, "geography", q.Drilldowns[0].Dimension)
	require.Len(t, q.Measures, 1)
	assert.Equal(t, "quantity", q.Measures[0].Name)
	require.Len(t, q.Cuts, 1)
	assert.Equal(t, []string{"1", "2"}, q.Cuts[0].Members)
	require.NotNil(t, q.Limit)
	assert.Equal(t, uint64(10), q.Limit.N)
	require.NotNil(t, q.Limit.Offset)
	assert.Equal(t, uint64(5), *q.Limit.Offset)
	require.NotNil(t, q.Sort)
}

func TestParseQueryMissingCube(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := parseQuery(req, "")
	assert.Error(t, err)
}

func TestParseQueryTopWhereFilters(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/?drilldown=geography.state&measures=quantity"+
			"&top=5,geography.state,quantity,desc"+
			"&top_where=quantity,gt.10"+
			"&filters=quantity,gte.1,and,lt.100",
		nil)
	q, err := parseQuery(req, "sales")
	require.NoError(t, err)

	require.NotNil(t, q.Top)
	assert.Equal(t, uint64(5), q.Top.N)
	assert.Equal(t, "geography", q.Top.ByDimension.Dimension)
	require.Len(t, q.Top.SortExprs, 1)
	assert.Equal(t, "quantity", q.Top.SortExprs[0].Name)

	require.NotNil(t, q.TopWhere)
	assert.Equal(t, "quantity", q.TopWhere.By.Name)
	assert.Equal(t, query.CmpGT, q.TopWhere.Constraint.Op)
	assert.Equal(t, 10.0, q.TopWhere.Constraint.N)

	require.Len(t, q.Filters, 1)
	assert.Equal(t, query.FilterOpAnd, q.Filters[0].Op)
	assert.Equal(t, query.CmpGTE, q.Filters[0].Constraint.Op)
	assert.Equal(t, query.CmpLT, q.Filters[0].Constraint2.Op)
}

func withCache(t *testing.T, srv *Server, fb *fakeBackend) {
	t.Helper()
	c, err := cache.Build(context.Background(), fb, srv.Schema.Get())
	require.NoError(t, err)
	srv.Cache = cache.NewStore(c)
}

func TestHandleCubeMembers(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	withCache(t, srv, fb)
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cubes/sales/members?level=geography.state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []any{"ca"}, body["members"])
}

func TestHandleMembersFlat(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	withCache(t, srv, fb)
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/members?cube=sales&level=geography.state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleRelations(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	withCache(t, srv, fb)
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/relations?cube=sales&level=geography.state&id=ca")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ca", body["id"])
}

func TestHandleDiagnosis(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	withCache(t, srv, fb)
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/diagnosis?cube=sales")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleFlushDisabledByDefault(t *testing.T) {
	srv := &Server{Schema: schema.NewStore(testSchema()), Logger: testLogger(t)}
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/flush", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusAccepted, resp.StatusCode)
}

func TestHandleFlushReloadsSchemaAndCache(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	withCache(t, srv, fb)
	srv.Reload = func(ctx context.Context) (*schema.Schema, *cache.Cache, error) {
		sch := testSchema()
		c, err := cache.Build(ctx, fb, sch)
		return sch, c, err
	}
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/flush", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHandleLogicLayerData(t *testing.T) {
	fb := &fakeBackend{}
	srv := &Server{Schema: schema.NewStore(testSchema()), Backend: fb, Logger: testLogger(t)}
	withCache(t, srv, fb)
	router := NewRouter(srv)

	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/data?cube=sales&drilldowns=geography.state&measures=quantity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}
