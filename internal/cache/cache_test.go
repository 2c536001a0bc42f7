package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-olap/tesseract/internal/backend"
	"github.com/tesseract-olap/tesseract/internal/dataframe"
	"github.com/tesseract-olap/tesseract/internal/names"
	"github.com/tesseract-olap/tesseract/internal/queryir"
	"github.com/tesseract-olap/tesseract/internal/schema"
)

// fakeBackend answers every ExecSQL call with a canned DataFrame keyed
// by the issued SQL text, so cache.Build can be tested without a real
// warehouse connection.
type fakeBackend struct {
	byQuery map[string]*dataframe.DataFrame
}

func (f *fakeBackend) Kind() string { return "fake" }
func (f *fakeBackend) GenerateSQL(ir *queryir.QueryIR) (string, error) { return "", nil }
func (f *fakeBackend) ExecSQL(ctx context.Context, sqlStr string) (*dataframe.DataFrame, error) {
	df, ok := f.byQuery[sqlStr]
	if !ok {
		return dataframe.New(), nil
	}
	return df, nil
}
func (f *fakeBackend) ExecSQLStream(ctx context.Context, sqlStr string) (<-chan *dataframe.DataFrame, <-chan error) {
	return nil, nil
}
func (f *fakeBackend) CheckUser(ctx context.Context, user, pass string) (bool, error) { return true, nil }
func (f *fakeBackend) Clone() backend.Backend                                         { return f }
func (f *fakeBackend) Close() error                                                    { return nil }

var _ backend.Backend = (*fakeBackend)(nil)

func textColumn(name string, values ...string) *dataframe.Column {
	col := dataframe.NewColumn(name, dataframe.KindText, len(values))
	col.Texts = append(col.Texts, values...)
	return col
}

func testCubeSchema() *schema.Cube {
	return &schema.Cube{
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
	}
}

func TestBuildCubeParentChildNeighbors(t *testing.T) {
	fb := &fakeBackend{byQuery: map[string]*dataframe.DataFrame{
		"select distinct country_id from dim_geography order by country_id": dataframe.New(
			textColumn("country_id", "us"),
		),
		"select distinct state_id, country_id from dim_geography order by state_id": dataframe.New(
			textColumn("state_id", "ca"),
			textColumn("country_id", "us"),
		),
		"select distinct year from dim_time order by year": dataframe.New(
			textColumn("year", "2020", "2019", "2021"),
		),
	}}

	sch := &schema.Schema{Name: "test", Cubes: []*schema.Cube{testCubeSchema()}}
	c, err := Build(context.Background(), fb, sch)
	require.NoError(t, err)

	cube := c.CubeByName("sales")
	require.NotNil(t, cube)

	stateLevel := names.NewLevelName("geography", "geography", "state")
	lm := cube.LevelMembers(stateLevel)
	require.NotNil(t, lm)
	assert.Equal(t, []string{"ca"}, lm.Members)
	assert.Equal(t, "us", lm.Parent["ca"])

	countryLevel := names.NewLevelName("geography", "geography", "country")
	countryMembers := cube.LevelMembers(countryLevel)
	assert.Equal(t, []string{"ca"}, countryMembers.Children["us"])

	ln, err := cube.ResolveDimensionID("geography", "ca")
	require.NoError(t, err)
	assert.Equal(t, stateLevel, ln)

	_, err = cube.ResolveDimensionID("geography", "missing")
	assert.Error(t, err)

	yearLevel := names.NewLevelName("time", "time", "year")
	assert.Equal(t, []string{"2019", "2020", "2021"}, cube.TimeValues[yearLevel])
}

func TestLevelMembersNeighbors(t *testing.T) {
	rows := [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}
	lm, err := buildLevelMembers(rows, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "d", "e"}, lm.Neighbors("c", 2))
	assert.Equal(t, []string{"b", "d"}, lm.Neighbors("c", 1))
	assert.Nil(t, lm.Neighbors("missing", 1))
}

func TestCubeNonUniqueIDs(t *testing.T) {
	cube := &Cube{
		idsByDimension: map[string]map[string][]names.LevelName{
			"geography": {
				"us": {names.NewLevelName("geography", "geography", "country")},
				"ca": {
					names.NewLevelName("geography", "geography", "state"),
					names.NewLevelName("geography", "geography", "county"),
				},
			},
		},
	}

	assert.Equal(t, []string{"ca"}, cube.NonUniqueIDs("geography"))
	assert.Nil(t, cube.NonUniqueIDs("missing"))
}

func TestStoreFlush(t *testing.T) {
	s := NewStore(&Cache{cubes: map[string]*Cube{"a": {Name: "a"}}})
	assert.Equal(t, "a", s.Get().CubeByName("a").Name)

	s.Flush(&Cache{cubes: map[string]*Cube{"b": {Name: "b"}}})
	assert.Nil(t, s.Get().CubeByName("a"))
	assert.Equal(t, "b", s.Get().CubeByName("b").Name)
}
