package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelNameFromParts(t *testing.T) {
	want := NewLevelName("Geography", "Geography", "County")

	got3, err := LevelNameFromParts([]string{"Geography", "Geography", "County"})
	require.NoError(t, err)
	assert.Equal(t, want, got3)

	got2, err := LevelNameFromParts([]string{"Geography", "County"})
	require.NoError(t, err)
	assert.Equal(t, want, got2)
}

func TestLevelNameFromPartsInvalid(t *testing.T) {
	_, err := LevelNameFromParts([]string{"Geography", "Geography", "County", "County"})
	assert.Error(t, err)

	_, err = LevelNameFromParts([]string{"County"})
	assert.Error(t, err)
}

func TestDrilldownFromParts(t *testing.T) {
	want := NewDrilldown("Geography", "Geography", "County")

	got, err := DrilldownFromParts([]string{"Geography", "County"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCutFromParts(t *testing.T) {
	want := NewCut(NewLevelName("Geography", "Geography", "County"), []string{"1", "2"}, MaskInclude, false)

	got, err := CutFromParts([]string{"Geography", "County"}, []string{"1", "2"}, MaskInclude, false)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPropertyFromParts(t *testing.T) {
	want := NewProperty("Geography", "Geography", "County", "name_en")

	got, err := PropertyFromParts([]string{"Geography", "County", "name_en"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseQualifiedNames(t *testing.T) {
	level := NewLevelName("Geography", "Geography", "County")
	drilldown := NewDrilldown("Geography", "Geography", "County")
	property := NewProperty("Geography", "Geography", "County", "name_en")

	for _, s := range []string{"Geography.Geography.County", "[Geography].[Geography].[County]", "Geography.County"} {
		got, err := ParseLevelName(s)
		require.NoErrorf(t, err, "parsing %q", s)
		assert.Equal(t, level, got)
	}

	for _, s := range []string{"Geography.Geography.County", "[Geography].[Geography].[County]", "Geography.County"} {
		got, err := ParseDrilldown(s)
		require.NoErrorf(t, err, "parsing %q", s)
		assert.Equal(t, drilldown, got)
	}

	for _, s := range []string{
		"Geography.Geography.County.name_en",
		"[Geography].[Geography].[County].[name_en]",
		"Geography.County.name_en",
	} {
		got, err := ParseProperty(s)
		require.NoErrorf(t, err, "parsing %q", s)
		assert.Equal(t, property, got)
	}
}

func TestParseCut(t *testing.T) {
	cut1 := NewCut(NewLevelName("Geography", "Geography", "County"), []string{"1"}, MaskInclude, false)
	cut2 := NewCut(NewLevelName("Geography", "Geography", "County"), []string{"1", "2"}, MaskInclude, false)
	cut2Not := NewCut(NewLevelName("Geography", "Geography", "County"), []string{"1", "2"}, MaskExclude, false)

	for _, s := range []string{"Geography.Geography.County.1", "[Geography].[Geography].[County].&[1]", "Geography.County.1"} {
		got, err := ParseCut(s)
		require.NoErrorf(t, err, "parsing %q", s)
		assert.Equal(t, cut1, got)
	}

	for _, s := range []string{
		"Geography.Geography.County.1,2",
		"[Geography].[Geography].[County].&[1,2]",
		"Geography.County.1,2",
		"Geography.County.&1,2",
		"Geography.County.&1,&2",
	} {
		got, err := ParseCut(s)
		require.NoErrorf(t, err, "parsing %q", s)
		assert.Equal(t, cut2, got)
	}

	got, err := ParseCut("~Geography.Geography.County.1,2")
	require.NoError(t, err)
	assert.Equal(t, cut2Not, got)
}

func TestCutString(t *testing.T) {
	cut1 := NewCut(NewLevelName("Geography", "Geography", "County"), []string{"1"}, MaskInclude, false)
	assert.Equal(t, "[Geography].[Geography].[County].&[1]", cut1.String())

	cut2Not := NewCut(NewLevelName("Geography", "Geography", "County"), []string{"1", "2"}, MaskExclude, false)
	assert.Equal(t, "~{[Geography].[Geography].[County].&[1],[Geography].[Geography].[County].&[2]}", cut2Not.String())
}

func TestPropertyDrillLevel(t *testing.T) {
	property := NewProperty("Geography", "Geography", "County", "name_en")
	assert.Equal(t, NewDrilldown("Geography", "Geography", "County"), property.DrillLevel())
}
