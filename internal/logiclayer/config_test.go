package logiclayer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-olap/tesseract/internal/names"
)

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Aliases)
	assert.Empty(t, cfg.NamedSets)
}

func TestLoadConfigParsesAliasesAndNamedSets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logiclayer.yaml")
	doc := `
aliases:
  sales_v1: sales

named_sets:
  west_coast:
    level: geography.state
    members: [ca, or, wa]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sales", cfg.Aliases["sales_v1"])

	set, ok := cfg.NamedSets["west_coast"]
	require.True(t, ok)
	assert.Equal(t, names.NewLevelName("geography", "geography", "state"), set.Level)
	assert.Equal(t, []string{"ca", "or", "wa"}, set.Members)
}
