package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaJSON = `{
  "name": "test",
  "cubes": [
    {
      "name": "sales",
      "table": {"name": "fact_sales"},
      "dimensions": [],
      "measures": [
        {"name": "quantity", "column": "quantity", "aggregator": "sum"}
      ]
    }
  ]
}`

func writeFixture(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestValidateSchemaCommand(t *testing.T) {
	schemaPath := writeFixture(t, "schema.json", testSchemaJSON)
	configPath := writeFixture(t, "tesseract.yaml", "schema_path: "+schemaPath+"\n")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.out = &out
	root.SetArgs([]string{"--config", configPath, "validate-schema"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1 cube(s) ok")
}

func TestValidateSchemaCommandMissingSchema(t *testing.T) {
	configPath := writeFixture(t, "tesseract.yaml", "schema_path: "+filepath.Join(t.TempDir(), "missing.json")+"\n")

	root := newRootCommand()
	root.SetArgs([]string{"--config", configPath, "validate-schema"})

	assert.Error(t, root.Execute())
}

func TestRootDefaultsConfigFlag(t *testing.T) {
	root := newRootCommand()
	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "tesseract.yaml", flag.DefValue)
}
