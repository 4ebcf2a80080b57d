package prompt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSchemaIsValidJSON(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(RecordSchema), &m))

	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	for _, k := range []string{"commonName", "scientificName", "dimensions", "climateZones", "cultivation", "ecologicalRole", "description"} {
		assert.Contains(t, props, k)
	}
}

func TestLoad(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Identify, s)

	dir := t.TempDir()
	p := filepath.Join(dir, "custom.txt")
	require.NoError(t, os.WriteFile(p, []byte("  identify this plant \n"), 0o600))
	s, err = Load(p)
	require.NoError(t, err)
	assert.Equal(t, "identify this plant", s)

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = Load(empty)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestWithSchema(t *testing.T) {
	s := WithSchema("hello")
	assert.Contains(t, s, "hello")
	assert.Contains(t, s, `"scientificName"`)
}
