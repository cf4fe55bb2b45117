package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thruflo/goalboard/internal/config"
)

// SetupTestDir creates a temporary project directory whose config runs the
// agent without delays and keeps history inside the directory.
func SetupTestDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	content := `agent:
  max_iterations: 12
  settle_delay: 0s
  step_delay: 0s
server:
  port: 0
history:
  path: ` + filepath.Join(dir, "history.db") + `
logging:
  level: error
`
	WriteTestFile(t, dir, filepath.Join(config.DirName, "config.yaml"), []byte(content))
	return dir
}

// MustMarshalJSON marshals a value to JSON, failing the test on error.
func MustMarshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// MustUnmarshalJSON unmarshals JSON data into v, failing the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

// WriteTestFile writes content to a file in the test directory.
// Creates parent directories as needed.
func WriteTestFile(t *testing.T, basePath, relativePath string, content []byte) {
	t.Helper()
	fullPath := filepath.Join(basePath, relativePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, content, 0o644))
}
