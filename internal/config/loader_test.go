package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, DirName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return tmpDir
}

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxIterations, cfg.Agent.MaxIterations)
	assert.Equal(t, DefaultSettleDelay, cfg.Agent.SettleDelay)
	assert.Equal(t, DefaultStepDelay, cfg.Agent.StepDelay)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultHistoryPath, cfg.History.Path)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	dir := writeConfig(t, `agent:
  max_iterations: 20
  settle_delay: 250ms
  step_delay: 2s
server:
  port: 9000
  password_hash: "$argon2id$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"
history:
  path: /tmp/runs.db
logging:
  level: debug
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.SettleDelay)
	assert.Equal(t, 2*time.Second, cfg.Agent.StepDelay)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Server.PasswordHash)
	assert.Equal(t, "/tmp/runs.db", cfg.History.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	t.Parallel()

	dir := writeConfig(t, `agent:
  max_iterations: 5
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, DefaultStepDelay, cfg.Agent.StepDelay)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	dir := writeConfig(t, `agent: [`)

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfigFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name: "zero max_iterations",
			content: `agent:
  max_iterations: 0
`,
			field: "agent.max_iterations",
		},
		{
			name: "negative step_delay",
			content: `agent:
  step_delay: -1s
`,
			field: "agent.step_delay",
		},
		{
			name: "negative settle_delay",
			content: `agent:
  settle_delay: -5ms
`,
			field: "agent.settle_delay",
		},
		{
			name: "port out of range",
			content: `server:
  port: 70000
`,
			field: "server.port",
		},
		{
			name: "empty history path",
			content: `history:
  path: ""
`,
			field: "history.path",
		},
		{
			name: "unknown log level",
			content: `logging:
  level: loud
`,
			field: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLoadConfig_HistoryDisabledNeedsNoPath(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, `history:
  path: ""
  disabled: true
`))
	require.NoError(t, err)
	assert.True(t, cfg.History.Disabled)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Agent.StepDelay = 3 * time.Second
	cfg.Server.Port = 9100

	require.NoError(t, Save(dir, &cfg))

	loaded, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidationError{Field: "agent.max_iterations", Message: "must be positive"}
	assert.Equal(t, "validation error: agent.max_iterations: must be positive", err.Error())
	assert.False(t, IsValidationError(os.ErrNotExist))
}
