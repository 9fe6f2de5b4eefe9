package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kacperjurak/goedxcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goedxfit.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[refinement]
max_cycles = 4
parallel = true

[server]
port = "9090"
webhook_url = "http://localhost:3001/webhook"
webhook_timeout = "5s"

[log]
level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Refinement.MaxCycles)
	assert.True(t, cfg.Refinement.Parallel)
	assert.Equal(t, goedxcore.DefaultConfig().MinChiChange, cfg.Refinement.MinChiChange)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.WebhookTimeout.Duration)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, 5, cfg.Server.WorkerCount)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[refinement]\nmax_cycle = 3\n"))
	assert.ErrorContains(t, err, "unknown config keys")

	_, err = Load(writeConfig(t, "[refinement]\nmax_cycles = 0\n"))
	assert.ErrorIs(t, err, goedxcore.ErrInvalidInput)

	_, err = Load(writeConfig(t, "[server]\nwebhook_timeout = \"soon\"\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "[log]\nlevel = \"loud\"\n"))
	assert.Error(t, err)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	path := writeConfig(t, "[server]\nworker_count = 2\n")
	t.Setenv("GOEDXFIT_TEST_DIR", filepath.Dir(path))

	cfg, err := Load("$GOEDXFIT_TEST_DIR/" + filepath.Base(path))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Server.WorkerCount)
}

func TestLogConfig_Logger(t *testing.T) {
	log, err := LogConfig{Level: "warn"}.Logger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	_, err = LogConfig{Level: "loud"}.Logger()
	assert.Error(t, err)
}
