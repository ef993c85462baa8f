package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvAPIToken, EnvBaseURL, EnvAPIVersion, EnvFormat, EnvBatchSize} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultBaseURL, cfg.Intercom.BaseURL)
	assert.Equal(t, DefaultAPIVersion, cfg.Intercom.APIVersion)
	assert.Equal(t, DefaultBatchSize, cfg.Intercom.BatchSize)
	assert.Equal(t, DefaultMaxRetries, cfg.Intercom.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Intercom.InitialBackoff())
	assert.Equal(t, 60*time.Second, cfg.Intercom.MaxBackoff())
	assert.Equal(t, DefaultFormat, cfg.Export.Format)
	assert.Equal(t, DefaultCacheFile, cfg.Export.CacheFile)
	assert.Equal(t, DefaultIDsFile, cfg.Export.IDsFile)
	assert.True(t, cfg.Export.IncludeHeaders)
	assert.Equal(t, 2*time.Hour, cfg.Export.TimeOffset())
	assert.Empty(t, cfg.Intercom.APIToken)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"

[intercom]
api_token = "tok-123"
batch_size = 25
initial_backoff_seconds = 1

[export]
format = "csv"
flatten_messages = true
time_offset_hours = 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "tok-123", cfg.Intercom.APIToken)
	assert.Equal(t, 25, cfg.Intercom.BatchSize)
	assert.Equal(t, time.Second, cfg.Intercom.InitialBackoff())
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.True(t, cfg.Export.FlattenMessages)
	assert.Equal(t, time.Duration(0), cfg.Export.TimeOffset())

	// untouched fields keep their defaults
	assert.Equal(t, DefaultBaseURL, cfg.Intercom.BaseURL)
	assert.Equal(t, DefaultMaxRetries, cfg.Intercom.MaxRetries)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[intercom]
api_token = "from-file"
batch_size = 5

[export]
format = "markdown"
`), 0o644))

	t.Setenv(EnvAPIToken, "from-env")
	t.Setenv(EnvFormat, "json")
	t.Setenv(EnvBatchSize, "40")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Intercom.APIToken)
	assert.Equal(t, "json", cfg.Export.Format)
	assert.Equal(t, 40, cfg.Intercom.BatchSize)
}

func TestEnvBatchSizeIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBatchSize, "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, cfg.Intercom.BatchSize)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[intercom\nbroken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		require.NoError(t, err)
		return cfg
	}
	clearEnv(t)

	cfg := base()
	cfg.Intercom.BatchSize = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Intercom.MaxRetries = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Intercom.BackoffFactor = 0.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Export.Format = " "
	assert.Error(t, cfg.Validate())

	assert.NoError(t, base().Validate())
}
