package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowlens/internal/validation"
)

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("FLOWLENS_HOME", t.TempDir())

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.json"), envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(flowlensDir(), "flowlens.db"), cfg.DBPath)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "v42.0", cfg.APIVersion)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Timeout))
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Empty(t, cfg.SessionID)
}

func TestLoadConfig_Layers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "db_path": "/var/lib/flowlens.db",
  "log_level": "info",
  "model": "gpt-4o",
  "instance": "acme.my.salesforce.com",
  "timeout": "45s",
  "rules": [{"code": "NO_ACTIONS", "message": "no actions", "when": "kind == \"actionCall\""}]
}`), 0o644))

	cfg, err := loadConfig(path, envOf(map[string]string{
		"FLOWLENS_LOG_LEVEL":   "debug",
		"FLOWLENS_CONCURRENCY": "8",
		"FLOWLENS_TIMEOUT":     "bogus",
		"FLOWLENS_SESSION_ID":  "00Dxx!session",
		"OPENAI_API_KEY":       "sk-test",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/flowlens.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel, "env overrides file")
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, "acme.my.salesforce.com", cfg.Instance)
	assert.Equal(t, 45*time.Second, time.Duration(cfg.Timeout), "unparseable env keeps file value")
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "00Dxx!session", cfg.SessionID)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "NO_ACTIONS", cfg.Rules[0].Code)
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timeout": "soon"}`), 0o644))

	_, err := loadConfig(path, envOf(nil))
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`90`), &d))
	assert.Equal(t, 90*time.Second, time.Duration(d))

	out, err := json.Marshal(Duration(2 * time.Minute))
	require.NoError(t, err)
	assert.JSONEq(t, `"2m0s"`, string(out))
}

func TestWriteSettings_OmitsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	cfg := defaultConfig()
	cfg.SessionID = "secret-session"
	cfg.OpenAIAPIKey = "sk-secret"
	require.NoError(t, writeSettings(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"timeout": "30s"`)

	back, err := loadConfig(path, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, cfg.ListenAddr, back.ListenAddr)
	assert.Equal(t, cfg.Timeout, back.Timeout)
}

func TestDiffConfigs(t *testing.T) {
	old := defaultConfig()
	next := old
	next.LogLevel = "debug"
	next.ListenAddr = ":9000"
	next.Rules = []validation.Rule{{Code: "X", When: "true"}}

	d := diffConfigs(old, next)
	assert.True(t, d.LogLevelChanged)
	assert.True(t, d.RulesChanged)
	assert.Equal(t, []string{"listen_addr"}, d.RestartNeeded)

	assert.Equal(t, configDiff{}, diffConfigs(old, old))
}
