package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rendis/flowlens/internal/tooling"
	"github.com/rendis/flowlens/internal/validation"
)

// Config holds the flowlens CLI configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath        string            `json:"db_path"`
	LogLevel      string            `json:"log_level"`
	LogFormat     string            `json:"log_format"`
	ListenAddr    string            `json:"listen_addr"`
	Model         string            `json:"model"`
	OpenAIBaseURL string            `json:"openai_base_url"`
	APIVersion    string            `json:"api_version"`
	Instance      string            `json:"instance"`
	Timeout       Duration          `json:"timeout"`
	Concurrency   int               `json:"concurrency"`
	Rules         []validation.Rule `json:"rules,omitempty"`

	// Secrets come from the environment only and are never written back.
	SessionID    string `json:"-"`
	OpenAIAPIKey string `json:"-"`
}

// Duration is a time.Duration that reads "30s"-style strings from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func defaultConfig() Config {
	return Config{
		DBPath:      filepath.Join(flowlensDir(), "flowlens.db"),
		LogLevel:    "warn",
		LogFormat:   "text",
		ListenAddr:  ":4200",
		APIVersion:  tooling.DefaultAPIVersion,
		Timeout:     Duration(30 * time.Second),
		Concurrency: 4,
	}
}

func flowlensDir() string {
	if v := os.Getenv("FLOWLENS_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".flowlens"
	}
	return filepath.Join(home, ".flowlens")
}

func settingsPath() string {
	return filepath.Join(flowlensDir(), "settings.json")
}

func binDir() string {
	return filepath.Join(flowlensDir(), "bin")
}

func pidPath() string {
	return filepath.Join(flowlensDir(), "flowlens.pid")
}

// loadConfig layers settings.json and the environment over the defaults.
// A missing settings file is not an error; an unreadable one is.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if v := getenv("FLOWLENS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := getenv("FLOWLENS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("FLOWLENS_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := getenv("FLOWLENS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("FLOWLENS_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := getenv("FLOWLENS_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := getenv("FLOWLENS_API_VERSION"); v != "" {
		cfg.APIVersion = v
	}
	if v := getenv("FLOWLENS_INSTANCE"); v != "" {
		cfg.Instance = v
	}
	if v := getenv("FLOWLENS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = Duration(d)
		}
	}
	if v := getenv("FLOWLENS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}

	cfg.SessionID = getenv("FLOWLENS_SESSION_ID")
	cfg.OpenAIAPIKey = getenv("OPENAI_API_KEY")
	return cfg, nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	RulesChanged    bool
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if !sameRules(old.Rules, new.Rules) {
		d.RulesChanged = true
	}
	if old.LogLevel != new.LogLevel || old.LogFormat != new.LogFormat {
		d.LogLevelChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	return d
}

func sameRules(a, b []validation.Rule) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeSettings persists cfg to path. Secrets are excluded by their tags.
func writeSettings(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
