package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	EnvAPIBaseURL = "CERTWATCH_API_BASE_URL"
	EnvSessionDB  = "CERTWATCH_SESSION_DB"
	EnvListen     = "CERTWATCH_LISTEN"
	EnvLogLevel   = "CERTWATCH_LOG_LEVEL"
	EnvPerPage    = "CERTWATCH_PER_PAGE"
)

// Config holds the dashboard client settings.
type Config struct {
	APIBaseURL         string        `yaml:"api_base_url"`
	PerPage            int           `yaml:"per_page"`
	DashboardRefresh   time.Duration `yaml:"dashboard_refresh"`
	ScanCompletionWait time.Duration `yaml:"scan_completion_wait"`
	HistorySize        int           `yaml:"history_size"`
	UrgentDays         int           `yaml:"urgent_days"`
	WarningDays        int           `yaml:"warning_days"`
	SessionDB          string        `yaml:"session_db"`
	Listen             string        `yaml:"listen"`
	LogLevel           string        `yaml:"log_level"`
}

type ConfigErr struct {
	errs []string
}

func (ce *ConfigErr) Add(s string) {
	ce.errs = append(ce.errs, s)
}

func (ce *ConfigErr) Error() string {
	return "config err: " + strings.Join(ce.errs, ",")
}

func (ce *ConfigErr) IsError() bool {
	return len(ce.errs) > 0
}

// Default returns the settings the dashboard ships with.
func Default() Config {
	return Config{
		APIBaseURL:         "http://localhost:8080/api",
		PerPage:            100,
		DashboardRefresh:   30 * time.Second,
		ScanCompletionWait: 10 * time.Second,
		HistorySize:        5,
		UrgentDays:         7,
		SessionDB:          defaultSessionDB(),
		Listen:             "127.0.0.1:3000",
		LogLevel:           "info",
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	conf := Default()
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return conf, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(f, &conf); err != nil {
			return conf, errors.Wrap(err, "parse config")
		}
	}

	conf.APIBaseURL = getEnv(EnvAPIBaseURL, conf.APIBaseURL)
	conf.SessionDB = getEnv(EnvSessionDB, conf.SessionDB)
	conf.Listen = getEnv(EnvListen, conf.Listen)
	conf.LogLevel = getEnv(EnvLogLevel, conf.LogLevel)
	conf.PerPage = getEnvInt(EnvPerPage, conf.PerPage)
	conf.APIBaseURL = strings.TrimRight(conf.APIBaseURL, "/")

	return conf, conf.Validate()
}

// Validate reports every invalid setting in one error.
func (c Config) Validate() error {
	ce := ConfigErr{}
	if c.APIBaseURL == "" {
		ce.Add("api_base_url cannot be empty")
	}
	if c.PerPage < 1 {
		ce.Add("per_page must be positive")
	}
	if c.DashboardRefresh <= 0 {
		ce.Add("dashboard_refresh must be positive")
	}
	if c.ScanCompletionWait < 0 {
		ce.Add("scan_completion_wait cannot be negative")
	}
	if c.HistorySize < 1 {
		ce.Add("history_size must be positive")
	}
	if c.UrgentDays < 0 {
		ce.Add("urgent_days cannot be negative")
	}
	if c.WarningDays != 0 && c.WarningDays <= c.UrgentDays {
		ce.Add("warning_days must exceed urgent_days")
	}
	if ce.IsError() {
		return &ce
	}
	return nil
}

func defaultSessionDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "certwatch-session.db"
	}
	return filepath.Join(home, ".certwatch", "session.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
