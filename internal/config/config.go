// Package config loads fspulse's configuration: a YAML file in the
// platform user-config directory, overlaid by FSPULSE_<SECTION>_<KEY>
// environment variables. Every setting tracks which of the two (or
// neither, i.e. a built-in default) supplied its effective value, so
// /api/settings can report provenance and refuse to edit env-overridden
// settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lyallcooper/fspulse/internal/apperr"
)

// Source identifies where a setting's effective value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "config"
	SourceEnv     Source = "environment"
)

// Setting wraps a value with its provenance.
type Setting[T any] struct {
	Value  T
	Source Source
	EnvVar string
}

func (s Setting[T]) Editable() bool { return s.Source != SourceEnv }

// AnalysisConfig holds the one tunable the HTTP API exposes directly.
type AnalysisConfig struct {
	Threads Setting[int]
}

// Config is the fully-resolved, provenance-tracked runtime configuration.
type Config struct {
	Port     Setting[int]
	DBPath   Setting[string]
	LogLevel Setting[string]
	Analysis AnalysisConfig
}

// fileShape is the YAML document shape, used both for unmarshalling on
// Load and for the read-modify-write cycle in UpdateAnalysisThreads.
type fileShape struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Store struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"store"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Analysis struct {
		Threads int `yaml:"threads"`
	} `yaml:"analysis"`
}

const (
	defaultPort     = 8080
	defaultDBPath   = "fspulse.db"
	defaultLogLevel = "info"
	defaultThreads  = 4
)

// DefaultPath returns the platform config file location, e.g.
// ~/.config/fspulse/config.yaml on Linux.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", apperr.Config("resolve user config directory", err)
	}
	return filepath.Join(dir, "fspulse", "config.yaml"), nil
}

// Load reads the YAML file at path (a missing file is not an error —
// every setting simply falls back to its default) and overlays
// environment variables.
func Load(path string) (*Config, error) {
	file, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     resolveInt(file.Server.Port, defaultPort, "FSPULSE_SERVER_PORT"),
		DBPath:   resolveString(file.Store.DBPath, defaultDBPath, "FSPULSE_STORE_DB_PATH"),
		LogLevel: resolveString(file.Log.Level, defaultLogLevel, "FSPULSE_LOG_LEVEL"),
		Analysis: AnalysisConfig{
			Threads: resolveInt(file.Analysis.Threads, defaultThreads, "FSPULSE_ANALYSIS_THREADS"),
		},
	}
	return cfg, nil
}

func loadFile(path string) (fileShape, error) {
	var file fileShape
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return file, nil
	}
	if err != nil {
		return file, apperr.Config("read config file", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, apperr.Config("parse config file", err)
	}
	return file, nil
}

func resolveInt(fileValue, defaultValue int, envVar string) Setting[int] {
	if raw, ok := os.LookupEnv(envVar); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return Setting[int]{Value: v, Source: SourceEnv, EnvVar: envVar}
		}
	}
	if fileValue != 0 {
		return Setting[int]{Value: fileValue, Source: SourceFile, EnvVar: envVar}
	}
	return Setting[int]{Value: defaultValue, Source: SourceDefault, EnvVar: envVar}
}

func resolveString(fileValue, defaultValue, envVar string) Setting[string] {
	if raw, ok := os.LookupEnv(envVar); ok && raw != "" {
		return Setting[string]{Value: raw, Source: SourceEnv, EnvVar: envVar}
	}
	if fileValue != "" {
		return Setting[string]{Value: fileValue, Source: SourceFile, EnvVar: envVar}
	}
	return Setting[string]{Value: defaultValue, Source: SourceDefault, EnvVar: envVar}
}

// FileThreads returns the value analysis.threads carries in the config
// file alone (ignoring any environment override), for reporting the
// config_value half of a ConfigSetting when the effective value came
// from the environment.
func FileThreads(path string) (int, error) {
	file, err := loadFile(path)
	if err != nil {
		return 0, err
	}
	if file.Analysis.Threads == 0 {
		return defaultThreads, nil
	}
	return file.Analysis.Threads, nil
}

// UpdateAnalysisThreads rewrites analysis.threads in the config file,
// preserving every other key. Callers must reject the request with 409
// first if FSPULSE_ANALYSIS_THREADS is set — this function does not
// re-check that.
func UpdateAnalysisThreads(path string, threads int) error {
	if threads < 1 || threads > 24 {
		return apperr.Validation(fmt.Sprintf("threads must be between 1 and 24, got %d", threads))
	}

	file, err := loadFile(path)
	if err != nil {
		return err
	}
	file.Analysis.Threads = threads

	out, err := yaml.Marshal(file)
	if err != nil {
		return apperr.Config("marshal config file", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Config("create config directory", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return apperr.Config("write config file", err)
	}
	return nil
}
