// Package config loads the layered configuration shared by the server
// and the collector/plugin binaries: defaults, then an optional YAML
// file, then AUDITOR_-prefixed environment variables (double underscore
// separates sections, e.g. AUDITOR_DATABASE__HOST).
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/auditor-dev/auditor/internal/collector/epilog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application config. Each binary validates only
// the sections it consumes.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Collector CollectorConfig `koanf:"collector"`
	Epilog    EpilogConfig    `koanf:"epilog"`
	Plugin    PluginConfig    `koanf:"plugin"`
}

type ServerConfig struct {
	Addr          string `koanf:"addr"`
	Port          int    `koanf:"port"`
	Mode          string `koanf:"mode"` // debug | release
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
}

func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Port)
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Mode != "debug" && c.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Mode)
	}
	if c.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	// ConnectionString overrides the individual fields when set.
	ConnectionString string `koanf:"connection_string"`
	MaxOpenConns     int    `koanf:"max_open_conns"`
	MaxIdleConns     int    `koanf:"max_idle_conns"`
	AutoMigrate      bool   `koanf:"auto_migrate"`
}

func (c DatabaseConfig) Validate() error {
	if c.ConnectionString == "" {
		if strings.TrimSpace(c.Host) == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid database.port %d", c.Port)
		}
		if strings.TrimSpace(c.User) == "" {
			return fmt.Errorf("database.user is required")
		}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("database.name is required")
		}
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	return nil
}

// DSN is the lib/pq connection string for the configured database.
func (c DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	return u.String()
}

type CollectorConfig struct {
	// ID keys the lastcheck watermark; distinct per collector.
	ID string `koanf:"id"`
	// Type selects the backend: sacct | kubeapi.
	Type string `koanf:"type"`
	// Sink selects the delivery path: store | client.
	Sink            string        `koanf:"sink"`
	Addr            string        `koanf:"addr"`
	Port            int           `koanf:"port"`
	CollectInterval time.Duration `koanf:"collect_interval"`
	// EarliestDatetime bounds the first collection window (RFC 3339).
	EarliestDatetime string `koanf:"earliest_datetime"`
	SiteID           string `koanf:"site_id"`
	RecordPrefix     string `koanf:"record_prefix"`
	// Command is the accounting command line for the sacct backend.
	Command string `koanf:"command"`
	// Endpoint is the usage URL for the kubeapi backend.
	Endpoint string `koanf:"endpoint"`
}

func (c CollectorConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("collector.id is required")
	}
	switch c.Type {
	case "sacct":
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("collector.command is required for type sacct")
		}
	case "kubeapi":
		if strings.TrimSpace(c.Endpoint) == "" {
			return fmt.Errorf("collector.endpoint is required for type kubeapi")
		}
	default:
		return fmt.Errorf("unsupported collector.type %q (must be sacct or kubeapi)", c.Type)
	}
	switch c.Sink {
	case "store":
	case "client":
		if strings.TrimSpace(c.Addr) == "" || c.Port <= 0 {
			return fmt.Errorf("collector.addr and collector.port are required for sink client")
		}
	default:
		return fmt.Errorf("unsupported collector.sink %q (must be store or client)", c.Sink)
	}
	if c.CollectInterval <= 0 {
		return fmt.Errorf("collector.collect_interval must be > 0")
	}
	if _, err := c.Earliest(); err != nil {
		return err
	}
	return nil
}

// Earliest parses the earliest-datetime bound; empty means the zero time
// (collect everything the backend still has).
func (c CollectorConfig) Earliest() (time.Time, error) {
	if strings.TrimSpace(c.EarliestDatetime) == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, c.EarliestDatetime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid collector.earliest_datetime %q: %w", c.EarliestDatetime, err)
	}
	return ts.UTC(), nil
}

type EpilogConfig struct {
	Addr         string                 `koanf:"addr"`
	Port         int                    `koanf:"port"`
	RecordPrefix string                 `koanf:"record_prefix"`
	SiteID       string                 `koanf:"site_id"`
	JobIDVar     string                 `koanf:"job_id_var"`
	StartVar     string                 `koanf:"start_var"`
	StopVar      string                 `koanf:"stop_var"`
	Components   []epilog.ComponentSpec `koanf:"components"`
}

func (c EpilogConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" || c.Port <= 0 {
		return fmt.Errorf("epilog.addr and epilog.port are required")
	}
	if strings.TrimSpace(c.JobIDVar) == "" {
		return fmt.Errorf("epilog.job_id_var is required")
	}
	if strings.TrimSpace(c.StartVar) == "" {
		return fmt.Errorf("epilog.start_var is required")
	}
	for i, comp := range c.Components {
		if strings.TrimSpace(comp.Name) == "" {
			return fmt.Errorf("epilog.components[%d].name is required", i)
		}
		if strings.TrimSpace(comp.Key) == "" {
			return fmt.Errorf("epilog.components[%d].key is required", i)
		}
	}
	return nil
}

type PluginConfig struct {
	Addr         string              `koanf:"addr"`
	Port         int                 `koanf:"port"`
	SiteID       string              `koanf:"site_id"`
	GroupKey     string              `koanf:"group_key"`
	GroupMapping map[string][]string `koanf:"group_mapping"`
	// Components maps component names to their weight in the usage sum.
	Components  map[string]float64 `koanf:"components"`
	ScoreName   string             `koanf:"score_name"`
	MinPriority int64              `koanf:"min_priority"`
	MaxPriority int64              `koanf:"max_priority"`
	LookBack    time.Duration      `koanf:"look_back"`
	Interval    time.Duration      `koanf:"interval"`
	Command     string             `koanf:"command"`
}

func (c PluginConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" || c.Port <= 0 {
		return fmt.Errorf("plugin.addr and plugin.port are required")
	}
	if strings.TrimSpace(c.GroupKey) == "" {
		return fmt.Errorf("plugin.group_key is required")
	}
	if len(c.GroupMapping) == 0 {
		return fmt.Errorf("plugin.group_mapping must not be empty")
	}
	if len(c.Components) == 0 {
		return fmt.Errorf("plugin.components must not be empty")
	}
	if c.MaxPriority < c.MinPriority {
		return fmt.Errorf("plugin.max_priority %d is below plugin.min_priority %d", c.MaxPriority, c.MinPriority)
	}
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("plugin.command is required")
	}
	return nil
}

// Load parses config from defaults, an optional YAML file and the
// AUDITOR_ environment. Section validation is the caller's job: each
// binary validates the sections it uses.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.addr":                "0.0.0.0",
		"server.port":                8000,
		"server.mode":                "release",
		"server.max_body_size_mb":    1,
		"database.host":              "localhost",
		"database.port":              5432,
		"database.user":              "auditor",
		"database.name":              "auditor",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    25,
		"database.auto_migrate":      true,
		"collector.sink":             "client",
		"collector.collect_interval": "5m",
		"epilog.port":                8000,
		"epilog.job_id_var":          "SLURM_JOB_ID",
		"epilog.start_var":           "SLURM_JOB_START_TIME",
		"epilog.stop_var":            "SLURM_JOB_END_TIME",
		"plugin.group_key":           "group",
		"plugin.min_priority":        1,
		"plugin.max_priority":        65535,
		"plugin.look_back":           "24h",
		"plugin.interval":            "1h",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("AUDITOR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "AUDITOR_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
