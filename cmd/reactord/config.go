package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig holds the server configuration
type ServerConfig struct {
	Addr               string        `env:"REACTORD_ADDR"                 envDefault:":8080"`
	LogLevel           string        `env:"REACTORD_LOG_LEVEL"            envDefault:"info"`
	ConfigFile         string        `env:"REACTORD_CONFIG_FILE"`
	SnapshotDB         string        `env:"REACTORD_SNAPSHOT_DB"`
	SnapshotEveryTicks int           `env:"REACTORD_SNAPSHOT_EVERY_TICKS" envDefault:"0"`
	SnapshotKeep       int           `env:"REACTORD_SNAPSHOT_KEEP"        envDefault:"0"`
	TickInterval       time.Duration `env:"REACTORD_TICK_INTERVAL"`
	TelemetryPath      string        `env:"REACTORD_TELEMETRY_PATH"`
	Restore            bool          `env:"REACTORD_RESTORE"              envDefault:"false"`
}

// configResolver maps a command line flag onto a ServerConfig field
type configResolver struct {
	flagName    string
	description string
	setter      func(*ServerConfig, string) error
}

var resolvers = []configResolver{
	{
		flagName:    "addr",
		description: "HTTP listen address (e.g. :8080, 0.0.0.0:8080)",
		setter:      func(c *ServerConfig, v string) error { c.Addr = v; return nil },
	},
	{
		flagName:    "log-level",
		description: "Log level: debug, info, warn, error",
		setter:      func(c *ServerConfig, v string) error { c.LogLevel = v; return nil },
	},
	{
		flagName:    "config",
		description: "optional path to a YAML plant config merged over the defaults",
		setter:      func(c *ServerConfig, v string) error { c.ConfigFile = v; return nil },
	},
	{
		flagName:    "snapshot-db",
		description: "SQLite file reactor snapshots are stored in; empty disables snapshots",
		setter:      func(c *ServerConfig, v string) error { c.SnapshotDB = v; return nil },
	},
	{
		flagName:    "snapshot-every-ticks",
		description: "How often to store a snapshot of a running reactor (in ticks); 0 disables periodic snapshots",
		setter: func(c *ServerConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for snapshot-every-ticks: %q", v)
			}
			c.SnapshotEveryTicks = n
			return nil
		},
	},
	{
		flagName:    "snapshot-keep",
		description: "How many snapshots to keep per reactor after a periodic snapshot; 0 keeps all",
		setter: func(c *ServerConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for snapshot-keep: %q", v)
			}
			c.SnapshotKeep = n
			return nil
		},
	},
	{
		flagName:    "tick-interval",
		description: "Tick period of running reactors (e.g. 500ms); overrides the config file",
		setter: func(c *ServerConfig, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid value for tick-interval: %q", v)
			}
			c.TickInterval = d
			return nil
		},
	},
	{
		flagName:    "telemetry",
		description: "CSV file per-tick telemetry is appended to; overrides the config file",
		setter:      func(c *ServerConfig, v string) error { c.TelemetryPath = v; return nil },
	},
	{
		flagName:    "restore",
		description: "Restore configured reactors from their latest snapshot (true/false)",
		setter: func(c *ServerConfig, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for restore: %q", v)
			}
			c.Restore = b
			return nil
		},
	},
}

// loadServerConfig resolves the configuration: flag, then environment
// variable, then default.
func loadServerConfig(args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("reactord", flag.ContinueOnError)
	flagVars := make(map[string]*string, len(resolvers))
	for _, resolver := range resolvers {
		flagVars[resolver.flagName] = fs.String(resolver.flagName, "", resolver.description)
	}
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}

	for _, resolver := range resolvers {
		if v := *flagVars[resolver.flagName]; v != "" {
			if err := resolver.setter(&cfg, v); err != nil {
				return ServerConfig{}, err
			}
		}
	}
	if cfg.SnapshotEveryTicks < 0 {
		return ServerConfig{}, fmt.Errorf("snapshot-every-ticks must be non-negative, got %d", cfg.SnapshotEveryTicks)
	}
	if cfg.SnapshotKeep < 0 {
		return ServerConfig{}, fmt.Errorf("snapshot-keep must be non-negative, got %d", cfg.SnapshotKeep)
	}
	return cfg, nil
}
