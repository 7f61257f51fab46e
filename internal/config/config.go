// Package config loads the reporter configuration: defaults, then an
// optional TOML file, with command-line flags applied on top by the caller.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/livinlefevreloca/jobstats/internal/db"
)

// Config represents the application configuration
type Config struct {
	// Cluster is the scheduler cluster to query; defaults from the
	// SNIC_RESOURCE environment variable
	Cluster string `toml:"cluster"`

	// StatsRoot is the per-node statistics directory root
	StatsRoot string `toml:"stats_root"`

	// StatsKind is the statistics directory name under the cluster
	// directory
	StatsKind string `toml:"stats_kind"`

	// Tool paths
	FinishedTool string `toml:"finished_tool"`
	RunningTool  string `toml:"running_tool"`
	PlotTool     string `toml:"plot_tool"`

	// Database is the local accounting cache; an empty path disables the
	// database source and the run log
	Database db.Config `toml:"database"`

	// RunLog enables recording run summaries in the accounting cache
	RunLog bool `toml:"run_log"`

	// CPUFree is the idle-CPU percentage threshold for the analysis tool
	CPUFree float64 `toml:"cpu_free"`

	// StaffGroups grant read access to every project
	StaffGroups []string `toml:"staff_groups"`

	Logging LoggingConfig `toml:"logging"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `toml:"level"`

	// DebugFile receives a JSON copy of the log stream when set
	DebugFile string `toml:"debug_file"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	cluster := os.Getenv("SNIC_RESOURCE")
	if cluster == "" {
		cluster = "milou"
	}

	return &Config{
		Cluster:      cluster,
		StatsRoot:    "/sw/share/slurm",
		StatsKind:    "uppmax_jobstats",
		FinishedTool: "/sw/uppmax/bin/finishedjobinfo",
		RunningTool:  "squeue",
		PlotTool:     "/sw/uppmax/bin/plot_jobstats",
		CPUFree:      80,
		StaffGroups:  []string{"staff"},
		Database: db.Config{
			// SQLite allows one writer; a second connection buys nothing
			MaxOpenConns: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// If no config file specified, return defaults
	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cluster == "" {
		return fmt.Errorf("cluster must be specified")
	}
	if c.StatsRoot == "" {
		return fmt.Errorf("stats_root must be specified")
	}
	if c.StatsKind == "" {
		return fmt.Errorf("stats_kind must be specified")
	}
	if c.FinishedTool == "" {
		return fmt.Errorf("finished_tool must be specified")
	}
	if c.RunningTool == "" {
		return fmt.Errorf("running_tool must be specified")
	}
	if c.PlotTool == "" {
		return fmt.Errorf("plot_tool must be specified")
	}
	if c.CPUFree < 0 || c.CPUFree > 100 {
		return fmt.Errorf("cpu_free must be between 0 and 100, got %g", c.CPUFree)
	}
	if c.RunLog && c.Database.Path == "" {
		return fmt.Errorf("run_log requires database.path")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
