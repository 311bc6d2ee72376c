// Package config loads the ECS's own operational configuration —
// everything that isn't the node-seed file: DCS settings, multicast
// deadlines, the launch command template, and the admin/metrics/health
// server ports. This mirrors the teacher's YAML-config-with-defaults
// pattern (internal/config/config.go in the storage node).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DCSConfig configures the coordination-service session.
type DCSConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ServerRoot     string        `yaml:"server_root"`
	MetadataRoot   string        `yaml:"metadata_root"`
}

// MulticastConfig configures admin command fan-out.
type MulticastConfig struct {
	Deadline time.Duration `yaml:"deadline"`
}

// LaunchConfig configures the remote process launch capability.
type LaunchConfig struct {
	Command string `yaml:"command"`
}

// MembershipConfig configures the gossip-based liveness detector.
type MembershipConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BindAddr  string   `yaml:"bind_addr"`
	BindPort  int      `yaml:"bind_port"`
	SeedNodes []string `yaml:"seed_nodes"`
}

// ServerConfig configures the admin/health/metrics HTTP surface.
type ServerConfig struct {
	AdminAddr      string        `yaml:"admin_addr"`
	HealthAddr     string        `yaml:"health_addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the ECS's full operational configuration.
type Config struct {
	NodeSeedFile string           `yaml:"node_seed_file"`
	DCS          DCSConfig        `yaml:"dcs"`
	Multicast    MulticastConfig  `yaml:"multicast"`
	Launch       LaunchConfig     `yaml:"launch"`
	Membership   MembershipConfig `yaml:"membership"`
	Server       ServerConfig     `yaml:"server"`
	Logging      LoggingConfig    `yaml:"logging"`
}

// Load reads and validates the YAML config at path, filling in
// defaults for anything left unspecified.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.NodeSeedFile == "" {
		cfg.NodeSeedFile = "./nodes.cfg"
	}
	if cfg.DCS.ConnectTimeout == 0 {
		cfg.DCS.ConnectTimeout = 2 * time.Second
	}
	if cfg.DCS.ServerRoot == "" {
		cfg.DCS.ServerRoot = "/kv_servers"
	}
	if cfg.DCS.MetadataRoot == "" {
		cfg.DCS.MetadataRoot = "/metadata"
	}
	if cfg.Multicast.Deadline == 0 {
		cfg.Multicast.Deadline = 5 * time.Second
	}
	if cfg.Launch.Command == "" {
		cfg.Launch.Command = "java -jar KVServer.jar %NAME% %HOST% %PORT%"
	}
	if cfg.Server.AdminAddr == "" {
		cfg.Server.AdminAddr = ":9090"
	}
	if cfg.Server.HealthAddr == "" {
		cfg.Server.HealthAddr = ":9091"
	}
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9092"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks the config for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.DCS.ServerRoot == "" || c.DCS.MetadataRoot == "" {
		return fmt.Errorf("dcs.server_root and dcs.metadata_root are required")
	}
	if c.Multicast.Deadline <= 0 {
		return fmt.Errorf("multicast.deadline must be positive")
	}
	return nil
}
