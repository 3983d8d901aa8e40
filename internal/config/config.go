// Package config provides configuration for the execution orchestrator.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`
	RPCPort  int `yaml:"rpc_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Filesystem layout
	DataDir           string `yaml:"data_dir"`
	ProfileCatalogDir string `yaml:"profile_catalog_dir"`

	// External tools
	SimulatorBin string `yaml:"simulator_bin"`
	ExplorerBin  string `yaml:"explorer_bin"`

	// Coordinator timing
	PollInterval        time.Duration `yaml:"poll_interval"`
	MonitorInterval     time.Duration `yaml:"monitor_interval"`
	MonitorJoinTimeout  time.Duration `yaml:"monitor_join_timeout"`
	TerminationGrace    time.Duration `yaml:"termination_grace"`
	TerminationDeadline time.Duration `yaml:"termination_deadline"`
	MonitorMaxErrors    int           `yaml:"monitor_max_errors"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	WriteRetryDeadline  time.Duration `yaml:"write_retry_deadline"`

	// Stale execution sweeper
	SweepInterval time.Duration `yaml:"sweep_interval"`
	StaleAfter    time.Duration `yaml:"stale_after"`

	// Admission
	StartRateLimit      float64  `yaml:"start_rate_limit"`
	StartRateBurst      int      `yaml:"start_rate_burst"`
	MaxActiveExecutions int      `yaml:"max_active_executions"`
	MaxProfiles         int      `yaml:"max_profiles"`
	AllowedTechnologies []string `yaml:"allowed_technologies"`

	// WebSocket settings
	WSPingInterval   time.Duration `yaml:"ws_ping_interval"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	WSReadTimeout    time.Duration `yaml:"ws_read_timeout"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	// Observability
	OTELEndpoint string `yaml:"otel_endpoint"`
	ServiceName  string `yaml:"service_name"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:            8000,
		RPCPort:             8001,
		DatabaseURL:         "file:dojo.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL",
		DataDir:             "data",
		ProfileCatalogDir:   "data/profiles",
		SimulatorBin:        "sensei",
		ExplorerBin:         "tracer",
		PollInterval:        time.Second,
		MonitorInterval:     2 * time.Second,
		MonitorJoinTimeout:  5 * time.Second,
		TerminationGrace:    5 * time.Second,
		TerminationDeadline: 30 * time.Second,
		MonitorMaxErrors:    3,
		HeartbeatInterval:   10 * time.Second,
		WriteRetryDeadline:  30 * time.Second,
		SweepInterval:       30 * time.Second,
		StaleAfter:          2 * time.Minute,
		StartRateLimit:      2,
		StartRateBurst:      5,
		MaxActiveExecutions: 8,
		MaxProfiles:         50,
		AllowedTechnologies: []string{"rasa", "taskyto", "dialogflow", "botslovers", "millionbot", "julie", "kuki", "lola", "serviceform", "ada-uam", "custom"},
		WSPingInterval:      30 * time.Second,
		WSWriteTimeout:      10 * time.Second,
		WSReadTimeout:       60 * time.Second,
		WSMaxMessageSize:    65536,
		ServiceName:         "chatbot-dojo-orchestrator",
		LogLevel:            "info",
	}
}

// Load loads configuration from defaults, an optional YAML file named by
// DOJO_CONFIG, and environment variables, in that order of precedence.
func Load() *Config {
	cfg := Default()
	if path := os.Getenv("DOJO_CONFIG"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			log.Printf("WARN: ignoring config file %s: %v", path, err)
		}
	}
	cfg.applyEnv()
	return cfg
}

// MergeFile overlays the values present in a YAML file onto cfg.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.RPCPort = getEnvInt("RPC_PORT", c.RPCPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.ProfileCatalogDir = getEnv("PROFILE_CATALOG_DIR", c.ProfileCatalogDir)
	c.SimulatorBin = getEnv("SIMULATOR_BIN", c.SimulatorBin)
	c.ExplorerBin = getEnv("EXPLORER_BIN", c.ExplorerBin)
	c.PollInterval = getEnvDuration("POLL_INTERVAL_MS", c.PollInterval)
	c.MonitorInterval = getEnvDuration("MONITOR_INTERVAL_MS", c.MonitorInterval)
	c.MonitorJoinTimeout = getEnvDuration("MONITOR_JOIN_TIMEOUT_MS", c.MonitorJoinTimeout)
	c.TerminationGrace = getEnvDuration("TERMINATION_GRACE_MS", c.TerminationGrace)
	c.TerminationDeadline = getEnvDuration("TERMINATION_DEADLINE_MS", c.TerminationDeadline)
	c.MonitorMaxErrors = getEnvInt("MONITOR_MAX_ERRORS", c.MonitorMaxErrors)
	c.HeartbeatInterval = getEnvDuration("HEARTBEAT_INTERVAL_MS", c.HeartbeatInterval)
	c.WriteRetryDeadline = getEnvDuration("WRITE_RETRY_DEADLINE_MS", c.WriteRetryDeadline)
	c.SweepInterval = getEnvDuration("SWEEP_INTERVAL_MS", c.SweepInterval)
	c.StaleAfter = getEnvDuration("STALE_AFTER_MS", c.StaleAfter)
	c.StartRateLimit = getEnvFloat("START_RATE_LIMIT", c.StartRateLimit)
	c.StartRateBurst = getEnvInt("START_RATE_BURST", c.StartRateBurst)
	c.MaxActiveExecutions = getEnvInt("MAX_ACTIVE_EXECUTIONS", c.MaxActiveExecutions)
	c.MaxProfiles = getEnvInt("MAX_PROFILES", c.MaxProfiles)
	if val := os.Getenv("ALLOWED_TECHNOLOGIES"); val != "" {
		c.AllowedTechnologies = splitList(val)
	}
	c.WSPingInterval = getEnvDuration("WS_PING_INTERVAL_MS", c.WSPingInterval)
	c.WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT_MS", c.WSWriteTimeout)
	c.WSReadTimeout = getEnvDuration("WS_READ_TIMEOUT_MS", c.WSReadTimeout)
	c.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(c.WSMaxMessageSize)))
	c.OTELEndpoint = getEnv("OTEL_ENDPOINT", c.OTELEndpoint)
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
