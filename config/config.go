package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration structure. All values come from the
// environment; Load fills defaults for anything unset.
type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	TLS     TLSConfig
	Logging LoggingConfig
	Ports   PortsConfig
	Plugins PluginsConfig
	Store   StoreConfig
	NATS    NATSConfig
}

// ServerConfig contains HTTP/WebSocket server settings
type ServerConfig struct {
	Port int // HTTP listen port
}

// AuthConfig contains optional HTTP Basic auth settings
type AuthConfig struct {
	Enabled  bool
	User     string
	Password string
}

// TLSConfig contains optional TLS serving settings
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// LoggingConfig contains process log settings. When Dir is empty the log
// goes to stdout as text; otherwise to a rotating JSON file under Dir.
type LoggingConfig struct {
	Dir        string
	Level      string // debug, info, warn, error
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// PortsConfig contains hot-plug polling settings
type PortsConfig struct {
	PollIntervalMS int
}

// PluginsConfig contains decoder plugin settings
type PluginsConfig struct {
	Dir string // directory scanned for .js decoder plugins
}

// StoreConfig contains persistent store settings
type StoreConfig struct {
	DataDir string // directory holding macros.json and profiles.json
}

// NATSConfig contains the optional NATS event mirror settings.
// The mirror is disabled when URL is empty.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// PollInterval returns the hot-plug poll interval as a duration
func (p *PortsConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// Load builds the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PORT", 3000),
		},
		Auth: AuthConfig{
			Enabled:  envBool("AUTH_ENABLED"),
			User:     os.Getenv("AUTH_USER"),
			Password: os.Getenv("AUTH_PASS"),
		},
		TLS: TLSConfig{
			Enabled:  envBool("TLS_ENABLED"),
			CertFile: os.Getenv("TLS_CERT"),
			KeyFile:  os.Getenv("TLS_KEY"),
		},
		Logging: LoggingConfig{
			Dir:        os.Getenv("LOG_DIR"),
			Level:      os.Getenv("LOG_LEVEL"),
			MaxSizeMB:  envInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 5),
			Compress:   envBool("LOG_COMPRESS"),
		},
		Ports: PortsConfig{
			PollIntervalMS: envInt("POLL_INTERVAL_MS", 2000),
		},
		Plugins: PluginsConfig{
			Dir: envString("PLUGIN_DIR", "plugins"),
		},
		Store: StoreConfig{
			DataDir: envString("DATA_DIR", "data"),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			SubjectPrefix: envString("NATS_SUBJECT_PREFIX", "serialscope"),
		},
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults fills in default values for optional fields
func (c *Config) setDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Ports.PollIntervalMS <= 0 {
		c.Ports.PollIntervalMS = 2000
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes":
		return true
	}
	return false
}
