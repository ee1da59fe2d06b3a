package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the client needs to reach the learning
// platform and manage its local state.
type Config struct {
	Server    *ServerConfig    `json:"server"`
	Reconnect *ReconnectConfig `json:"reconnect"`
	History   *HistoryConfig   `json:"history"`
}

// ServerConfig identifies the websocket endpoint and the user on whose
// behalf the session runs.
type ServerConfig struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// ReconnectConfig governs recovery after an unexpected disconnect.
type ReconnectConfig struct {
	Attempts     int           `json:"attempts"`
	Interval     time.Duration `json:"interval"`
	PingInterval time.Duration `json:"ping_interval"`
	DialTimeout  time.Duration `json:"dial_timeout"`
}

// HistoryConfig controls the optional on-disk session history.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			URL: "ws://localhost:8000/ws/interactive",
		},
		Reconnect: &ReconnectConfig{
			Attempts:     5,
			Interval:     3 * time.Second,
			PingInterval: 10 * time.Second,
			DialTimeout:  10 * time.Second,
		},
		History: &HistoryConfig{
			Enabled: false,
			Path:    "./classwire.db",
		},
	}
}

func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}

	if c.Server.URL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	if c.Server.Token == "" {
		return fmt.Errorf("authentication token cannot be empty")
	}

	if c.Reconnect == nil {
		return fmt.Errorf("reconnect configuration is required")
	}

	if c.Reconnect.Attempts < 0 {
		return fmt.Errorf("reconnect attempts cannot be negative")
	}

	if c.Reconnect.Interval <= 0 {
		return fmt.Errorf("reconnect interval must be positive")
	}

	if c.Reconnect.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}

	if c.Reconnect.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}

	if c.History == nil {
		return fmt.Errorf("history configuration is required")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history path cannot be empty when history is enabled")
	}

	return nil
}

// LoadFromEnv builds a config from defaults overridden by CLASSWIRE_*
// environment variables. Unparseable values keep the default.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if url := os.Getenv("CLASSWIRE_SERVER_URL"); url != "" {
		config.Server.URL = url
	}

	if token := os.Getenv("CLASSWIRE_TOKEN"); token != "" {
		config.Server.Token = token
	}

	if userID := os.Getenv("CLASSWIRE_USER_ID"); userID != "" {
		if id, err := strconv.Atoi(userID); err == nil {
			config.Server.UserID = id
		}
	}

	if username := os.Getenv("CLASSWIRE_USERNAME"); username != "" {
		config.Server.Username = username
	}

	if attempts := os.Getenv("CLASSWIRE_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Reconnect.Attempts = n
		}
	}

	if interval := os.Getenv("CLASSWIRE_RECONNECT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Reconnect.Interval = d
		}
	}

	if pingInterval := os.Getenv("CLASSWIRE_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			config.Reconnect.PingInterval = d
		}
	}

	if dialTimeout := os.Getenv("CLASSWIRE_DIAL_TIMEOUT"); dialTimeout != "" {
		if d, err := time.ParseDuration(dialTimeout); err == nil {
			config.Reconnect.DialTimeout = d
		}
	}

	if enabled := os.Getenv("CLASSWIRE_HISTORY_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.History.Enabled = b
		}
	}

	if path := os.Getenv("CLASSWIRE_HISTORY_PATH"); path != "" {
		config.History.Path = path
	}

	return config
}

// ConfigFile mirrors Config for JSON parsing; durations are strings so
// config files can say "3s" rather than nanosecond counts.
type ConfigFile struct {
	Server    *ServerConfig        `json:"server"`
	Reconnect *ReconnectConfigFile `json:"reconnect"`
	History   *HistoryConfig       `json:"history"`
}

type ReconnectConfigFile struct {
	Attempts     int    `json:"attempts"`
	Interval     string `json:"interval"`
	PingInterval string `json:"ping_interval"`
	DialTimeout  string `json:"dial_timeout"`
}

func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Server != nil {
		if configFile.Server.URL != "" {
			config.Server.URL = configFile.Server.URL
		}
		if configFile.Server.Token != "" {
			config.Server.Token = configFile.Server.Token
		}
		if configFile.Server.UserID != 0 {
			config.Server.UserID = configFile.Server.UserID
		}
		if configFile.Server.Username != "" {
			config.Server.Username = configFile.Server.Username
		}
	}

	if configFile.Reconnect != nil {
		if configFile.Reconnect.Attempts > 0 {
			config.Reconnect.Attempts = configFile.Reconnect.Attempts
		}
		if configFile.Reconnect.Interval != "" {
			if d, err := time.ParseDuration(configFile.Reconnect.Interval); err == nil {
				config.Reconnect.Interval = d
			}
		}
		if configFile.Reconnect.PingInterval != "" {
			if d, err := time.ParseDuration(configFile.Reconnect.PingInterval); err == nil {
				config.Reconnect.PingInterval = d
			}
		}
		if configFile.Reconnect.DialTimeout != "" {
			if d, err := time.ParseDuration(configFile.Reconnect.DialTimeout); err == nil {
				config.Reconnect.DialTimeout = d
			}
		}
	}

	if configFile.History != nil {
		config.History.Enabled = configFile.History.Enabled
		if configFile.History.Path != "" {
			config.History.Path = configFile.History.Path
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// File errors are not fatal, environment and defaults still work.
	}

	return config
}
