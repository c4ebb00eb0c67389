package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names an optional config file (yaml, toml or json). Values in
// the environment always win over the file.
const ConfigFileEnv = "FINWISE_CONFIG"

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Storage
	DataBackend  string
	SQLiteDBPath string

	// AMQP change events (optional: empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Logging
	LogLevel  string
	LogFormat string

	// Assistant
	AssistantTimeout      time.Duration
	AssistantTemperature  float64
	AssistantMaxTokens    int
	AssistantHistoryLimit int

	// Worker
	AlertSweepInterval time.Duration
}

// key -> environment variable
var envBindings = map[string]string{
	"port":                   "PORT",
	"rate_limit_per_minute":  "RATE_LIMIT_PER_MINUTE",
	"data_backend":           "DATA_BACKEND",
	"sqlite_db_path":         "SQLITE_DB_PATH",
	"amqp_url":               "AMQP_URL",
	"amqp_exchange":          "AMQP_EXCHANGE",
	"amqp_queue":             "AMQP_QUEUE",
	"log_level":              "LOG_LEVEL",
	"log_format":             "LOG_FORMAT",
	"assistant_timeout":      "ASSISTANT_TIMEOUT",
	"assistant_temperature":  "ASSISTANT_TEMPERATURE",
	"assistant_max_tokens":   "ASSISTANT_MAX_TOKENS",
	"assistant_history_size": "ASSISTANT_HISTORY_LIMIT",
	"alert_sweep_interval":   "ALERT_SWEEP_INTERVAL",
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "8081")
	v.SetDefault("rate_limit_per_minute", 60)
	v.SetDefault("data_backend", "sqlite")
	v.SetDefault("sqlite_db_path", "./data/finwise.db")
	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "finwise")
	v.SetDefault("amqp_queue", "finwise_changes")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("assistant_timeout", "60s")
	v.SetDefault("assistant_temperature", 0.7)
	v.SetDefault("assistant_max_tokens", 1000)
	v.SetDefault("assistant_history_size", 20)
	v.SetDefault("alert_sweep_interval", "5m")
}

// Load reads defaults, the optional config file and the environment.
// Malformed numeric or duration values fall back to their defaults.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:               v.GetString("port"),
		RateLimitPerMinute: getInt(v, "rate_limit_per_minute"),

		DataBackend:  strings.ToLower(v.GetString("data_backend")),
		SQLiteDBPath: v.GetString("sqlite_db_path"),

		AMQPURL:      v.GetString("amqp_url"),
		AMQPExchange: v.GetString("amqp_exchange"),
		AMQPQueue:    v.GetString("amqp_queue"),

		LogLevel:  strings.ToLower(v.GetString("log_level")),
		LogFormat: strings.ToLower(v.GetString("log_format")),

		AssistantTimeout:      getDuration(v, "assistant_timeout"),
		AssistantTemperature:  getFloat(v, "assistant_temperature"),
		AssistantMaxTokens:    getInt(v, "assistant_max_tokens"),
		AssistantHistoryLimit: getInt(v, "assistant_history_size"),

		AlertSweepInterval: getDuration(v, "alert_sweep_interval"),
	}

	return cfg, nil
}

// AMQPEnabled reports whether change events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate assistant configuration
	if c.AssistantTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid assistant timeout %v: must be at least 1 second", c.AssistantTimeout))
	}
	if c.AssistantTemperature < 0 || c.AssistantTemperature > 2 {
		errors = append(errors, fmt.Sprintf("invalid assistant temperature %v: must be between 0 and 2", c.AssistantTemperature))
	}
	if c.AssistantMaxTokens < 1 {
		errors = append(errors, fmt.Sprintf("invalid assistant max tokens %d: must be at least 1", c.AssistantMaxTokens))
	}
	if c.AssistantHistoryLimit < 1 || c.AssistantHistoryLimit > 20 {
		errors = append(errors, fmt.Sprintf("invalid assistant history limit %d: must be between 1 and 20", c.AssistantHistoryLimit))
	}

	// Validate worker configuration
	if c.AlertSweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid alert sweep interval %v: must be at least 1 second", c.AlertSweepInterval))
	} else if c.AlertSweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid alert sweep interval %v: must be at most 24 hours", c.AlertSweepInterval))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// getInt falls back to the registered default when the value does not parse.
func getInt(v *viper.Viper, key string) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil {
		return i
	}
	i, _ := strconv.Atoi(fmt.Sprint(defaultOf(key)))
	return i
}

func getFloat(v *viper.Viper, key string) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64); err == nil {
		return f
	}
	f, _ := strconv.ParseFloat(fmt.Sprint(defaultOf(key)), 64)
	return f
}

func getDuration(v *viper.Viper, key string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key))); err == nil {
		return d
	}
	d, _ := time.ParseDuration(fmt.Sprint(defaultOf(key)))
	return d
}

func defaultOf(key string) any {
	v := viper.New()
	defaults(v)
	return v.Get(key)
}
