package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Local store (client side)
	LocalDBPath string
	Currency    string

	// Remote store selection and credentials
	RemoteBackend string
	RemoteURL     string
	AuthToken     string

	// Connectivity probing
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	ForceOffline  bool

	// Remote store server
	Port         string
	ServerDBPath string
	// AuthTokens maps bearer tokens to owner ids, "token:owner,token2:owner2".
	AuthTokens         map[string]string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string

	// AMQP budget alerts
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Discord budget alerts
	DiscordBotToken  string
	DiscordChannelID string

	// Alert worker
	AlertMaxAge       time.Duration
	AlertDedupeWindow time.Duration

	// Google Sheets remote
	GoogleSpreadsheetID string
	GoogleSheetName     string
}

func Load() *Config {
	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		LocalDBPath: getEnv("FINTRACK_DB_PATH", "./data/fintrack.db"),
		Currency:    getEnv("FINTRACK_CURRENCY", "EUR"),

		RemoteBackend: getEnv("REMOTE_BACKEND", "http"),
		RemoteURL:     getEnv("REMOTE_URL", "http://localhost:5000"),
		AuthToken:     getEnv("AUTH_TOKEN", ""),

		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 15*time.Second),
		ProbeTimeout:  getEnvDuration("PROBE_TIMEOUT", 3*time.Second),
		ForceOffline:  getEnvBool("FORCE_OFFLINE", false),

		Port:               getEnv("PORT", "5000"),
		ServerDBPath:       getEnv("SERVER_DB_PATH", "./data/fintrack-server.db"),
		AuthTokens:         parseTokens(getEnv("AUTH_TOKENS", "")),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		TrustedProxies:     parseList(getEnv("TRUSTED_PROXIES", "")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fintrack"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_alerts"),

		DiscordBotToken:  getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordChannelID: getEnv("DISCORD_CHANNEL_ID", ""),

		AlertMaxAge:       getEnvDuration("ALERT_MAX_AGE", 24*time.Hour),
		AlertDedupeWindow: getEnvDuration("ALERT_DEDUPE_WINDOW", 10*time.Minute),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Transactions"),
	}

	return cfg
}

// Validate checks the settings every binary shares.
func (c *Config) Validate() error {
	var errors []string

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	validBackends := []string{"http", "sqlite", "sheets", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.RemoteBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}

	if c.RemoteBackend == "http" {
		if parsedURL, err := url.Parse(c.RemoteURL); err != nil || c.RemoteURL == "" {
			errors = append(errors, fmt.Sprintf("invalid remote URL '%s'", c.RemoteURL))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid remote URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	if c.RemoteBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}
	}

	if c.LocalDBPath == "" {
		errors = append(errors, "local database path cannot be empty")
	} else if err := ensureDir(c.LocalDBPath); err != nil {
		errors = append(errors, err.Error())
	}

	if len(strings.TrimSpace(c.Currency)) != 3 {
		errors = append(errors, fmt.Sprintf("invalid currency '%s': must be an ISO 4217 code", c.Currency))
	}

	if c.ProbeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	} else if c.ProbeInterval > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at most 1 hour", c.ProbeInterval))
	}
	if c.ProbeTimeout <= 0 || c.ProbeTimeout > c.ProbeInterval {
		errors = append(errors, fmt.Sprintf("invalid probe timeout %v: must be positive and not exceed the probe interval", c.ProbeTimeout))
	}

	errors = append(errors, c.validateAMQP()...)

	if (c.DiscordBotToken == "") != (c.DiscordChannelID == "") {
		errors = append(errors, "DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateServer checks the settings of the remote store server.
func (c *Config) ValidateServer() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.ServerDBPath == "" {
		errors = append(errors, "server database path cannot be empty")
	} else if err := ensureDir(c.ServerDBPath); err != nil {
		errors = append(errors, err.Error())
	}

	if len(c.AuthTokens) == 0 {
		errors = append(errors, "AUTH_TOKENS must map at least one token to an owner")
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings of the alert forwarding worker.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	errors = append(errors, c.validateAMQP()...)
	if c.DiscordBotToken == "" || c.DiscordChannelID == "" {
		errors = append(errors, "DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID are required for the worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
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
	return errors
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create database directory '%s': %v", dir, err)
		}
	}
	return nil
}

func parseTokens(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		token, owner, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		token, owner = strings.TrimSpace(token), strings.TrimSpace(owner)
		if token == "" || owner == "" {
			continue
		}
		out[token] = owner
	}
	return out
}

func parseList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
