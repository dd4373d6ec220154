// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort                = 8080
	defaultServerHost                = "0.0.0.0"
	defaultReadTimeout               = 30 * time.Second
	defaultWriteTimeout              = 30 * time.Second
	defaultShutdownTimeout           = 10 * time.Second
	defaultDatabasePath              = "./data/urnext.db"
	defaultDatabaseConnectionTimeout = 5 * time.Second
	defaultDatabaseBusyTimeout       = 5 * time.Second
	defaultDatabaseEnableWAL         = true
	defaultMigrationsPath            = "file://migrations"
	defaultLogLevel                  = "info"
	defaultLogPretty                 = false
	defaultAuthAllowQueryToken       = true
	defaultRealtimeBroker            = BrokerMemory
	defaultRealtimeChannelPrefix     = "urnext:"
	defaultRealtimeBuffer            = 16
	defaultMailDriver                = MailDriverLog
	defaultMailFrom                  = "urNext <noreply@urnext.app>"
	defaultMailInviteBaseURL         = "http://localhost:5173/"
	defaultMailSMTPPort              = 587
	defaultMailSMTPTimeout           = 10 * time.Second
	defaultMailSweepInterval         = time.Minute
	defaultMailBatchSize             = 50
	defaultMailBreakerThreshold      = 5
	defaultMailBreakerReset          = 2 * time.Minute
	defaultMailMaxAttempts           = 5
	defaultMailRetryBackoff          = time.Minute
	defaultTMDBBaseURL               = "https://api.themoviedb.org/3"
	defaultTMDBTimeout               = 10 * time.Second
	defaultMetricsEnabled            = true
	defaultMetricsPath               = "/metrics"
	envPrefix                        = "URNEXT"
)

// Realtime broker implementations
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Mail sender implementations
const (
	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
	Mail     MailConfig
	TMDB     TMDBConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path              string
	ConnectionTimeout time.Duration
	BusyTimeout       time.Duration
	EnableWAL         bool
	MigrationsPath    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret       string
	Issuer          string
	AllowQueryToken bool
}

// RealtimeConfig holds change notification settings
type RealtimeConfig struct {
	Broker        string
	RedisURL      string
	ChannelPrefix string
	Buffer        int
}

// MailConfig holds invite email settings
type MailConfig struct {
	Driver           string
	From             string
	InviteBaseURL    string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPTimeout      time.Duration
	SweepInterval    time.Duration
	BatchSize        int
	BreakerThreshold int
	BreakerReset     time.Duration
	MaxAttempts      int
	RetryBackoff     time.Duration
}

// TMDBConfig holds media search settings. An empty APIKey disables search.
type TMDBConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// Load .env file if present (optional, won't error if missing)
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/urnext")

	// Environment variable settings
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key needs a default so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)
	v.SetDefault("server.shutdowntimeout", defaultShutdownTimeout)
	v.SetDefault("server.corsorigins", []string{})

	// Database defaults
	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.connectiontimeout", defaultDatabaseConnectionTimeout)
	v.SetDefault("database.busytimeout", defaultDatabaseBusyTimeout)
	v.SetDefault("database.enablewal", defaultDatabaseEnableWAL)
	v.SetDefault("database.migrationspath", defaultMigrationsPath)

	// Logging defaults
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)

	// Auth defaults
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.allowquerytoken", defaultAuthAllowQueryToken)

	// Realtime defaults
	v.SetDefault("realtime.broker", defaultRealtimeBroker)
	v.SetDefault("realtime.redisurl", "")
	v.SetDefault("realtime.channelprefix", defaultRealtimeChannelPrefix)
	v.SetDefault("realtime.buffer", defaultRealtimeBuffer)

	// Mail defaults
	v.SetDefault("mail.driver", defaultMailDriver)
	v.SetDefault("mail.from", defaultMailFrom)
	v.SetDefault("mail.invitebaseurl", defaultMailInviteBaseURL)
	v.SetDefault("mail.smtphost", "")
	v.SetDefault("mail.smtpport", defaultMailSMTPPort)
	v.SetDefault("mail.smtpusername", "")
	v.SetDefault("mail.smtppassword", "")
	v.SetDefault("mail.smtptimeout", defaultMailSMTPTimeout)
	v.SetDefault("mail.sweepinterval", defaultMailSweepInterval)
	v.SetDefault("mail.batchsize", defaultMailBatchSize)
	v.SetDefault("mail.breakerthreshold", defaultMailBreakerThreshold)
	v.SetDefault("mail.breakerreset", defaultMailBreakerReset)
	v.SetDefault("mail.maxattempts", defaultMailMaxAttempts)
	v.SetDefault("mail.retrybackoff", defaultMailRetryBackoff)

	// TMDB defaults
	v.SetDefault("tmdb.apikey", "")
	v.SetDefault("tmdb.baseurl", defaultTMDBBaseURL)
	v.SetDefault("tmdb.timeout", defaultTMDBTimeout)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaultMetricsEnabled)
	v.SetDefault("metrics.path", defaultMetricsPath)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	// Validate server port
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}

	// Validate timeout durations
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %v (must be > 0)", c.Server.ShutdownTimeout)
	}
	if c.Database.ConnectionTimeout <= 0 {
		return fmt.Errorf("invalid database connection timeout: %v (must be > 0)", c.Database.ConnectionTimeout)
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("invalid database busy timeout: %v (must be >= 0)", c.Database.BusyTimeout)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	// Validate auth
	if c.Auth.JWTSecret == "" {
		return errors.New("auth JWT secret is required (set URNEXT_AUTH_JWTSECRET)")
	}

	// Validate realtime broker
	validBrokers := []string{BrokerMemory, BrokerRedis}
	if !contains(validBrokers, c.Realtime.Broker) {
		return fmt.Errorf("invalid realtime broker: %s (must be one of: %s)", c.Realtime.Broker, strings.Join(validBrokers, ", "))
	}
	if c.Realtime.Broker == BrokerRedis && c.Realtime.RedisURL == "" {
		return errors.New("realtime redis URL is required when broker is redis")
	}
	if c.Realtime.Buffer < 1 {
		return fmt.Errorf("invalid realtime buffer: %d (must be >= 1)", c.Realtime.Buffer)
	}

	if err := c.Mail.validate(); err != nil {
		return err
	}

	if c.TMDB.Timeout <= 0 {
		return fmt.Errorf("invalid tmdb timeout: %v (must be > 0)", c.TMDB.Timeout)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics path: %q (must start with /)", c.Metrics.Path)
	}

	return nil
}

func (m *MailConfig) validate() error {
	validDrivers := []string{MailDriverLog, MailDriverSMTP}
	if !contains(validDrivers, m.Driver) {
		return fmt.Errorf("invalid mail driver: %s (must be one of: %s)", m.Driver, strings.Join(validDrivers, ", "))
	}
	if _, err := mail.ParseAddress(m.From); err != nil {
		return fmt.Errorf("invalid mail from address %q: %w", m.From, err)
	}
	u, err := url.Parse(m.InviteBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid invite base URL: %q (must be absolute)", m.InviteBaseURL)
	}
	if m.Driver == MailDriverSMTP {
		if m.SMTPHost == "" {
			return errors.New("mail SMTP host is required when driver is smtp")
		}
		if m.SMTPPort < 1 || m.SMTPPort > 65535 {
			return fmt.Errorf("invalid SMTP port: %d (must be between 1 and 65535)", m.SMTPPort)
		}
		if m.SMTPTimeout <= 0 {
			return fmt.Errorf("invalid SMTP timeout: %v (must be > 0)", m.SMTPTimeout)
		}
	}
	if m.SweepInterval <= 0 {
		return fmt.Errorf("invalid mail sweep interval: %v (must be > 0)", m.SweepInterval)
	}
	if m.BatchSize < 1 {
		return fmt.Errorf("invalid mail batch size: %d (must be >= 1)", m.BatchSize)
	}
	if m.BreakerThreshold < 1 {
		return fmt.Errorf("invalid mail breaker threshold: %d (must be >= 1)", m.BreakerThreshold)
	}
	if m.BreakerReset <= 0 {
		return fmt.Errorf("invalid mail breaker reset: %v (must be > 0)", m.BreakerReset)
	}
	if m.MaxAttempts < 1 {
		return fmt.Errorf("invalid mail max attempts: %d (must be >= 1)", m.MaxAttempts)
	}
	if m.RetryBackoff <= 0 {
		return fmt.Errorf("invalid mail retry backoff: %v (must be > 0)", m.RetryBackoff)
	}
	return nil
}

// Address returns the host:port the HTTP server listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
