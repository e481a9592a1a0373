// Package config provides Viper-based configuration loading for the duel server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override (DUEL_SERVER_PORT, ...).
const EnvPrefix = "DUEL"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// CORSOrigin is the single origin allowed cross-origin access; empty disables CORS headers.
	CORSOrigin string `mapstructure:"cors_origin"`
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert         string        `mapstructure:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TLSEnabled reports whether both a certificate and a key are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// AuthConfig holds login and cookie settings.
type AuthConfig struct {
	CookieName string `mapstructure:"cookie_name"`
	// CookieMaxAge is the cookie lifetime in seconds.
	CookieMaxAge       int  `mapstructure:"cookie_max_age"`
	AutoCreateAccounts bool `mapstructure:"auto_create_accounts"`
}

// PacketConfig holds binary packet settings.
type PacketConfig struct {
	// MaxSize is the fixed capacity allocated for every outbound packet.
	MaxSize int `mapstructure:"max_size"`
}

// SocketConfig holds realtime socket settings.
type SocketConfig struct {
	Path              string        `mapstructure:"path"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	Burst             int           `mapstructure:"burst"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ContentConfig locates the card reference data.
type ContentConfig struct {
	CardsFile   string `mapstructure:"cards_file"`
	DecksDir    string `mapstructure:"decks_dir"`
	StarterDeck string `mapstructure:"starter_deck"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Packet   PacketConfig   `mapstructure:"packet"`
	Socket   SocketConfig   `mapstructure:"socket"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Content  ContentConfig  `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateServer(c.Server),
		validateAuth(c.Auth),
		validatePacket(c.Packet),
		validateSocket(c.Socket),
		validateDatabase(c.Database),
		validateLogging(c.Logging),
		validateContent(c.Content),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if (s.TLSCert == "") != (s.TLSKey == "") {
		errs = append(errs, "server.tls_cert and server.tls_key must be set together")
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	return joinErrs(errs)
}

func validateAuth(a AuthConfig) error {
	var errs []string
	if a.CookieName == "" {
		errs = append(errs, "auth.cookie_name must not be empty")
	}
	if a.CookieMaxAge < 1 {
		errs = append(errs, fmt.Sprintf("auth.cookie_max_age must be >= 1, got %d", a.CookieMaxAge))
	}
	return joinErrs(errs)
}

func validatePacket(p PacketConfig) error {
	if p.MaxSize < 1 {
		return fmt.Errorf("packet.max_size must be >= 1, got %d", p.MaxSize)
	}
	return nil
}

func validateSocket(s SocketConfig) error {
	var errs []string
	if !strings.HasPrefix(s.Path, "/") {
		errs = append(errs, fmt.Sprintf("socket.path must start with '/', got %q", s.Path))
	}
	if s.MessagesPerSecond <= 0 {
		errs = append(errs, "socket.messages_per_second must be > 0")
	}
	if s.Burst < 1 {
		errs = append(errs, fmt.Sprintf("socket.burst must be >= 1, got %d", s.Burst))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "socket.write_timeout must be > 0")
	}
	if s.PingInterval <= 0 {
		errs = append(errs, "socket.ping_interval must be > 0")
	}
	if s.PongTimeout <= s.PingInterval {
		errs = append(errs, "socket.pong_timeout must exceed socket.ping_interval")
	}
	return joinErrs(errs)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return joinErrs(errs)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.CardsFile == "" {
		errs = append(errs, "content.cards_file must not be empty")
	}
	if c.DecksDir == "" {
		errs = append(errs, "content.decks_dir must not be empty")
	}
	if c.StarterDeck == "" {
		errs = append(errs, "content.starter_deck must not be empty")
	}
	return joinErrs(errs)
}

// legacyEnv maps configuration keys to the unprefixed environment names
// older deployments still set.
var legacyEnv = map[string]string{
	"server.port":               "SERVER_PORT",
	"server.cors_origin":        "CORS_ORIGIN",
	"server.tls_cert":           "TLS_CERT",
	"server.tls_key":            "TLS_KEY",
	"auth.cookie_name":          "COOKIE_NAME",
	"auth.cookie_max_age":       "COOKIE_MAX_AGE",
	"auth.auto_create_accounts": "AUTO_CREATE_ACCOUNTS",
	"packet.max_size":           "WRITE_PACKET_MAX_SIZE",
	"logging.level":             "DEFAULT_LOGGING_LEVEL",
	"database.host":             "DB_HOST",
	"database.port":             "DB_PORT",
	"database.user":             "DB_USER",
	"database.password":         "DB_PASSWORD",
	"database.name":             "DB_NAME",
}

// NewViper returns a Viper instance with defaults and environment bindings
// applied. Prefixed variables take precedence over legacy names.
//
// Postcondition: Returns a non-nil Viper with no config file set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(key, prefixed, legacy)
	}
	return v
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("auth.cookie_name", "auth-token")
	v.SetDefault("auth.cookie_max_age", 86400)
	v.SetDefault("auth.auto_create_accounts", false)

	v.SetDefault("packet.max_size", 65536)

	v.SetDefault("socket.path", "/socket")
	v.SetDefault("socket.messages_per_second", 50)
	v.SetDefault("socket.burst", 100)
	v.SetDefault("socket.write_timeout", "10s")
	v.SetDefault("socket.ping_interval", "25s")
	v.SetDefault("socket.pong_timeout", "60s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "duel")
	v.SetDefault("database.password", "duel")
	v.SetDefault("database.name", "duel")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("content.cards_file", "content/cards.yaml")
	v.SetDefault("content.decks_dir", "content/decks")
	v.SetDefault("content.starter_deck", "playerStarter")
}
