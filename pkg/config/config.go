// Package config provides configuration management for usergrid
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// EnvPrefix is prepended to every environment override, e.g. USERGRID_DATABASE_DSN
const EnvPrefix = "USERGRID"

// Config is the root configuration of the service
type Config struct {
	App            AppConfig       `mapstructure:"app" yaml:"app" json:"app"`
	Server         ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	CORS           CORSConfig      `mapstructure:"cors" yaml:"cors" json:"cors"`
	Database       DatabaseConfig  `mapstructure:"database" yaml:"database" json:"database"`
	Auth           AuthConfig      `mapstructure:"auth" yaml:"auth" json:"auth"`
	Datatable      DatatableConfig `mapstructure:"datatable" yaml:"datatable" json:"datatable"`
	Mail           MailConfig      `mapstructure:"mail" yaml:"mail" json:"mail"`
	Redis          RedisConfig     `mapstructure:"redis" yaml:"redis" json:"redis"`
	Log            LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	FirstSuperuser SuperuserConfig `mapstructure:"first_superuser" yaml:"first_superuser" json:"first_superuser"`
}

// AppConfig identifies the deployment
type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
	Env  string `mapstructure:"env" yaml:"env" json:"env" validate:"oneof=development staging production test"`
}

// ServerConfig represents API server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host" validate:"required"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port" validate:"required,gt=0,lt=65536"`
	APIPrefix       string        `mapstructure:"api_prefix" yaml:"api_prefix" json:"api_prefix" validate:"required,startswith=/"`
	Mode            string        `mapstructure:"mode" yaml:"mode" json:"mode" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	Docs            bool          `mapstructure:"docs" yaml:"docs" json:"docs"`
}

// CORSConfig lists the origins allowed to call the API
type CORSConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Origins []string `mapstructure:"origins" yaml:"origins" json:"origins"`
}

// DatabaseConfig selects and tunes the SQL backend
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver" json:"driver" validate:"oneof=sqlite mysql"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn" json:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnectAttempts uint          `mapstructure:"connect_attempts" yaml:"connect_attempts" json:"connect_attempts" validate:"gte=1"`
	ConnectDelay    time.Duration `mapstructure:"connect_delay" yaml:"connect_delay" json:"connect_delay"`
	AutoMigrate     bool          `mapstructure:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level" json:"log_level" validate:"oneof=silent error warn info"`
}

// AuthConfig holds token signing and password policy settings
type AuthConfig struct {
	SecretKey         string        `mapstructure:"secret_key" yaml:"secret_key" json:"-" validate:"required,min=16"`
	Issuer            string        `mapstructure:"issuer" yaml:"issuer" json:"issuer"`
	AccessTokenExpire time.Duration `mapstructure:"access_token_expire" yaml:"access_token_expire" json:"access_token_expire" validate:"gt=0"`
	ResetTokenExpire  time.Duration `mapstructure:"reset_token_expire" yaml:"reset_token_expire" json:"reset_token_expire" validate:"gt=0"`
	PasswordMinLength int           `mapstructure:"password_min_length" yaml:"password_min_length" json:"password_min_length" validate:"gte=1"`
}

// DatatableConfig bounds datatable paging
type DatatableConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit" json:"default_limit" validate:"gt=0,ltefield=MaxLimit"`
	MaxLimit     int `mapstructure:"max_limit" yaml:"max_limit" json:"max_limit" validate:"gt=0"`
}

// MailConfig selects the outgoing mail backend
type MailConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend" json:"backend" validate:"oneof=log nats http"`
	From        string        `mapstructure:"from" yaml:"from" json:"from" validate:"required,email"`
	ProjectName string        `mapstructure:"project_name" yaml:"project_name" json:"project_name"`
	ResetURL    string        `mapstructure:"reset_url" yaml:"reset_url" json:"reset_url" validate:"required,url"`
	NATSURL     string        `mapstructure:"nats_url" yaml:"nats_url" json:"nats_url" validate:"required_if=Backend nats"`
	NATSSubject string        `mapstructure:"nats_subject" yaml:"nats_subject" json:"nats_subject"`
	RelayURL    string        `mapstructure:"relay_url" yaml:"relay_url" json:"relay_url" validate:"required_if=Backend http"`
	RelayToken  string        `mapstructure:"relay_token" yaml:"relay_token" json:"-"`
	MaxRetries  uint64        `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// RedisConfig points at the store for single-use reset tokens
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr" json:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password" yaml:"password" json:"-"`
	DB       int    `mapstructure:"db" yaml:"db" json:"db" validate:"gte=0"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	File    string `mapstructure:"file" yaml:"file" json:"file"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color" json:"no_color"`
}

// RateLimitConfig throttles the unauthenticated auth endpoints per client IP
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute" validate:"gte=0"`
	Burst             int  `mapstructure:"burst" yaml:"burst" json:"burst" validate:"gte=0"`
}

// SuperuserConfig is the account seeded on an empty database
type SuperuserConfig struct {
	Username string `mapstructure:"username" yaml:"username" json:"username" validate:"required"`
	Email    string `mapstructure:"email" yaml:"email" json:"email" validate:"omitempty,email"`
	Password string `mapstructure:"password" yaml:"password" json:"-" validate:"required"`
	FullName string `mapstructure:"full_name" yaml:"full_name" json:"full_name"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "usergrid",
			Env:  "development",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			APIPrefix:       "/api/v1",
			Mode:            "release",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Docs:            true,
		},
		CORS: CORSConfig{
			Enabled: true,
			Origins: []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "usergrid.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectAttempts: 5,
			ConnectDelay:    time.Second,
			AutoMigrate:     true,
			LogLevel:        "silent",
		},
		Auth: AuthConfig{
			SecretKey:         "change-this-secret-key-in-production",
			Issuer:            "usergrid",
			AccessTokenExpire: 8 * 24 * time.Hour,
			ResetTokenExpire:  48 * time.Hour,
			PasswordMinLength: 8,
		},
		Datatable: DatatableConfig{
			DefaultLimit: 25,
			MaxLimit:     100,
		},
		Mail: MailConfig{
			Backend:     "log",
			From:        "noreply@usergrid.local",
			ProjectName: "usergrid",
			ResetURL:    "http://localhost:3000/reset-password",
			NATSSubject: "usergrid.mail",
			MaxRetries:  3,
			Timeout:     10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Log: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
			Burst:             10,
		},
		FirstSuperuser: SuperuserConfig{
			Username: "admin",
			Email:    "admin@example.com",
			Password: "changethis",
			FullName: "Administrator",
		},
	}
}

var validate = validator.New()

// Validate checks struct constraints and reports every violation
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewConfigInvalidError(err.Error())
	}

	list := apperrors.NewErrorList()
	for _, fe := range verrs {
		list.Add(apperrors.NewConfigInvalidError(
			fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag())).
			WithDetail("field", fe.Namespace()).
			WithDetail("tag", fe.Tag()))
	}
	return list.ToError()
}

// ToYAMLFile saves configuration to a YAML file
func (c *Config) ToYAMLFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := c.YAML()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Redacted returns a copy with credentials masked
func (c *Config) Redacted() *Config {
	out := *c
	out.CORS.Origins = append([]string(nil), c.CORS.Origins...)
	mask := func(s *string) {
		if *s != "" {
			*s = "******"
		}
	}
	mask(&out.Auth.SecretKey)
	mask(&out.Mail.RelayToken)
	mask(&out.Redis.Password)
	mask(&out.FirstSuperuser.Password)
	return &out
}

// YAML renders the configuration
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Load reads path (YAML or JSON, optional) on top of the defaults, applies
// USERGRID_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	m, err := NewManager(path)
	if err != nil {
		return nil, err
	}
	return m.Config(), nil
}

// Manager owns the viper instance and the current configuration
type Manager struct {
	mu     sync.RWMutex
	viper  *viper.Viper
	config *Config
}

// NewManager creates a configuration manager and performs the initial load
func NewManager(path string) (*Manager, error) {
	v := LoadFromEnv(EnvPrefix)
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Manager{viper: v, config: cfg}, nil
}

// Config returns the current configuration
func (m *Manager) Config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.config
}

// Set overrides a single key and re-decodes
func (m *Manager) Set(key string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viper.Set(key, value)
	cfg, err := decode(m.viper)
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Watch reloads the file on change. Invalid edits are reported to onError
// and the previous configuration stays in effect.
func (m *Manager) Watch(onChange func(*Config), onError func(error)) {
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		m.mu.Lock()
		cfg, err := decode(m.viper)
		if err == nil {
			m.config = cfg
		}
		m.mu.Unlock()

		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	m.viper.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.env", d.App.Env)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.api_prefix", d.Server.APIPrefix)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.docs", d.Server.Docs)

	v.SetDefault("cors.enabled", d.CORS.Enabled)
	v.SetDefault("cors.origins", d.CORS.Origins)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.connect_attempts", d.Database.ConnectAttempts)
	v.SetDefault("database.connect_delay", d.Database.ConnectDelay)
	v.SetDefault("database.auto_migrate", d.Database.AutoMigrate)
	v.SetDefault("database.log_level", d.Database.LogLevel)

	v.SetDefault("auth.secret_key", d.Auth.SecretKey)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.access_token_expire", d.Auth.AccessTokenExpire)
	v.SetDefault("auth.reset_token_expire", d.Auth.ResetTokenExpire)
	v.SetDefault("auth.password_min_length", d.Auth.PasswordMinLength)

	v.SetDefault("datatable.default_limit", d.Datatable.DefaultLimit)
	v.SetDefault("datatable.max_limit", d.Datatable.MaxLimit)

	v.SetDefault("mail.backend", d.Mail.Backend)
	v.SetDefault("mail.from", d.Mail.From)
	v.SetDefault("mail.project_name", d.Mail.ProjectName)
	v.SetDefault("mail.reset_url", d.Mail.ResetURL)
	v.SetDefault("mail.nats_url", d.Mail.NATSURL)
	v.SetDefault("mail.nats_subject", d.Mail.NATSSubject)
	v.SetDefault("mail.relay_url", d.Mail.RelayURL)
	v.SetDefault("mail.relay_token", d.Mail.RelayToken)
	v.SetDefault("mail.max_retries", d.Mail.MaxRetries)
	v.SetDefault("mail.timeout", d.Mail.Timeout)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.no_color", d.Log.NoColor)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_minute", d.RateLimit.RequestsPerMinute)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("first_superuser.username", d.FirstSuperuser.Username)
	v.SetDefault("first_superuser.email", d.FirstSuperuser.Email)
	v.SetDefault("first_superuser.password", d.FirstSuperuser.Password)
	v.SetDefault("first_superuser.full_name", d.FirstSuperuser.FullName)
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}
