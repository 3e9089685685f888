package users

import (
	"time"

	"github.com/memtensor/usergrid/pkg/config"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// Config holds the settings of the user management system
type Config struct {
	// Token signing
	SecretKey         string        `json:"-" yaml:"secret_key"`
	Issuer            string        `json:"issuer" yaml:"issuer"`
	AccessTokenExpire time.Duration `json:"access_token_expire" yaml:"access_token_expire"`
	ResetTokenExpire  time.Duration `json:"reset_token_expire" yaml:"reset_token_expire"`

	PasswordPolicy PasswordPolicy `json:"password_policy" yaml:"password_policy"`

	// Password recovery mail
	MailFrom    string `json:"mail_from" yaml:"mail_from"`
	ProjectName string `json:"project_name" yaml:"project_name"`
	ResetURL    string `json:"reset_url" yaml:"reset_url"`

	// Datatable paging
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`
	MaxLimit     int `json:"max_limit" yaml:"max_limit"`
}

// PasswordPolicy defines password requirements
type PasswordPolicy struct {
	MinLength        int  `json:"min_length" yaml:"min_length"`
	RequireUppercase bool `json:"require_uppercase" yaml:"require_uppercase"`
	RequireLowercase bool `json:"require_lowercase" yaml:"require_lowercase"`
	RequireNumbers   bool `json:"require_numbers" yaml:"require_numbers"`
	RequireSymbols   bool `json:"require_symbols" yaml:"require_symbols"`
}

// DefaultConfig returns a default configuration for the user management system
func DefaultConfig() *Config {
	return FromAppConfig(config.Default())
}

// FromAppConfig extracts the user settings from the service configuration
func FromAppConfig(cfg *config.Config) *Config {
	return &Config{
		SecretKey:         cfg.Auth.SecretKey,
		Issuer:            cfg.Auth.Issuer,
		AccessTokenExpire: cfg.Auth.AccessTokenExpire,
		ResetTokenExpire:  cfg.Auth.ResetTokenExpire,
		PasswordPolicy: PasswordPolicy{
			MinLength: cfg.Auth.PasswordMinLength,
		},
		MailFrom:     cfg.Mail.From,
		ProjectName:  cfg.Mail.ProjectName,
		ResetURL:     cfg.Mail.ResetURL,
		DefaultLimit: cfg.Datatable.DefaultLimit,
		MaxLimit:     cfg.Datatable.MaxLimit,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.SecretKey) < 16 {
		return apperrors.NewConfigInvalidError("secret_key must be at least 16 characters")
	}
	if c.AccessTokenExpire <= 0 {
		return apperrors.NewConfigInvalidError("access_token_expire must be positive")
	}
	if c.ResetTokenExpire <= 0 {
		return apperrors.NewConfigInvalidError("reset_token_expire must be positive")
	}
	if c.PasswordPolicy.MinLength < 1 {
		return apperrors.NewConfigInvalidError("password minimum length must be at least 1")
	}
	return nil
}
