package core

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Casdoor CasdoorConfig `yaml:"casdoor"`
	Session SessionConfig `yaml:"session"`
	Crypto  CryptoConfig  `yaml:"crypto"`

	// Default message locale, e.g. "en-US" or "zh-CN"
	Locale string `yaml:"locale"`
}

// CasdoorConfig holds the OAuth2 application registered in Casdoor
type CasdoorConfig struct {
	Server        string `yaml:"server"`         // Identity service base URL (authorize page)
	BackendServer string `yaml:"backend_server"` // API base URL
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	RedirectURI   string `yaml:"redirect_uri"`
	OrgName       string `yaml:"org_name"`
}

type SessionConfig struct {
	Secret        string `yaml:"secret"`         // HS256 key shared with the chat host
	TokenDuration int    `yaml:"token_duration"` // Session token lifetime in seconds
}

type CryptoConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // Optional, 32 bytes
}

var ErrInvalidConfig = errors.New("invalid config")

// Validate reports every missing required field at once.
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"casdoor.server", c.Casdoor.Server},
		{"casdoor.backend_server", c.Casdoor.BackendServer},
		{"casdoor.client_id", c.Casdoor.ClientID},
		{"casdoor.client_secret", c.Casdoor.ClientSecret},
		{"casdoor.redirect_uri", c.Casdoor.RedirectURI},
		{"casdoor.org_name", c.Casdoor.OrgName},
		{"session.secret", c.Session.Secret},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if key := c.Crypto.EncryptionKey; key != "" && len(key) != 32 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, ErrInvalidEncryptionKey)
	}

	return nil
}
