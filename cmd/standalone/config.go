package main

import (
	"fmt"
	"log"
	"os"

	"casdoorlink/core"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Core core.Config `yaml:",inline"`

	DB     DBConfig     `yaml:"db"`
	Events EventsConfig `yaml:"events"`
	Log    LogConfig    `yaml:"log"`

	Port            string `yaml:"port"`
	CallbackEnabled bool   `yaml:"callback_enabled"`
}

type DBConfig struct {
	Type       string `yaml:"type"`
	SQLitePath string `yaml:"sqlite_path"`
	MySQLDSN   string `yaml:"mysql_dsn"`
}

type EventsConfig struct {
	RabbitMQURL string `yaml:"rabbitmq_url"`
	Exchange    string `yaml:"exchange"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// loadConfig reads an optional .env, then the YAML file, then env overrides.
func loadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Ignoring .env: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)
	applyDefaults(&config)

	if err := config.Core.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnvOverrides(config *AppConfig) {
	overrides := []struct {
		key  string
		dest *string
	}{
		{"CASDOOR_CLIENT_SECRET", &config.Core.Casdoor.ClientSecret},
		{"SESSION_SECRET", &config.Core.Session.Secret},
		{"ENCRYPTION_KEY", &config.Core.Crypto.EncryptionKey},
		{"MYSQL_DSN", &config.DB.MySQLDSN},
		{"RABBITMQ_URL", &config.Events.RabbitMQURL},
		{"PORT", &config.Port},
	}
	for _, o := range overrides {
		*o.dest = getEnv(o.key, *o.dest)
	}
}

func applyDefaults(config *AppConfig) {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.DB.Type == "" {
		config.DB.Type = "sqlite"
	}
	if config.DB.SQLitePath == "" {
		config.DB.SQLitePath = "casdoorlink.db"
	}
	if config.Events.Exchange == "" {
		config.Events.Exchange = "casdoor.events"
	}
	if config.Core.Locale == "" {
		config.Core.Locale = "en-US"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
