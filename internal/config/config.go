// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	RabbitMQ struct {
		URL string `yaml:"url"`
	} `yaml:"rabbitmq"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	WhatsApp WhatsAppDefaults `yaml:"whatsapp"`

	Twilio struct {
		AuthToken     string `yaml:"auth_token" env:"TWILIO_AUTH_TOKEN"`
		PublicBaseURL string `yaml:"public_base_url"`
	} `yaml:"twilio"`

	Storage struct {
		BaseURL    string `yaml:"base_url"`
		Bucket     string `yaml:"bucket"`
		ServiceKey string `yaml:"service_key" env:"STORAGE_SERVICE_KEY"`
	} `yaml:"storage"`

	Timezone string `yaml:"timezone"`

	Workers int `yaml:"workers"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	} `yaml:"auth"`
}

// WhatsAppDefaults are the process-wide fallback credentials used when no
// tenant can be resolved. Environment values override the yaml file.
type WhatsAppDefaults struct {
	GraphBaseURL  string `yaml:"graph_base_url"`
	AccessToken   string `yaml:"access_token" env:"WHATSAPP_ACCESS_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" env:"WHATSAPP_PHONE_NUMBER_ID"`
	BusinessID    string `yaml:"business_id" env:"WHATSAPP_BUSINESS_ID"`
	VerifyToken   string `yaml:"verify_token" env:"WHATSAPP_VERIFY_TOKEN"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.WhatsApp.GraphBaseURL == "" {
		c.WhatsApp.GraphBaseURL = "https://graph.facebook.com/v23.0"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Madrid"
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
}

// Location resolves the configured timezone. Message timestamps are stored
// naive in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
