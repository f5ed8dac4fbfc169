package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LOGGERCTL_"

// BrokerAWS selects the mutual TLS cloud adapter.
const BrokerAWS = "aws"

type Config struct {
	// MQTT
	ClientID        string `yaml:"client_id"`
	Topic           string `yaml:"topic"`
	Broker          string `yaml:"broker"`
	Server          string `yaml:"server"`
	Port            int    `yaml:"port"`
	CertificateRoot string `yaml:"certificate_root"`
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`

	// Logger addressing
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Redis
	RedisHost       string `yaml:"redis_host"`
	RedisPort       string `yaml:"redis_port"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	LeaseTTLSeconds int    `yaml:"lease_ttl_seconds"`

	// Application
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
}

// FieldError reports an invalid or missing configuration field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func defaults() *Config {
	return &Config{
		Broker:         "generic",
		ClientID:       "loggerctl",
		Model:          "cr1000x",
		TimeoutSeconds: 20,
		RedisPort:      "6379",
		LogLevel:       "info",
		HTTPAddr:       ":8080",
	}
}

// Load builds the configuration from the YAML file at path (skipped when
// path is empty), then a .env file, then LOGGERCTL_* environment variables.
// Later sources override earlier ones.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = cfg.defaultPort()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.ClientID = getEnv("CLIENT_ID", c.ClientID)
	c.Topic = getEnv("TOPIC", c.Topic)
	c.Broker = getEnv("BROKER", c.Broker)
	c.Server = getEnv("SERVER", c.Server)
	c.CertificateRoot = getEnv("CERTIFICATE_ROOT", c.CertificateRoot)
	c.PublicKey = getEnv("PUBLIC_KEY", c.PublicKey)
	c.PrivateKey = getEnv("PRIVATE_KEY", c.PrivateKey)
	c.Username = getEnv("USERNAME", c.Username)
	c.Password = getEnv("PASSWORD", c.Password)
	c.Model = getEnv("MODEL", c.Model)
	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnv("REDIS_PORT", c.RedisPort)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)

	ints := []struct {
		key string
		dst *int
	}{
		{"PORT", &c.Port},
		{"TIMEOUT_SECONDS", &c.TimeoutSeconds},
		{"REDIS_DB", &c.RedisDB},
		{"LEASE_TTL_SECONDS", &c.LeaseTTLSeconds},
	}
	for _, i := range ints {
		raw := getEnv(i.key, "")
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return &FieldError{Field: strings.ToLower(i.key), Message: fmt.Sprintf("%s%s is not an integer: %q", envPrefix, i.key, raw)}
		}
		*i.dst = n
	}
	return nil
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Server == "" {
		errs = append(errs, &FieldError{Field: "server", Message: "required"})
	}
	if c.Topic == "" {
		errs = append(errs, &FieldError{Field: "topic", Message: "required"})
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, &FieldError{Field: "port", Message: fmt.Sprintf("out of range: %d", c.Port)})
	}
	if c.IsCloud() {
		if c.PublicKey == "" {
			errs = append(errs, &FieldError{Field: "public_key", Message: "required for the aws broker"})
		}
		if c.PrivateKey == "" {
			errs = append(errs, &FieldError{Field: "private_key", Message: "required for the aws broker"})
		}
	}
	return errors.Join(errs...)
}

// IsCloud reports whether the mutual TLS cloud adapter is selected.
func (c *Config) IsCloud() bool {
	return strings.EqualFold(c.Broker, BrokerAWS)
}

func (c *Config) defaultPort() int {
	if c.IsCloud() {
		return 8883
	}
	return 1883
}

// Timeout is the default wait for a command response.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisEnabled reports whether device leases should be taken.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// LeaseGrace is added to a command timeout to get its lease TTL.
const LeaseGrace = 10 * time.Second

// LeaseTTL is the configured lease TTL, or the default command timeout plus
// LeaseGrace.
func (c *Config) LeaseTTL() time.Duration {
	if c.LeaseTTLSeconds > 0 {
		return time.Duration(c.LeaseTTLSeconds) * time.Second
	}
	return c.Timeout() + LeaseGrace
}

// LeaseTTLFor returns the TTL for a lease guarding a command that waits up
// to timeout. It is never shorter than timeout plus LeaseGrace.
func (c *Config) LeaseTTLFor(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		timeout = c.Timeout()
	}
	ttl := c.LeaseTTL()
	if floor := timeout + LeaseGrace; ttl < floor {
		ttl = floor
	}
	return ttl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}
