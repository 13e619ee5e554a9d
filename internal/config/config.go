package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	AWS       AWSConfig       `yaml:"aws"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	JWT       JWTConfig       `yaml:"jwt"`
	App       AppConfig       `yaml:"app"`
	Capsule   CapsuleConfig   `yaml:"capsule"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds object storage configuration
type AWSConfig struct {
	Region     string `yaml:"region"`
	S3Bucket   string `yaml:"s3_bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"` // custom endpoint for S3-compatible providers
	DisableSSL bool   `yaml:"disable_ssl"`
}

// SMTPConfig holds mail relay configuration
type SMTPConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	From               string `yaml:"from"`
	SendTimeoutSeconds int    `yaml:"send_timeout_seconds"`
	MaxAttempts        int    `yaml:"max_attempts"`
}

// SendTimeout returns the per-send timeout as a duration.
func (c *SMTPConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	// BaseURL is the public frontend URL used in notification emails,
	// e.g. https://capsule.example.com
	BaseURL string `yaml:"base_url"`
}

// CapsuleConfig holds ingestion limits
type CapsuleConfig struct {
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
	MaxFilesPerKind  int   `yaml:"max_files_per_kind"`
}

// SchedulerConfig holds notification sweep settings
type SchedulerConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	Workers              int `yaml:"workers"`
}

// SweepInterval returns the sweep cadence as a duration.
func (c *SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Capsule.MaxFileSizeBytes <= 0 {
		c.Capsule.MaxFileSizeBytes = 50 << 20 // 50 MiB
	}
	if c.Capsule.MaxFilesPerKind <= 0 {
		c.Capsule.MaxFilesPerKind = 5
	}
	if c.Scheduler.SweepIntervalSeconds <= 0 {
		c.Scheduler.SweepIntervalSeconds = 30
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 4
	}
	if c.SMTP.SendTimeoutSeconds <= 0 {
		c.SMTP.SendTimeoutSeconds = 15
	}
	if c.SMTP.MaxAttempts <= 0 {
		c.SMTP.MaxAttempts = 3
	}
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
