package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"` // postgres only
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Vision struct {
		APIKey         string  `yaml:"apiKey"`
		Model          string  `yaml:"model"`
		MinConfidence  float64 `yaml:"minConfidence"`
		MaxLabels      int     `yaml:"maxLabels"`
		DetectText     bool    `yaml:"detectText"`
		TimeoutSeconds int     `yaml:"timeoutSeconds"`
	} `yaml:"vision"`

	Redis struct {
		Addr       string `yaml:"addr"` // kosong = cache dimatikan
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		TTLSeconds int    `yaml:"ttlSeconds"`
	} `yaml:"redis"`

	Upload struct {
		ExpirySeconds int `yaml:"expirySeconds"`
	} `yaml:"upload"`
}

// Load baca file config.yaml dan isi default
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Vision.MinConfidence == 0 {
		c.Vision.MinConfidence = 75
	}
	if c.Vision.MaxLabels == 0 {
		c.Vision.MaxLabels = 10
	}
	if c.Vision.TimeoutSeconds == 0 {
		c.Vision.TimeoutSeconds = 30
	}
	if c.Redis.TTLSeconds == 0 {
		c.Redis.TTLSeconds = 30
	}
	if c.Upload.ExpirySeconds == 0 {
		c.Upload.ExpirySeconds = 300
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) UploadExpiry() time.Duration {
	return time.Duration(c.Upload.ExpirySeconds) * time.Second
}

func (c *Config) VisionTimeout() time.Duration {
	return time.Duration(c.Vision.TimeoutSeconds) * time.Second
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
