package config

import (
	"fmt"
	"os"

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
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey      string  `yaml:"apiKey"`
		BaseURL     string  `yaml:"baseURL"`
		Model       string  `yaml:"model"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"openai"`

	Analysis struct {
		DailyBudgetUSD  float64            `yaml:"dailyBudgetUSD"`
		CacheTTLHours   int                `yaml:"cacheTTLHours"`
		EstimatedTokens int                `yaml:"estimatedTokens"`
		TimeoutSeconds  int                `yaml:"timeoutSeconds"`
		RetryAttempts   int                `yaml:"retryAttempts"`
		Timezone        string             `yaml:"timezone"`
		RatePerToken    map[string]float64 `yaml:"ratePerToken"`
		DefaultRate     float64            `yaml:"defaultRate"`
	} `yaml:"analysis"`
}

// Load reads the config.yaml file
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
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4"
	}
	if c.OpenAI.Temperature <= 0 {
		c.OpenAI.Temperature = 0.7
	}
	if c.Analysis.DailyBudgetUSD <= 0 {
		c.Analysis.DailyBudgetUSD = 100.0
	}
	if c.Analysis.CacheTTLHours <= 0 {
		c.Analysis.CacheTTLHours = 24
	}
	if c.Analysis.Timezone == "" {
		c.Analysis.Timezone = "UTC"
	}
	if c.Analysis.RatePerToken == nil {
		c.Analysis.RatePerToken = map[string]float64{
			"gpt-4":         0.00003,
			"gpt-3.5-turbo": 0.000002,
		}
	}
	if c.Analysis.DefaultRate <= 0 {
		c.Analysis.DefaultRate = 0.00003
	}
}

// MySQLDSN builds the MySQL connection string
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the lib/pq connection string
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
