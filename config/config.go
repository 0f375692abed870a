// Package config loads service settings from config.yaml with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"houseprice/ml"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOUSEPRICE_"

type Config struct {
	Database struct {
		Path string `yaml:"path"`
		// Retention bounds the age of logged predictions. Zero keeps all.
		Retention time.Duration `yaml:"retention"`
	} `yaml:"database"`
	Http struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Dataset struct {
		Path         string  `yaml:"path"`
		OutlierSigma float64 `yaml:"outlier_sigma"`
		SampleSeed   int64   `yaml:"sample_seed"`
	} `yaml:"dataset"`
	Model struct {
		Type           string `yaml:"type"`
		Dir            string `yaml:"dir"`
		Estimators     int    `yaml:"estimators"`
		MaxDepth       int    `yaml:"max_depth"`
		MinSamplesLeaf int    `yaml:"min_samples_leaf"`
		MaxFeatures    int    `yaml:"max_features"`
		MaxSamples     int    `yaml:"max_samples"`
		Seed           int64  `yaml:"seed"`
	} `yaml:"model"`
	Cache struct {
		Size int `yaml:"size"`
	} `yaml:"cache"`
}

// Default returns the settings used when config.yaml omits a value.
func Default() *Config {
	c := &Config{}
	c.Database.Path = "houseprice.db"
	c.Http.Port = 5000
	c.Http.ReadTimeout = 15 * time.Second
	c.Http.WriteTimeout = 15 * time.Second
	c.Http.RequestTimeout = 10 * time.Second
	c.Http.ShutdownTimeout = 10 * time.Second
	c.Http.AllowedOrigins = []string{"*"}
	c.Log.Level = "info"
	c.Log.MaxSizeMB = 100
	c.Log.MaxBackups = 3
	c.Log.MaxAgeDays = 28
	c.Dataset.Path = "india_housing_prices.csv"
	c.Dataset.SampleSeed = 42
	c.Model.Type = ml.ModelRandomForest
	c.Model.Estimators = 100
	c.Model.MaxDepth = 10
	c.Model.MinSamplesLeaf = 1
	c.Model.Seed = 42
	c.Cache.Size = 1024
	return c
}

// Load reads path over the defaults, then applies .env and HOUSEPRICE_*
// environment overrides. A missing config file is not an error.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		if err := c.readFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	// a missing .env falls back to the process environment
	_ = godotenv.Load()
	c.applyEnv()
	return c, c.Validate()
}

func (c *Config) readFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return yaml.NewDecoder(file).Decode(c)
}

func (c *Config) applyEnv() {
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Http.Port = getEnvInt("PORT", c.Http.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Dataset.Path = getEnv("DATASET", c.Dataset.Path)
	c.Model.Type = getEnv("MODEL_TYPE", c.Model.Type)
	c.Model.Dir = getEnv("MODEL_DIR", c.Model.Dir)
	c.Model.Estimators = getEnvInt("ESTIMATORS", c.Model.Estimators)
	c.Cache.Size = getEnvInt("CACHE_SIZE", c.Cache.Size)
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Dataset.Path == "" {
		return errors.New("dataset path is required")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database retention must not be negative, got %v", c.Database.Retention)
	}
	if c.Dataset.OutlierSigma < 0 {
		return fmt.Errorf("outlier_sigma must not be negative, got %v", c.Dataset.OutlierSigma)
	}
	switch c.Model.Type {
	case ml.ModelRandomForest, ml.ModelDecisionTree, ml.ModelLinear:
	default:
		return fmt.Errorf("unsupported model type %q", c.Model.Type)
	}
	return nil
}

// ModelOptions returns the model hyperparameters.
func (c *Config) ModelOptions() ml.ModelOptions {
	return ml.ModelOptions{
		Estimators:     c.Model.Estimators,
		MaxDepth:       c.Model.MaxDepth,
		MinSamplesLeaf: c.Model.MinSamplesLeaf,
		MaxFeatures:    c.Model.MaxFeatures,
		MaxSamples:     c.Model.MaxSamples,
		Seed:           c.Model.Seed,
	}
}

// LevelFromFile re-reads only the log level from path.
func LevelFromFile(path string) (string, error) {
	c := Default()
	if err := c.readFile(path); err != nil {
		return "", err
	}
	return getEnv("LOG_LEVEL", c.Log.Level), nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
