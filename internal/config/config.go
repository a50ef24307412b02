package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "INBOXLABELER_"

const (
	DefaultClassifierURL   = "http://localhost:5050"
	DefaultSingleThreshold = 0.7
	DefaultBatchThreshold  = 0.8
	DefaultBatchSize       = 5
	DefaultBatchPause      = 300 * time.Millisecond
	DefaultRefreshDelay    = 500 * time.Millisecond
	DefaultMaxRows         = 50
	DefaultCacheSize       = 1000
	DefaultObserveInterval = 2 * time.Second
)

// Config holds all configuration for inboxlabeler.
type Config struct {
	Classifier ClassifierConfig `yaml:"classifier"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	Batch      BatchConfig      `yaml:"batch"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Locator    LocatorConfig    `yaml:"locator"`
	Observer   ObserverConfig   `yaml:"observer"`
	Browser    BrowserConfig    `yaml:"browser"`
	Gmail      GmailConfig      `yaml:"gmail"`
	History    HistoryConfig    `yaml:"history"`
}

// ClassifierConfig points at the external prediction service.
type ClassifierConfig struct {
	URL string `yaml:"url"`
	// Timeout of zero means requests are bounded only by the caller's context.
	Timeout time.Duration `yaml:"timeout"`
}

// ThresholdConfig holds the minimum confidence required before a predicted
// label is applied.
type ThresholdConfig struct {
	Single float64 `yaml:"single"`
	Batch  float64 `yaml:"batch"`
}

type BatchConfig struct {
	Size  int           `yaml:"size"`
	Pause time.Duration `yaml:"pause"`
}

type RefreshConfig struct {
	Delay time.Duration `yaml:"delay"`
}

type LocatorConfig struct {
	MaxRows int `yaml:"max_rows"`
}

type ObserverConfig struct {
	CacheSize    int           `yaml:"cache_size"`
	Interval     time.Duration `yaml:"interval"`
	AutoClassify bool          `yaml:"auto_classify"`
}

// BrowserConfig selects the page source. CDPURL attaches to a running Chrome
// (e.g. ws://127.0.0.1:9222/devtools/browser/...); Snapshot reads a saved HTML file.
type BrowserConfig struct {
	CDPURL   string `yaml:"cdp_url"`
	Snapshot string `yaml:"snapshot"`
	// PageURL is used with Snapshot to stand in for the tab's location.
	PageURL string `yaml:"page_url"`
}

type GmailConfig struct {
	// Endpoint overrides the Gmail API base URL. Empty uses Google's.
	Endpoint  string `yaml:"endpoint"`
	TokenFile string `yaml:"token_file"`
	// CredentialsFile is the OAuth client JSON from the Google Cloud console.
	CredentialsFile string `yaml:"credentials_file"`
}

type HistoryConfig struct {
	// Path to the sqlite database. Empty disables history.
	Path string `yaml:"path"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Classifier: ClassifierConfig{URL: DefaultClassifierURL},
		Thresholds: ThresholdConfig{Single: DefaultSingleThreshold, Batch: DefaultBatchThreshold},
		Batch:      BatchConfig{Size: DefaultBatchSize, Pause: DefaultBatchPause},
		Refresh:    RefreshConfig{Delay: DefaultRefreshDelay},
		Locator:    LocatorConfig{MaxRows: DefaultMaxRows},
		Observer:   ObserverConfig{CacheSize: DefaultCacheSize, Interval: DefaultObserveInterval},
		Gmail:      GmailConfig{TokenFile: DefaultTokenPath(), CredentialsFile: defaultConfigFile("credentials.json")},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return defaultConfigFile("config.yaml")
}

// DefaultTokenPath returns where the OAuth token is cached by default.
func DefaultTokenPath() string {
	return defaultConfigFile("token.json")
}

func defaultConfigFile(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "inboxlabeler", name)
}

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from INBOXLABELER_* variables.
func (c *Config) ApplyEnv() error {
	c.Classifier.URL = getEnvOrDefault("CLASSIFIER_URL", c.Classifier.URL)
	c.Browser.CDPURL = getEnvOrDefault("CDP_URL", c.Browser.CDPURL)
	c.Browser.Snapshot = getEnvOrDefault("SNAPSHOT", c.Browser.Snapshot)
	c.Browser.PageURL = getEnvOrDefault("PAGE_URL", c.Browser.PageURL)
	c.Gmail.Endpoint = getEnvOrDefault("GMAIL_ENDPOINT", c.Gmail.Endpoint)
	c.Gmail.TokenFile = getEnvOrDefault("TOKEN_FILE", c.Gmail.TokenFile)
	c.Gmail.CredentialsFile = getEnvOrDefault("CREDENTIALS_FILE", c.Gmail.CredentialsFile)
	c.History.Path = getEnvOrDefault("HISTORY_PATH", c.History.Path)
	c.Observer.AutoClassify = getEnvBoolOrDefault("AUTO_CLASSIFY", c.Observer.AutoClassify)

	var err error
	if c.Thresholds.Single, err = getEnvFloatOrDefault("THRESHOLD_SINGLE", c.Thresholds.Single); err != nil {
		return err
	}
	if c.Thresholds.Batch, err = getEnvFloatOrDefault("THRESHOLD_BATCH", c.Thresholds.Batch); err != nil {
		return err
	}
	if c.Batch.Size, err = getEnvIntOrDefault("BATCH_SIZE", c.Batch.Size); err != nil {
		return err
	}
	if c.Batch.Pause, err = getEnvDurationOrDefault("BATCH_PAUSE", c.Batch.Pause); err != nil {
		return err
	}
	if c.Refresh.Delay, err = getEnvDurationOrDefault("REFRESH_DELAY", c.Refresh.Delay); err != nil {
		return err
	}
	if c.Classifier.Timeout, err = getEnvDurationOrDefault("CLASSIFIER_TIMEOUT", c.Classifier.Timeout); err != nil {
		return err
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Classifier.URL == "" {
		return fmt.Errorf("classifier url must not be empty")
	}
	if math.IsNaN(c.Thresholds.Single) || c.Thresholds.Single < 0 || c.Thresholds.Single > 1 {
		return fmt.Errorf("single threshold must be between 0.0 and 1.0, got %f", c.Thresholds.Single)
	}
	if math.IsNaN(c.Thresholds.Batch) || c.Thresholds.Batch < 0 || c.Thresholds.Batch > 1 {
		return fmt.Errorf("batch threshold must be between 0.0 and 1.0, got %f", c.Thresholds.Batch)
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.Batch.Size)
	}
	if c.Locator.MaxRows < 1 {
		return fmt.Errorf("locator max_rows must be at least 1, got %d", c.Locator.MaxRows)
	}
	if c.Observer.CacheSize < 1 {
		return fmt.Errorf("observer cache_size must be at least 1, got %d", c.Observer.CacheSize)
	}
	for name, d := range map[string]time.Duration{
		"batch pause":        c.Batch.Pause,
		"refresh delay":      c.Refresh.Delay,
		"classifier timeout": c.Classifier.Timeout,
		"observer interval":  c.Observer.Interval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.Browser.CDPURL != "" && c.Browser.Snapshot != "" {
		return fmt.Errorf("browser cdp_url and snapshot are mutually exclusive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return parsed, nil
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return parsed, nil
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return parsed, nil
}
