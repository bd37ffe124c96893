package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var columnPattern = regexp.MustCompile(`^[A-Z]{1,2}$`)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeIntake()
	c.normalizeServices()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = ExpandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = ExpandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = defaultBatchSize
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = defaultMaxAttempts
	}
	if c.Pipeline.RetryCoolDownSeconds < 0 {
		c.Pipeline.RetryCoolDownSeconds = defaultRetryCoolDownSeconds
	}
	if c.Pipeline.ItemLeaseTTLSeconds <= 0 {
		c.Pipeline.ItemLeaseTTLSeconds = defaultItemLeaseTTLSeconds
	}
	if c.Pipeline.SweepLeaseTTLSeconds <= 0 {
		c.Pipeline.SweepLeaseTTLSeconds = defaultSweepLeaseTTLSeconds
	}
}

func (c *Config) normalizeIntake() {
	c.Intake.SheetID = strings.TrimSpace(c.Intake.SheetID)
	if strings.TrimSpace(c.Intake.Worksheet) == "" {
		c.Intake.Worksheet = defaultIntakeWorksheet
	}
	c.Intake.Columns.URL = strings.ToUpper(strings.TrimSpace(c.Intake.Columns.URL))
	c.Intake.Columns.Status = strings.ToUpper(strings.TrimSpace(c.Intake.Columns.Status))
	c.Intake.Columns.PublishID = strings.ToUpper(strings.TrimSpace(c.Intake.Columns.PublishID))
	c.Intake.Columns.Error = strings.ToUpper(strings.TrimSpace(c.Intake.Columns.Error))
}

func (c *Config) normalizeServices() {
	c.Fetch.Endpoint = strings.TrimSpace(c.Fetch.Endpoint)
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultServiceTimeout
	}

	c.AI.BaseURL = strings.TrimSpace(c.AI.BaseURL)
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = defaultAIBaseURL
	}
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	if c.AI.APIKey == "" {
		if value, ok := os.LookupEnv("XAIO_AI_API_KEY"); ok {
			c.AI.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.AI.Model) == "" {
		c.AI.Model = defaultAIModel
	}
	if strings.TrimSpace(c.AI.MetaPromptSet) == "" {
		c.AI.MetaPromptSet = defaultMetaPromptSet
	}
	if strings.TrimSpace(c.AI.ClaimsPromptSet) == "" {
		c.AI.ClaimsPromptSet = defaultClaimsPromptSet
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = defaultServiceTimeout
	}

	c.Publish.Endpoint = strings.TrimSpace(c.Publish.Endpoint)
	c.Publish.APIKey = strings.TrimSpace(c.Publish.APIKey)
	if c.Publish.APIKey == "" {
		if value, ok := os.LookupEnv("XAIO_PUBLISH_API_KEY"); ok {
			c.Publish.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Publish.PostStatus) == "" {
		c.Publish.PostStatus = defaultPublishPostStatus
	}
	if c.Publish.TimeoutSeconds <= 0 {
		c.Publish.TimeoutSeconds = defaultServiceTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Validate checks cross-field constraints that normalization cannot repair.
func (c *Config) Validate() error {
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}

	columns := map[string]string{
		"intake.columns.url":        c.Intake.Columns.URL,
		"intake.columns.status":     c.Intake.Columns.Status,
		"intake.columns.publish_id": c.Intake.Columns.PublishID,
		"intake.columns.error":      c.Intake.Columns.Error,
	}
	seen := make(map[string]string, len(columns))
	for field, column := range columns {
		if !columnPattern.MatchString(column) {
			return fmt.Errorf("%s: %q is not a spreadsheet column letter", field, column)
		}
		if prior, dup := seen[column]; dup {
			return fmt.Errorf("%s: column %q already mapped to %s", field, column, prior)
		}
		seen[column] = field
	}

	return nil
}

// ItemLeaseTTL returns the per-item lease duration.
func (c *Config) ItemLeaseTTL() time.Duration {
	return time.Duration(c.Pipeline.ItemLeaseTTLSeconds) * time.Second
}

// SweepLeaseTTL returns the global sweep lease duration.
func (c *Config) SweepLeaseTTL() time.Duration {
	return time.Duration(c.Pipeline.SweepLeaseTTLSeconds) * time.Second
}

// RetryCoolDown returns how long a retryable failure stays ineligible.
func (c *Config) RetryCoolDown() time.Duration {
	return time.Duration(c.Pipeline.RetryCoolDownSeconds) * time.Second
}

// ExpandPath resolves ~ and environment variables and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	expanded := os.ExpandEnv(trimmed)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}
