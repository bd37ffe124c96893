package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Pipeline contains engine tuning: batch sizes, retry budgets, and lease TTLs.
type Pipeline struct {
	BatchSize            int `toml:"batch_size"`
	MaxAttempts          int `toml:"max_attempts"`
	RetryCoolDownSeconds int `toml:"retry_cooldown_seconds"`
	ItemLeaseTTLSeconds  int `toml:"item_lease_ttl_seconds"`
	SweepLeaseTTLSeconds int `toml:"sweep_lease_ttl_seconds"`
}

// ColumnMap binds intake fields to spreadsheet column letters. The mapping is
// validated once at configuration load and never inferred at runtime.
type ColumnMap struct {
	URL       string `toml:"url"`
	Status    string `toml:"status"`
	PublishID string `toml:"publish_id"`
	Error     string `toml:"error"`
}

// Intake contains configuration for the spreadsheet-backed intake queue.
type Intake struct {
	SheetID   string    `toml:"sheet_id"`
	Worksheet string    `toml:"worksheet"`
	Columns   ColumnMap `toml:"columns"`
}

// Fetch contains configuration for the capture service.
type Fetch struct {
	Endpoint       string `toml:"endpoint"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AI contains configuration for the structured-output transformation service.
type AI struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	Model           string `toml:"model"`
	MetaPromptSet   string `toml:"meta_prompt_set"`
	ClaimsPromptSet string `toml:"claims_prompt_set"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Publish contains configuration for the CMS ingest endpoint.
type Publish struct {
	Endpoint       string `toml:"endpoint"`
	APIKey         string `toml:"api_key"`
	PostStatus     string `toml:"post_status"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for xaio.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories (ledger db, artifact store, logs)
//   - Pipeline: batch size, retry budget, cool-down, lease TTLs
//   - Intake: spreadsheet queue identity and typed column mapping
//   - Fetch: capture service endpoint
//   - AI: structured-output service connection and prompt set ids
//   - Publish: CMS ingest endpoint
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Pipeline Pipeline `toml:"pipeline"`
	Intake   Intake   `toml:"intake"`
	Fetch    Fetch    `toml:"fetch"`
	AI       AI       `toml:"ai"`
	Publish  Publish  `toml:"publish"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/xaio/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists the
// defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the configured data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CreateSample writes the embedded sample configuration to the target path.
func CreateSample(target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
