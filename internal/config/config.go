package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	DocumentDir string `toml:"document_dir"`
	LogDir      string `toml:"log_dir"`
}

// WorkQueue contains claim lifecycle settings shared by all queue backends.
type WorkQueue struct {
	// ClaimExpiryMinutes bounds how long a claim stays exclusive without
	// being completed or failed. Expired claims become reclaimable even if
	// the owning process died without cleanup.
	ClaimExpiryMinutes int `toml:"claim_expiry_minutes"`
	// RetryIntervalHours is the default wait before a failed item becomes
	// eligible again. Filters may override it per work type.
	RetryIntervalHours int `toml:"retry_interval_hours"`
}

// RateLimit contains the adaptive per-domain throttling policy.
type RateLimit struct {
	Backend             string  `toml:"backend"`
	BaseDelayMS         int     `toml:"base_delay_ms"`
	MinDelayMS          int     `toml:"min_delay_ms"`
	MaxDelayMS          int     `toml:"max_delay_ms"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	RecoveryMultiplier  float64 `toml:"recovery_multiplier"`
	RecoveryThreshold   int     `toml:"recovery_threshold"`
	SoftLimitWindowSecs int     `toml:"soft_limit_window_seconds"`
	SoftLimitThreshold  int     `toml:"soft_limit_threshold"`
	RetryAfterCapSecs   int     `toml:"retry_after_cap_seconds"`
	BucketBurst         int     `toml:"bucket_burst"`
}

// Pipeline contains chunking and execution-strategy settings.
type Pipeline struct {
	Strategy           string `toml:"strategy"`
	ChunkSize          int    `toml:"chunk_size"`
	ItemLimit          int    `toml:"item_limit"`
	DeferredWorkers    int    `toml:"deferred_workers"`
	EventBuffer        int    `toml:"event_buffer"`
	EventSendTimeoutMS int    `toml:"event_send_timeout_ms"`
}

// OCR contains text recognition settings.
type OCR struct {
	TesseractCommand string `toml:"tesseract_command"`
	// Languages lists recognition languages by ISO 639 code or English name
	// ("en", "eng", "spanish"). They are normalized before tesseract runs.
	Languages []string `toml:"languages"`
}

// Daemon contains configuration for the long-running docketd process.
type Daemon struct {
	// PassSchedule is a cron expression controlling how often the daemon
	// runs a full pipeline pass over the backlog.
	PassSchedule       string `toml:"pass_schedule"`
	ErrorRetryInterval int    `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docket.
//
// Configuration sections by subsystem:
//   - Paths: data, document, and log directories
//   - WorkQueue: claim expiry and retry intervals
//   - RateLimit: adaptive per-domain throttling policy and backend selection
//   - Pipeline: chunk sizing, execution strategy, deferred worker pool
//   - OCR: tesseract binary and recognition languages
//   - Daemon: pass scheduling and error retry
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	WorkQueue WorkQueue `toml:"workqueue"`
	RateLimit RateLimit `toml:"ratelimit"`
	Pipeline  Pipeline  `toml:"pipeline"`
	OCR       OCR       `toml:"ocr"`
	Daemon    Daemon    `toml:"daemon"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docket/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was actually found.
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
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
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

	projectPath, err := filepath.Abs("docket.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DocumentDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if expanded == "~" {
			expanded = home
		} else {
			expanded = filepath.Join(home, expanded[2:])
		}
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("absolute path for %q: %w", pathValue, err)
	}
	return abs, nil
}
