package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Escalation configures the cheap-signal gate that decides whether the
// expensive adapters run.
type Escalation struct {
	// Threshold is the suspicion score at or above which a job escalates.
	Threshold float64 `toml:"threshold"`
}

// Fusion configures base factor weights and verdict thresholds.
type Fusion struct {
	ProvenanceWeight   float64 `toml:"provenance_weight"`
	ManipulationWeight float64 `toml:"manipulation_weight"`
	WebPresenceWeight  float64 `toml:"web_presence_weight"`
	IdentityWeight     float64 `toml:"identity_weight"`

	// GenuineThreshold and SuspiciousThreshold close with the lower verdict:
	// a score equal to the threshold earns the higher verdict.
	GenuineThreshold    int `toml:"genuine_threshold"`
	SuspiciousThreshold int `toml:"suspicious_threshold"`
}

// Provider holds connection settings for one external evidence provider.
type Provider struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Adapters configures per-adapter endpoints and deadlines.
type Adapters struct {
	CheapStageTimeoutSeconds int `toml:"cheap_stage_timeout_seconds"`

	Provenance   Provider `toml:"provenance"`
	Manipulation Provider `toml:"manipulation"`
	WebPresence  Provider `toml:"web_presence"`
	Identity     Provider `toml:"identity"`

	// WebPresenceRatePerMinute caps outbound reverse-search calls.
	WebPresenceRatePerMinute int `toml:"web_presence_rate_per_minute"`
}

// Review configures human-review ticket creation.
type Review struct {
	SLAHours int `toml:"sla_hours"`
}

// Notifications configures outbound webhook delivery.
type Notifications struct {
	MaxAttempts           int `toml:"max_attempts"`
	BackoffBaseSeconds    int `toml:"backoff_base_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
}

// Queue configures retry policy for queued jobs.
type Queue struct {
	MaxAttempts        int `toml:"max_attempts"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffMaxSeconds  int `toml:"backoff_max_seconds"`
}

// Workers configures worker pool concurrency and timing.
type Workers struct {
	AnalysisConcurrency int `toml:"analysis_concurrency"`
	WebhookConcurrency  int `toml:"webhook_concurrency"`
	BillingConcurrency  int `toml:"billing_concurrency"`

	PollIntervalSeconds       int `toml:"poll_interval_seconds"`
	ErrorRetryIntervalSeconds int `toml:"error_retry_interval_seconds"`
	HeartbeatIntervalSeconds  int `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds   int `toml:"heartbeat_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for veracity.
//
// Configuration sections by subsystem:
//   - Paths: data/staging/log directories and API bind address
//   - Escalation: suspicion threshold for the expensive stage
//   - Fusion: base factor weights and verdict thresholds
//   - Adapters: provider endpoints and per-adapter timeouts
//   - Review: human-review SLA window
//   - Notifications: webhook retry policy
//   - Queue: job retry/backoff policy
//   - Workers: per-class concurrency and polling intervals
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Escalation    Escalation    `toml:"escalation"`
	Fusion        Fusion        `toml:"fusion"`
	Adapters      Adapters      `toml:"adapters"`
	Review        Review        `toml:"review"`
	Notifications Notifications `toml:"notifications"`
	Queue         Queue         `toml:"queue"`
	Workers       Workers       `toml:"workers"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/veracity/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("veracity.toml")
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
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheapStageTimeout returns the aggregate deadline for the cheap stage.
func (c *Config) CheapStageTimeout() time.Duration {
	return time.Duration(c.Adapters.CheapStageTimeoutSeconds) * time.Second
}

// AdapterTimeout returns the per-call deadline for a provider, falling back
// to a conservative default when unset.
func (p Provider) AdapterTimeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
