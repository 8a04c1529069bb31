package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veracity/internal/config"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "missing data dir",
			mutate: func(c *config.Config) { c.Paths.DataDir = "" },
			want:   "data_dir",
		},
		{
			name:   "escalation threshold above one",
			mutate: func(c *config.Config) { c.Escalation.Threshold = 1.5 },
			want:   "escalation.threshold",
		},
		{
			name:   "weights do not sum to one",
			mutate: func(c *config.Config) { c.Fusion.ProvenanceWeight = 0.5 },
			want:   "sum to 1.0",
		},
		{
			name:   "weight out of range",
			mutate: func(c *config.Config) { c.Fusion.IdentityWeight = -0.1 },
			want:   "between 0 and 1",
		},
		{
			name: "suspicious threshold above genuine",
			mutate: func(c *config.Config) {
				c.Fusion.SuspiciousThreshold = 80
				c.Fusion.GenuineThreshold = 70
			},
			want: "suspicious_threshold",
		},
		{
			name:   "zero max attempts",
			mutate: func(c *config.Config) { c.Queue.MaxAttempts = 0 },
			want:   "max_attempts",
		},
		{
			name: "heartbeat timeout below interval",
			mutate: func(c *config.Config) {
				c.Workers.HeartbeatIntervalSeconds = 60
				c.Workers.HeartbeatTimeoutSeconds = 30
			},
			want: "heartbeat_timeout",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingExplicitPathUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veracity.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("missing config reported as existing")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Queue.MaxAttempts != 3 || cfg.Review.SLAHours != 48 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veracity.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
staging_dir = "` + filepath.Join(dir, "staging") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[escalation]
threshold = 0.6

[adapters.manipulation]
base_url = "https://detect.example.com/"
api_key = " key-1 "
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("config file not found")
	}

	if cfg.Escalation.Threshold != 0.6 {
		t.Fatalf("threshold = %v", cfg.Escalation.Threshold)
	}
	if cfg.Adapters.Manipulation.BaseURL != "https://detect.example.com" {
		t.Fatalf("base url not trimmed: %q", cfg.Adapters.Manipulation.BaseURL)
	}
	if cfg.Adapters.Manipulation.APIKey != "key-1" {
		t.Fatalf("api key not trimmed: %q", cfg.Adapters.Manipulation.APIKey)
	}

	// Everything the file omits keeps its default.
	if cfg.Fusion.ProvenanceWeight != 0.35 || cfg.Fusion.GenuineThreshold != 70 {
		t.Fatalf("fusion defaults lost: %+v", cfg.Fusion)
	}
	if cfg.Workers.AnalysisConcurrency != 2 {
		t.Fatalf("worker defaults lost: %+v", cfg.Workers)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "veracity.toml")
	content := `
[fusion]
provenance_weight = 0.9
manipulation_weight = 0.3
web_presence_weight = 0.2
identity_weight = 0.15
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("overweight fusion config accepted")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "a", "data")
	cfg.Paths.StagingDir = filepath.Join(dir, "b", "staging")
	cfg.Paths.LogDir = filepath.Join(dir, "c", "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, d := range []string{cfg.Paths.DataDir, cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", d, err)
		}
	}
}
