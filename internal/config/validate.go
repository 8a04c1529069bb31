package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEscalation(); err != nil {
		return err
	}
	if err := c.validateFusion(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateEscalation() error {
	if c.Escalation.Threshold < 0 || c.Escalation.Threshold > 1 {
		return errors.New("escalation.threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateFusion() error {
	weights := []struct {
		name  string
		value float64
	}{
		{"fusion.provenance_weight", c.Fusion.ProvenanceWeight},
		{"fusion.manipulation_weight", c.Fusion.ManipulationWeight},
		{"fusion.web_presence_weight", c.Fusion.WebPresenceWeight},
		{"fusion.identity_weight", c.Fusion.IdentityWeight},
	}
	sum := 0.0
	for _, w := range weights {
		if w.value <= 0 || w.value >= 1 {
			return fmt.Errorf("%s must be between 0 and 1 exclusive", w.name)
		}
		sum += w.value
	}
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("fusion base weights must sum to 1.0, got %.4f", sum)
	}
	if c.Fusion.SuspiciousThreshold <= 0 || c.Fusion.GenuineThreshold > 100 {
		return errors.New("fusion verdict thresholds must fall within 1-100")
	}
	if c.Fusion.SuspiciousThreshold >= c.Fusion.GenuineThreshold {
		return errors.New("fusion.suspicious_threshold must be below fusion.genuine_threshold")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue.max_attempts must be at least 1")
	}
	if c.Queue.BackoffMaxSeconds < c.Queue.BackoffBaseSeconds {
		return errors.New("queue.backoff_max_seconds must be >= queue.backoff_base_seconds")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.HeartbeatTimeoutSeconds <= c.Workers.HeartbeatIntervalSeconds {
		return errors.New("workers.heartbeat_timeout_seconds must exceed workers.heartbeat_interval_seconds")
	}
	return nil
}
