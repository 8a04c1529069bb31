package config

import "strings"

// normalize expands path fields and fills zero-valued settings with defaults
// so a partial config file remains usable.
func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)

	if c.Escalation.Threshold == 0 {
		c.Escalation.Threshold = defaultEscalationThreshold
	}

	if c.Fusion.GenuineThreshold == 0 {
		c.Fusion.GenuineThreshold = defaultGenuineThreshold
	}
	if c.Fusion.SuspiciousThreshold == 0 {
		c.Fusion.SuspiciousThreshold = defaultSuspiciousThreshold
	}

	if c.Adapters.CheapStageTimeoutSeconds <= 0 {
		c.Adapters.CheapStageTimeoutSeconds = defaultCheapStageTimeoutSeconds
	}
	if c.Adapters.WebPresenceRatePerMinute <= 0 {
		c.Adapters.WebPresenceRatePerMinute = defaultWebPresenceRate
	}
	normalizeProvider(&c.Adapters.Provenance, defaultProvenanceTimeout)
	normalizeProvider(&c.Adapters.Manipulation, defaultManipulationTimeout)
	normalizeProvider(&c.Adapters.WebPresence, defaultWebPresenceTimeout)
	normalizeProvider(&c.Adapters.Identity, defaultIdentityTimeout)

	if c.Review.SLAHours <= 0 {
		c.Review.SLAHours = defaultReviewSLAHours
	}

	if c.Notifications.MaxAttempts <= 0 {
		c.Notifications.MaxAttempts = defaultNotifyMaxAttempts
	}
	if c.Notifications.BackoffBaseSeconds <= 0 {
		c.Notifications.BackoffBaseSeconds = defaultNotifyBackoffSeconds
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNotifyTimeoutSeconds
	}

	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultQueueMaxAttempts
	}
	if c.Queue.BackoffBaseSeconds <= 0 {
		c.Queue.BackoffBaseSeconds = defaultQueueBackoffBase
	}
	if c.Queue.BackoffMaxSeconds <= 0 {
		c.Queue.BackoffMaxSeconds = defaultQueueBackoffMax
	}

	if c.Workers.AnalysisConcurrency <= 0 {
		c.Workers.AnalysisConcurrency = defaultAnalysisWorkers
	}
	if c.Workers.WebhookConcurrency <= 0 {
		c.Workers.WebhookConcurrency = defaultWebhookWorkers
	}
	if c.Workers.BillingConcurrency <= 0 {
		c.Workers.BillingConcurrency = defaultBillingWorkers
	}
	if c.Workers.PollIntervalSeconds <= 0 {
		c.Workers.PollIntervalSeconds = defaultPollInterval
	}
	if c.Workers.ErrorRetryIntervalSeconds <= 0 {
		c.Workers.ErrorRetryIntervalSeconds = defaultErrorRetryInterval
	}
	if c.Workers.HeartbeatIntervalSeconds <= 0 {
		c.Workers.HeartbeatIntervalSeconds = defaultHeartbeatInterval
	}
	if c.Workers.HeartbeatTimeoutSeconds <= 0 {
		c.Workers.HeartbeatTimeoutSeconds = defaultHeartbeatTimeout
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}

func normalizeProvider(p *Provider, defaultTimeout int) {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.APIKey = strings.TrimSpace(p.APIKey)
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultTimeout
	}
}
