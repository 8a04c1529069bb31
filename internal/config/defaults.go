package config

const (
	defaultDataDir    = "~/.local/share/veracity/data"
	defaultStagingDir = "~/.local/share/veracity/staging"
	defaultLogDir     = "~/.local/share/veracity/logs"
	defaultAPIBind    = "127.0.0.1:7519"

	defaultEscalationThreshold = 0.4

	defaultProvenanceWeight   = 0.35
	defaultManipulationWeight = 0.30
	defaultWebPresenceWeight  = 0.20
	defaultIdentityWeight     = 0.15

	defaultGenuineThreshold    = 70
	defaultSuspiciousThreshold = 40

	defaultCheapStageTimeoutSeconds = 5
	defaultProvenanceTimeout        = 5
	defaultManipulationTimeout      = 45
	defaultWebPresenceTimeout       = 45
	defaultIdentityTimeout          = 30
	defaultWebPresenceRate          = 30

	defaultReviewSLAHours = 48

	defaultNotifyMaxAttempts    = 3
	defaultNotifyBackoffSeconds = 2
	defaultNotifyTimeoutSeconds = 10

	defaultQueueMaxAttempts   = 3
	defaultQueueBackoffBase   = 30
	defaultQueueBackoffMax    = 3600
	defaultAnalysisWorkers    = 2
	defaultWebhookWorkers     = 2
	defaultBillingWorkers     = 1
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Escalation: Escalation{
			Threshold: defaultEscalationThreshold,
		},
		Fusion: Fusion{
			ProvenanceWeight:    defaultProvenanceWeight,
			ManipulationWeight:  defaultManipulationWeight,
			WebPresenceWeight:   defaultWebPresenceWeight,
			IdentityWeight:      defaultIdentityWeight,
			GenuineThreshold:    defaultGenuineThreshold,
			SuspiciousThreshold: defaultSuspiciousThreshold,
		},
		Adapters: Adapters{
			CheapStageTimeoutSeconds: defaultCheapStageTimeoutSeconds,
			Provenance:               Provider{TimeoutSeconds: defaultProvenanceTimeout},
			Manipulation:             Provider{TimeoutSeconds: defaultManipulationTimeout},
			WebPresence:              Provider{TimeoutSeconds: defaultWebPresenceTimeout},
			Identity:                 Provider{TimeoutSeconds: defaultIdentityTimeout},
			WebPresenceRatePerMinute: defaultWebPresenceRate,
		},
		Review: Review{
			SLAHours: defaultReviewSLAHours,
		},
		Notifications: Notifications{
			MaxAttempts:           defaultNotifyMaxAttempts,
			BackoffBaseSeconds:    defaultNotifyBackoffSeconds,
			RequestTimeoutSeconds: defaultNotifyTimeoutSeconds,
		},
		Queue: Queue{
			MaxAttempts:        defaultQueueMaxAttempts,
			BackoffBaseSeconds: defaultQueueBackoffBase,
			BackoffMaxSeconds:  defaultQueueBackoffMax,
		},
		Workers: Workers{
			AnalysisConcurrency:       defaultAnalysisWorkers,
			WebhookConcurrency:        defaultWebhookWorkers,
			BillingConcurrency:        defaultBillingWorkers,
			PollIntervalSeconds:       defaultPollInterval,
			ErrorRetryIntervalSeconds: defaultErrorRetryInterval,
			HeartbeatIntervalSeconds:  defaultHeartbeatInterval,
			HeartbeatTimeoutSeconds:   defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
