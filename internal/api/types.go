package api

// JobView describes an analysis job in a transport-friendly format.
type JobView struct {
	ID              int64  `json:"id"`
	Class           string `json:"class"`
	OrgID           string `json:"orgId"`
	ArtifactRef     string `json:"artifactRef,omitempty"`
	Priority        string `json:"priority"`
	Status          string `json:"status"`
	Stage           string `json:"stage,omitempty"`
	Attempts        int    `json:"attempts"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	ForceEscalation bool   `json:"forceEscalation,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// EvidenceView is one adapter outcome attached to a job.
type EvidenceView struct {
	Adapter   string `json:"adapter"`
	Factor    string `json:"factor"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	Provider  string `json:"provider,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// OverrideView is the layered admin decision on a result.
type OverrideView struct {
	Verdict      string `json:"verdict"`
	PriorVerdict string `json:"priorVerdict"`
	Reason       string `json:"reason"`
	Actor        string `json:"actor"`
	At           string `json:"at"`
}

// ResultView describes a fusion result.
type ResultView struct {
	ID                 string             `json:"id"`
	JobID              int64              `json:"jobId"`
	Scores             map[string]int     `json:"scores"`
	Weights            map[string]float64 `json:"weights"`
	Score              int                `json:"score"`
	Verdict            string             `json:"verdict"`
	Confidence         int                `json:"confidence"`
	RiskFactors        []string           `json:"riskFactors,omitempty"`
	PositiveIndicators []string           `json:"positiveIndicators,omitempty"`
	Partial            bool               `json:"analysisPartial"`
	PartialReason      string             `json:"partialReason,omitempty"`
	ReportLocator      string             `json:"reportLocator,omitempty"`
	CreatedAt          string             `json:"createdAt,omitempty"`
	Override           *OverrideView      `json:"override,omitempty"`
}

// TicketView describes a review ticket.
type TicketView struct {
	ID          int64  `json:"id"`
	JobID       int64  `json:"jobId"`
	Priority    string `json:"priority"`
	State       string `json:"state"`
	SLADeadline string `json:"slaDeadline"`
	CreatedAt   string `json:"createdAt,omitempty"`
	ResolvedAt  string `json:"resolvedAt,omitempty"`
}

// JobDetail bundles a job with its evidence, result, and ticket.
type JobDetail struct {
	Job      JobView        `json:"job"`
	Evidence []EvidenceView `json:"evidence,omitempty"`
	Result   *ResultView    `json:"result,omitempty"`
	Ticket   *TicketView    `json:"ticket,omitempty"`
}

// SubmitJobRequest is the POST body for submitting an analysis.
type SubmitJobRequest struct {
	OrgID           string `json:"orgId"`
	ArtifactRef     string `json:"artifactRef"`
	Priority        string `json:"priority,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	PerceptualHash  string `json:"perceptualHash,omitempty"`
	Watermark       bool   `json:"watermark,omitempty"`
	Upscaled        bool   `json:"upscaled,omitempty"`
	OriginHash      string `json:"originHash,omitempty"`
	MimeType        string `json:"mimeType,omitempty"`
	ForceEscalation bool   `json:"forceEscalation,omitempty"`
}

// OverrideRequest is the POST body for an admin override.
type OverrideRequest struct {
	Verdict string `json:"verdict"`
	Actor   string `json:"actor"`
	Reason  string `json:"reason"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobView `json:"jobs"`
}

// JobResponse wraps a single job detail.
type JobResponse struct {
	Detail JobDetail `json:"detail"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	QueueDBPath     string         `json:"queueDbPath"`
	LockFilePath    string         `json:"lockFilePath"`
	JobCounts       map[string]int `json:"jobCounts"`
	OpenTickets     int            `json:"openTickets"`
	DatabaseHealthy bool           `json:"databaseHealthy"`
	DatabaseDetail  string         `json:"databaseDetail,omitempty"`
}

// ErrorResponse is the error payload every endpoint returns on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
