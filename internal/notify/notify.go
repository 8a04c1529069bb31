// Package notify delivers analysis outcomes to registered organization
// webhooks. Delivery is at-least-once and fully decoupled from analysis:
// a dead endpoint never fails the job that produced the verdict.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"veracity/internal/fusion"
	"veracity/internal/queue"
)

// Event types carried in webhook payloads.
const (
	EventAnalysisCompleted = "analysis.completed"
	EventAnalysisFailed    = "analysis.failed"
)

// Event is the fixed-shape payload delivered to every endpoint.
type Event struct {
	Type         string `json:"type"`
	JobID        int64  `json:"job_id"`
	OrgID        string `json:"org_id"`
	Score        int    `json:"score,omitempty"`
	Verdict      string `json:"verdict,omitempty"`
	ReferenceURL string `json:"reference_url,omitempty"`
	Partial      bool   `json:"analysis_partial,omitempty"`
	Error        string `json:"error,omitempty"`
	SentAt       string `json:"sent_at"`
}

// NewCompletedEvent builds the outcome payload for a finished analysis.
func NewCompletedEvent(job *queue.Job, res *fusion.Result) Event {
	return Event{
		Type:         EventAnalysisCompleted,
		JobID:        job.ID,
		OrgID:        job.OrgID,
		Score:        res.Score,
		Verdict:      string(res.EffectiveVerdict()),
		ReferenceURL: res.ReportLocator,
		Partial:      res.Partial,
	}
}

// NewFailedEvent builds the error payload for an analysis whose retries
// are exhausted.
func NewFailedEvent(job *queue.Job, reason string) Event {
	return Event{
		Type:  EventAnalysisFailed,
		JobID: job.ID,
		OrgID: job.OrgID,
		Error: reason,
	}
}

// Encode serializes the event for a webhook job payload, stamping the send
// time.
func (e Event) Encode() (string, error) {
	e.SentAt = time.Now().UTC().Format(time.RFC3339)
	encoded, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode notification event: %w", err)
	}
	return string(encoded), nil
}

// DecodeEvent parses a webhook job payload back into an event.
func DecodeEvent(payload string) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{}, fmt.Errorf("decode notification event: %w", err)
	}
	if event.Type == "" {
		return Event{}, fmt.Errorf("notification event missing type")
	}
	return event, nil
}
