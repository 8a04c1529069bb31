package queue

import (
	"strings"
	"time"

	"veracity/internal/evidence"
)

// Class partitions jobs into independently-worked queues.
type Class string

const (
	ClassAnalysis Class = "analysis"
	ClassWebhook  Class = "webhook"
	ClassBilling  Class = "billing"
)

// Classes returns all known queue classes.
func Classes() []Class {
	return []Class{ClassAnalysis, ClassWebhook, ClassBilling}
}

// ParseClass converts a string into a known Class.
func ParseClass(value string) (Class, bool) {
	normalized := Class(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ClassAnalysis, ClassWebhook, ClassBilling:
		return normalized, true
	default:
		return "", false
	}
}

// Priority orders jobs within a queue class. Lower rank claims first;
// within a tier jobs are FIFO by creation time.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityRanks = map[Priority]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityNormal: 2,
	PriorityLow:    3,
}

// Rank returns the claim-ordering rank, defaulting unknown values to normal.
func (p Priority) Rank() int {
	if rank, ok := priorityRanks[p]; ok {
		return rank
	}
	return priorityRanks[PriorityNormal]
}

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	normalized := Priority(strings.ToLower(strings.TrimSpace(value)))
	_, ok := priorityRanks[normalized]
	return normalized, ok
}

func priorityFromRank(rank int) Priority {
	for p, r := range priorityRanks {
		if r == rank {
			return p
		}
	}
	return PriorityNormal
}

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return normalized, true
	default:
		return "", false
	}
}

// Stage labels the analysis pipeline phase a running job is in.
type Stage string

const (
	StageCheap     Stage = "cheap"
	StageExpensive Stage = "expensive"
	StageFusing    Stage = "fusing"
	StageDone      Stage = "done"
)

// Job is one queued unit of work persisted in SQLite. For analysis jobs
// ArtifactRef and Attrs are set; webhook and billing jobs carry their input
// in PayloadJSON.
type Job struct {
	ID              int64
	Class           Class
	OrgID           string
	ArtifactRef     string
	Attrs           evidence.ArtifactAttrs
	PayloadJSON     string
	Priority        Priority
	Status          Status
	Stage           Stage
	Attempts        int
	NotBefore       *time.Time
	ClaimedBy       string
	LastHeartbeat   *time.Time
	ErrorMessage    string
	ForceEscalation bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the job can make no further progress.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Class           Class
	OrgID           string
	ArtifactRef     string
	Attrs           evidence.ArtifactAttrs
	PayloadJSON     string
	Priority        Priority
	Delay           time.Duration
	ForceEscalation bool
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Cancelled int
}

// DatabaseHealth captures diagnostic information about the store database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
