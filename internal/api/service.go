package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"veracity/internal/evidence"
	"veracity/internal/fusion"
	"veracity/internal/queue"
	"veracity/internal/review"
	"veracity/internal/services"
)

// JobService maps API requests onto the store and review router.
type JobService struct {
	store  *queue.Store
	router *review.Router
}

// NewJobService builds the service layer used by the daemon's HTTP
// handlers.
func NewJobService(store *queue.Store, router *review.Router) *JobService {
	return &JobService{store: store, router: router}
}

// Submit enqueues a new analysis job.
func (s *JobService) Submit(ctx context.Context, req SubmitJobRequest) (*JobView, error) {
	priority := queue.PriorityNormal
	if trimmed := strings.TrimSpace(req.Priority); trimmed != "" {
		parsed, ok := queue.ParsePriority(trimmed)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "api", "submit",
				fmt.Sprintf("unknown priority %q", req.Priority), nil)
		}
		priority = parsed
	}

	job, err := s.store.Enqueue(ctx, queue.NewJob{
		Class:       queue.ClassAnalysis,
		OrgID:       strings.TrimSpace(req.OrgID),
		ArtifactRef: strings.TrimSpace(req.ArtifactRef),
		Priority:    priority,
		Attrs: evidence.ArtifactAttrs{
			Width:          req.Width,
			Height:         req.Height,
			PerceptualHash: req.PerceptualHash,
			Watermark:      req.Watermark,
			Upscaled:       req.Upscaled,
			OriginHash:     req.OriginHash,
			MimeType:       req.MimeType,
		},
		ForceEscalation: req.ForceEscalation,
	})
	if err != nil {
		return nil, err
	}
	view := jobView(job)
	return &view, nil
}

// List returns jobs, optionally filtered by status.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]JobView, error) {
	jobs, err := s.store.ListJobs(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, jobView(job))
	}
	return views, nil
}

// Describe returns a job with its evidence, result, and ticket, or nil
// when the job does not exist.
func (s *JobService) Describe(ctx context.Context, id int64) (*JobDetail, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	detail := &JobDetail{Job: jobView(job)}

	history, err := s.store.EvidenceForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, rec := range evidence.Latest(history) {
		detail.Evidence = append(detail.Evidence, EvidenceView{
			Adapter:   rec.Adapter,
			Factor:    string(rec.Factor),
			Outcome:   string(rec.Outcome),
			Reason:    rec.Reason,
			Provider:  rec.Provider,
			LatencyMS: rec.Latency.Milliseconds(),
		})
	}

	result, err := s.store.GetFusionResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if result != nil {
		view := resultView(result)
		detail.Result = &view
	}

	ticket, err := s.store.TicketForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		view := ticketView(ticket)
		detail.Ticket = &view
	}
	return detail, nil
}

// Cancel cancels a pending or running job.
func (s *JobService) Cancel(ctx context.Context, id int64) (bool, error) {
	return s.store.Cancel(ctx, id)
}

// Retry requeues a failed job for re-analysis with escalation forced.
func (s *JobService) Retry(ctx context.Context, id int64) (*JobView, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "retry",
			fmt.Sprintf("job %d not found", id), nil)
	}
	if !job.Terminal() {
		return nil, services.Wrap(services.ErrConfiguration, "api", "retry",
			fmt.Sprintf("job %d is %s, not terminal", id, job.Status), nil)
	}

	// Re-analysis always forces escalation so the expensive adapters get
	// a second look regardless of the gate.
	requeued, err := s.store.Enqueue(ctx, queue.NewJob{
		Class:           job.Class,
		OrgID:           job.OrgID,
		ArtifactRef:     job.ArtifactRef,
		Attrs:           job.Attrs,
		PayloadJSON:     job.PayloadJSON,
		Priority:        job.Priority,
		ForceEscalation: true,
	})
	if err != nil {
		return nil, err
	}
	view := jobView(requeued)
	return &view, nil
}

// Override applies an admin override to the fusion result of a job.
func (s *JobService) Override(ctx context.Context, jobID int64, req OverrideRequest) (*ResultView, error) {
	result, err := s.store.GetFusionResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "override",
			fmt.Sprintf("job %d has no fusion result", jobID), nil)
	}

	updated, err := s.router.Override(ctx, result.ID, req.Verdict, req.Actor, req.Reason)
	if err != nil {
		return nil, err
	}
	view := resultView(updated)
	return &view, nil
}

func jobView(job *queue.Job) JobView {
	view := JobView{
		ID:              job.ID,
		Class:           string(job.Class),
		OrgID:           job.OrgID,
		ArtifactRef:     job.ArtifactRef,
		Priority:        string(job.Priority),
		Status:          string(job.Status),
		Stage:           string(job.Stage),
		Attempts:        job.Attempts,
		ErrorMessage:    job.ErrorMessage,
		ForceEscalation: job.ForceEscalation,
	}
	if !job.CreatedAt.IsZero() {
		view.CreatedAt = job.CreatedAt.Format(time.RFC3339)
	}
	if !job.UpdatedAt.IsZero() {
		view.UpdatedAt = job.UpdatedAt.Format(time.RFC3339)
	}
	return view
}

func resultView(res *fusion.Result) ResultView {
	view := ResultView{
		ID:    res.ID,
		JobID: res.JobID,
		Scores: map[string]int{
			"provenance":   res.Scores.Provenance,
			"visual":       res.Scores.Visual,
			"manipulation": res.Scores.Manipulation,
			"identity":     res.Scores.Identity,
		},
		Weights: map[string]float64{
			"provenance":   res.Weights.Provenance,
			"visual":       res.Weights.Visual,
			"manipulation": res.Weights.Manipulation,
			"identity":     res.Weights.Identity,
		},
		Score:              res.Score,
		Verdict:            string(res.Verdict),
		Confidence:         res.Confidence,
		RiskFactors:        res.RiskFactors,
		PositiveIndicators: res.PositiveIndicators,
		Partial:            res.Partial,
		PartialReason:      res.PartialReason,
		ReportLocator:      res.ReportLocator,
	}
	if !res.CreatedAt.IsZero() {
		view.CreatedAt = res.CreatedAt.Format(time.RFC3339)
	}
	if res.Override != nil {
		view.Override = &OverrideView{
			Verdict:      string(res.Override.Verdict),
			PriorVerdict: string(res.Override.PriorVerdict),
			Reason:       res.Override.Reason,
			Actor:        res.Override.Actor,
			At:           res.Override.At.Format(time.RFC3339),
		}
	}
	return view
}

func ticketView(ticket *queue.Ticket) TicketView {
	view := TicketView{
		ID:          ticket.ID,
		JobID:       ticket.JobID,
		Priority:    string(ticket.Priority),
		State:       string(ticket.State),
		SLADeadline: ticket.SLADeadline.Format(time.RFC3339),
	}
	if !ticket.CreatedAt.IsZero() {
		view.CreatedAt = ticket.CreatedAt.Format(time.RFC3339)
	}
	if ticket.ResolvedAt != nil {
		view.ResolvedAt = ticket.ResolvedAt.Format(time.RFC3339)
	}
	return view
}
