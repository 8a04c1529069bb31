package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"veracity/internal/artifacts"
	"veracity/internal/config"
	"veracity/internal/escalation"
	"veracity/internal/evidence"
	"veracity/internal/fusion"
	"veracity/internal/logging"
	"veracity/internal/notify"
	"veracity/internal/queue"
	"veracity/internal/review"
	"veracity/internal/services"
)

// repeatUploadWindow bounds the repeated-origin escalation signal.
const repeatUploadWindow = 24 * time.Hour

// Billing charges per analysis depth, in cents.
const (
	chargeCheapCents = 10
	chargeFullCents  = 50
)

// Coordinator runs the per-job state machine.
type Coordinator struct {
	store     *queue.Store
	cheap     []evidence.Adapter
	expensive []evidence.Adapter
	reports   *artifacts.ReportWriter
	router    *review.Router

	cheapTimeout time.Duration
	threshold    float64
	params       fusion.Params

	logger *slog.Logger
}

// New builds the coordinator. The cheap adapters run sequentially under
// one aggregate deadline; the expensive adapters fan out concurrently,
// each under its own.
func New(store *queue.Store, cheap, expensive []evidence.Adapter, reports *artifacts.ReportWriter, router *review.Router, cfg *config.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		store:        store,
		cheap:        cheap,
		expensive:    expensive,
		reports:      reports,
		router:       router,
		cheapTimeout: cfg.CheapStageTimeout(),
		threshold:    cfg.Escalation.Threshold,
		params:       FusionParams(cfg),
		logger:       logger.With(logging.FieldComponent, "pipeline"),
	}
}

// FusionParams derives the engine tuning from configuration.
func FusionParams(cfg *config.Config) fusion.Params {
	return fusion.Params{
		BaseWeights: fusion.Weights{
			Provenance:   cfg.Fusion.ProvenanceWeight,
			Visual:       cfg.Fusion.WebPresenceWeight,
			Manipulation: cfg.Fusion.ManipulationWeight,
			Identity:     cfg.Fusion.IdentityWeight,
		},
		GenuineThreshold:    cfg.Fusion.GenuineThreshold,
		SuspiciousThreshold: cfg.Fusion.SuspiciousThreshold,
	}
}

// Process runs one claimed analysis job to completion. A returned error
// means the job should be retried or failed by the queue; a nil return
// means the job is done (including the cancelled case, which completes
// without a fusion result).
func (c *Coordinator) Process(ctx context.Context, job *queue.Job) error {
	ctx = services.WithJobID(ctx, job.ID)
	logger := c.logger.With(logging.FieldJobID, job.ID)

	req := evidence.Request{
		JobID:       job.ID,
		OrgID:       job.OrgID,
		ArtifactRef: job.ArtifactRef,
		Attrs:       job.Attrs,
	}

	cheapRecords, err := c.runCheapStage(ctx, job, req, logger)
	if err != nil {
		return err
	}

	if cancelled, err := c.jobCancelled(ctx, job.ID); err != nil || cancelled {
		if cancelled {
			logger.Info("job cancelled before escalation, skipping fusion")
		}
		return err
	}

	decision, err := c.decideEscalation(ctx, job, cheapRecords)
	if err != nil {
		return err
	}
	logger.Info("escalation decided",
		"escalate", decision.Escalate,
		"forced", decision.Forced,
		"suspicion", decision.Suspicion,
		"reasons", strings.Join(decision.Reasons, "; "))

	escalated := decision.Escalate
	if escalated {
		if err := c.runExpensiveStage(ctx, job, req, logger); err != nil {
			return err
		}
	} else {
		for _, adapter := range c.expensive {
			rec := evidence.SkippedRecord(job.ID, adapter.Name(), adapter.Factor(), "below escalation threshold")
			if _, err := c.store.AppendEvidence(ctx, rec); err != nil {
				return fmt.Errorf("persist skip record: %w", err)
			}
		}
	}

	if cancelled, err := c.jobCancelled(ctx, job.ID); err != nil || cancelled {
		if cancelled {
			logger.Info("job cancelled before fusion, skipping fusion")
		}
		return err
	}

	return c.fuseAndFinish(ctx, job, escalated, logger)
}

func (c *Coordinator) runCheapStage(ctx context.Context, job *queue.Job, req evidence.Request, logger *slog.Logger) ([]evidence.Record, error) {
	if err := c.store.SetStage(ctx, job.ID, queue.StageCheap); err != nil {
		return nil, err
	}

	stageCtx := ctx
	if c.cheapTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, c.cheapTimeout)
		defer cancel()
	}

	var records []evidence.Record
	for _, adapter := range c.cheap {
		settled := evidence.Run(stageCtx, adapter, req)
		rec := evidence.NewRecord(job.ID, settled)
		id, err := c.store.AppendEvidence(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("persist cheap evidence: %w", err)
		}
		rec.ID = id
		records = append(records, rec)

		logger.Info("cheap adapter settled",
			logging.FieldAdapter, settled.Adapter,
			"outcome", string(settled.Outcome),
			logging.Duration("latency", settled.Latency))
	}
	return records, nil
}

func (c *Coordinator) runExpensiveStage(ctx context.Context, job *queue.Job, req evidence.Request, logger *slog.Logger) error {
	if err := c.store.SetStage(ctx, job.ID, queue.StageExpensive); err != nil {
		return err
	}

	settledAll := evidence.Collect(ctx, c.expensive, req)
	for _, settled := range settledAll {
		rec := evidence.NewRecord(job.ID, settled)
		if _, err := c.store.AppendEvidence(ctx, rec); err != nil {
			return fmt.Errorf("persist expensive evidence: %w", err)
		}
		logger.Info("expensive adapter settled",
			logging.FieldAdapter, settled.Adapter,
			"outcome", string(settled.Outcome),
			logging.Duration("latency", settled.Latency))
	}
	return nil
}

func (c *Coordinator) decideEscalation(ctx context.Context, job *queue.Job, cheapRecords []evidence.Record) (escalation.Decision, error) {
	signals := escalation.Signals{
		Width:           job.Attrs.Width,
		Height:          job.Attrs.Height,
		Watermark:       job.Attrs.Watermark,
		Upscaled:        job.Attrs.Upscaled,
		NearestHashDist: -1,
	}

	if rec, ok := evidence.ByAdapter(cheapRecords, evidence.AdapterProvenance); ok && rec.Outcome == evidence.OutcomeSuccess {
		var payload evidence.ProvenancePayload
		if err := rec.DecodePayload(&payload); err == nil {
			signals.HasProvenanceMeta = payload.ManifestPresent
		}
	}
	if rec, ok := evidence.ByAdapter(cheapRecords, evidence.AdapterPerceptual); ok && rec.Outcome == evidence.OutcomeSuccess {
		var payload evidence.DuplicatePayload
		if err := rec.DecodePayload(&payload); err == nil {
			signals.NearestHashDist = payload.BestDistance
		}
	}

	repeats, err := c.store.CountRecentByOrigin(ctx, job.Attrs.OriginHash, repeatUploadWindow)
	if err != nil {
		return escalation.Decision{}, err
	}
	// The count includes this job's own row.
	if repeats > 0 {
		repeats--
	}
	signals.RepeatUploads = repeats

	return escalation.Evaluate(signals, c.threshold, job.ForceEscalation), nil
}

func (c *Coordinator) fuseAndFinish(ctx context.Context, job *queue.Job, escalated bool, logger *slog.Logger) error {
	if err := c.store.SetStage(ctx, job.ID, queue.StageFusing); err != nil {
		return err
	}

	history, err := c.store.EvidenceForJob(ctx, job.ID)
	if err != nil {
		return err
	}
	records := evidence.Latest(history)

	result := fusion.Fuse(records, c.params)
	result.ID = uuid.NewString()
	result.JobID = job.ID
	result.Partial, result.PartialReason = partialState(records, escalated)
	result.CreatedAt = time.Now().UTC()

	locator, err := c.reports.Write(ctx, &result)
	if err != nil {
		return fmt.Errorf("write analysis report: %w", err)
	}
	result.ReportLocator = locator

	if err := c.store.CreateFusionResult(ctx, &result); err != nil {
		return err
	}
	logger.Info("fusion result recorded",
		"result_id", result.ID,
		"score", result.Score,
		"verdict", string(result.Verdict),
		"confidence", result.Confidence,
		"partial", result.Partial)

	if _, err := c.router.Route(ctx, &result); err != nil {
		return err
	}

	return c.enqueueFollowUps(ctx, job, &result, escalated, logger)
}

func (c *Coordinator) enqueueFollowUps(ctx context.Context, job *queue.Job, result *fusion.Result, escalated bool, logger *slog.Logger) error {
	event := notify.NewCompletedEvent(job, result)
	payload, err := event.Encode()
	if err != nil {
		return err
	}
	if _, err := c.store.Enqueue(ctx, queue.NewJob{
		Class:       queue.ClassWebhook,
		OrgID:       job.OrgID,
		Priority:    job.Priority,
		PayloadJSON: payload,
	}); err != nil {
		return fmt.Errorf("enqueue webhook job: %w", err)
	}

	charge := chargeCheapCents
	description := "screening analysis"
	if escalated {
		charge = chargeFullCents
		description = "full analysis"
	}
	billing, err := EncodeBillingCharge(job.ID, charge, description)
	if err != nil {
		return err
	}
	if _, err := c.store.Enqueue(ctx, queue.NewJob{
		Class:       queue.ClassBilling,
		OrgID:       job.OrgID,
		Priority:    queue.PriorityLow,
		PayloadJSON: billing,
	}); err != nil {
		return fmt.Errorf("enqueue billing job: %w", err)
	}

	logger.Info("follow-up jobs enqueued", "charge_cents", charge)
	return nil
}

// partialState reports whether the analysis is partial and why. Failures
// among attempted adapters make the result partial; adapters skipped by
// the gate do not, since skipping is the intended behavior.
func partialState(records []evidence.Record, escalated bool) (bool, string) {
	var failed []string
	expensiveFailed := 0
	expensiveAttempted := 0
	for _, rec := range records {
		if rec.Outcome == evidence.OutcomeFailure {
			failed = append(failed, rec.Adapter)
		}
		switch rec.Adapter {
		case evidence.AdapterManipulation, evidence.AdapterWebPresence, evidence.AdapterIdentity:
			expensiveAttempted++
			if rec.Outcome == evidence.OutcomeFailure {
				expensiveFailed++
			}
		}
	}

	if len(failed) == 0 {
		return false, ""
	}
	if escalated && expensiveAttempted > 0 && expensiveFailed == expensiveAttempted {
		return true, "expensive stage failed entirely: " + strings.Join(failed, ", ")
	}
	return true, "adapter failures: " + strings.Join(failed, ", ")
}

func (c *Coordinator) jobCancelled(ctx context.Context, id int64) (bool, error) {
	current, err := c.store.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, services.Wrap(services.ErrNotFound, "pipeline", "job_cancelled",
			fmt.Sprintf("job %d disappeared mid-flight", id), nil)
	}
	return current.Status == queue.StatusCancelled, nil
}
