package pipeline_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"veracity/internal/artifacts"
	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/fusion"
	"veracity/internal/pipeline"
	"veracity/internal/providers"
	"veracity/internal/queue"
	"veracity/internal/review"
	"veracity/internal/testsupport"
)

type harness struct {
	cfg     *config.Config
	store   *queue.Store
	coord   *pipeline.Coordinator
	reports *artifacts.ReportWriter
}

func jsonHandler(payload map[string]any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(payload)
	})
}

func errorHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func newHarness(t *testing.T, manipulation, webpresence, identity http.Handler, opts ...testsupport.ConfigOption) *harness {
	t.Helper()

	h := &harness{}

	provenanceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"manifest_present": true,
			"signature_valid":  true,
			"issuer":           "camera-vendor",
			"issuer_trusted":   true,
		})
	}))
	t.Cleanup(provenanceSrv.Close)
	manipulationSrv := httptest.NewServer(manipulation)
	t.Cleanup(manipulationSrv.Close)
	webpresenceSrv := httptest.NewServer(webpresence)
	t.Cleanup(webpresenceSrv.Close)
	identitySrv := httptest.NewServer(identity)
	t.Cleanup(identitySrv.Close)

	h.cfg = testsupport.NewConfig(t)
	h.cfg.Adapters.Provenance.BaseURL = provenanceSrv.URL
	h.cfg.Adapters.Manipulation.BaseURL = manipulationSrv.URL
	h.cfg.Adapters.WebPresence.BaseURL = webpresenceSrv.URL
	h.cfg.Adapters.Identity.BaseURL = identitySrv.URL
	for _, opt := range opts {
		opt(h.cfg)
	}

	h.store = testsupport.MustOpenStore(t, h.cfg)

	fs, err := artifacts.NewFSStore(h.cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	h.reports = artifacts.NewReportWriter(fs)

	cheap := []evidence.Adapter{
		providers.NewProvenanceAdapter(h.cfg.Adapters.Provenance),
		providers.NewPerceptualAdapter(h.store, time.Second),
	}
	expensive := []evidence.Adapter{
		providers.NewManipulationAdapter(h.cfg.Adapters.Manipulation),
		providers.NewWebPresenceAdapter(h.cfg.Adapters.WebPresence, 0),
		providers.NewIdentityAdapter(h.cfg.Adapters.Identity),
	}

	router := review.NewRouter(h.store, h.cfg, nil)
	h.coord = pipeline.New(h.store, cheap, expensive, h.reports, router, h.cfg, nil)
	return h
}

func cleanHandlers() (manipulation, webpresence, identity http.Handler) {
	manipulation = jsonHandler(map[string]any{"probability": 5, "confidence": 90, "model": "acme-v1"})
	webpresence = jsonHandler(map[string]any{"matches": []any{}})
	identity = jsonHandler(map[string]any{"trust_score": 85, "account_age_days": 900, "verified": true})
	return manipulation, webpresence, identity
}

func claimAnalysis(t *testing.T, store *queue.Store) *queue.Job {
	t.Helper()
	job, err := store.Claim(context.Background(), queue.ClassAnalysis, "test-worker")
	if err != nil || job == nil {
		t.Fatalf("claim analysis job: job=%v err=%v", job, err)
	}
	return job
}

func TestProcessEscalatedJobRecordsResultAndFollowUps(t *testing.T) {
	m, w, i := cleanHandlers()
	h := newHarness(t, m, w, i)
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, h.store, "org-1", "artifacts/a", evidence.ArtifactAttrs{
		Width:     1920,
		Height:    1080,
		Watermark: true,
	})
	job := claimAnalysis(t, h.store)

	if err := h.coord.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := h.store.EvidenceForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("evidence for job: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d evidence records, want 2 cheap + 3 expensive", len(records))
	}
	for _, rec := range records {
		if rec.Outcome != evidence.OutcomeSuccess {
			t.Fatalf("adapter %s settled %s: %s", rec.Adapter, rec.Outcome, rec.Reason)
		}
	}

	res, err := h.store.GetFusionResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("get fusion result: %v", err)
	}
	if res == nil {
		t.Fatal("escalated job produced no fusion result")
	}
	if res.Partial {
		t.Fatalf("all adapters succeeded but result is partial: %s", res.PartialReason)
	}
	if res.Verdict != fusion.VerdictGenuine {
		t.Fatalf("verdict = %s score = %d", res.Verdict, res.Score)
	}

	report, err := h.reports.Read(ctx, res.ReportLocator)
	if err != nil {
		t.Fatalf("read report %s: %v", res.ReportLocator, err)
	}
	if report.ID != res.ID || report.Score != res.Score {
		t.Fatalf("report disagrees with stored result: %+v vs %+v", report, res)
	}

	ticket, err := h.store.TicketForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ticket for job: %v", err)
	}
	if ticket != nil {
		t.Fatalf("genuine complete result opened ticket %d", ticket.ID)
	}

	webhook, err := h.store.Claim(ctx, queue.ClassWebhook, "test-worker")
	if err != nil || webhook == nil {
		t.Fatalf("claim webhook follow-up: job=%v err=%v", webhook, err)
	}

	billing, err := h.store.Claim(ctx, queue.ClassBilling, "test-worker")
	if err != nil || billing == nil {
		t.Fatalf("claim billing follow-up: job=%v err=%v", billing, err)
	}
	charge, err := pipeline.DecodeBillingCharge(billing.PayloadJSON)
	if err != nil {
		t.Fatalf("decode billing charge: %v", err)
	}
	if charge.AmountCents != 50 {
		t.Fatalf("charge = %d cents, want full analysis rate", charge.AmountCents)
	}
}

func TestProcessBelowThresholdSkipsExpensiveStage(t *testing.T) {
	m, w, i := cleanHandlers()
	h := newHarness(t, m, w, i)
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, h.store, "org-1", "artifacts/a", evidence.ArtifactAttrs{
		Width:  1920,
		Height: 1080,
	})
	job := claimAnalysis(t, h.store)

	if err := h.coord.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := h.store.EvidenceForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("evidence for job: %v", err)
	}
	skipped := 0
	for _, rec := range records {
		if rec.Outcome == evidence.OutcomeSkipped {
			skipped++
		}
	}
	if skipped != 3 {
		t.Fatalf("got %d skip records, want one per expensive adapter", skipped)
	}

	res, err := h.store.GetFusionResult(ctx, job.ID)
	if err != nil || res == nil {
		t.Fatalf("get fusion result: res=%v err=%v", res, err)
	}
	if res.Partial {
		t.Fatalf("gate skips must not mark the result partial: %s", res.PartialReason)
	}

	billing, err := h.store.Claim(ctx, queue.ClassBilling, "test-worker")
	if err != nil || billing == nil {
		t.Fatalf("claim billing follow-up: job=%v err=%v", billing, err)
	}
	charge, err := pipeline.DecodeBillingCharge(billing.PayloadJSON)
	if err != nil {
		t.Fatalf("decode billing charge: %v", err)
	}
	if charge.AmountCents != 10 {
		t.Fatalf("charge = %d cents, want screening rate", charge.AmountCents)
	}
}

func TestProcessForceEscalationOverridesGate(t *testing.T) {
	m, w, i := cleanHandlers()
	h := newHarness(t, m, w, i)
	ctx := context.Background()

	if _, err := h.store.Enqueue(ctx, queue.NewJob{
		Class:           queue.ClassAnalysis,
		OrgID:           "org-1",
		ArtifactRef:     "artifacts/a",
		Attrs:           evidence.ArtifactAttrs{Width: 1920, Height: 1080},
		ForceEscalation: true,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job := claimAnalysis(t, h.store)

	if err := h.coord.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}

	records, err := h.store.EvidenceForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("evidence for job: %v", err)
	}
	for _, rec := range records {
		if rec.Outcome == evidence.OutcomeSkipped {
			t.Fatalf("forced job skipped adapter %s", rec.Adapter)
		}
	}
	if len(records) != 5 {
		t.Fatalf("got %d evidence records, want full run", len(records))
	}
}

func TestProcessCancelledJobWritesNoFusionResult(t *testing.T) {
	m, w, i := cleanHandlers()
	h := newHarness(t, m, w, i)
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, h.store, "org-1", "artifacts/a", evidence.ArtifactAttrs{
		Width: 1920, Height: 1080,
	})
	job := claimAnalysis(t, h.store)

	cancelled, err := h.store.Cancel(ctx, job.ID)
	if err != nil || !cancelled {
		t.Fatalf("cancel running job: ok=%v err=%v", cancelled, err)
	}

	if err := h.coord.Process(ctx, job); err != nil {
		t.Fatalf("process cancelled job: %v", err)
	}

	res, err := h.store.GetFusionResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("get fusion result: %v", err)
	}
	if res != nil {
		t.Fatalf("cancelled job wrote fusion result %s", res.ID)
	}

	webhook, err := h.store.Claim(ctx, queue.ClassWebhook, "test-worker")
	if err != nil {
		t.Fatalf("claim webhook: %v", err)
	}
	if webhook != nil {
		t.Fatalf("cancelled job enqueued webhook job %d", webhook.ID)
	}
}

func TestProcessPartialWhenExpensiveAdapterFails(t *testing.T) {
	m, w, _ := cleanHandlers()
	h := newHarness(t, m, w, errorHandler(http.StatusInternalServerError))
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, h.store, "org-1", "artifacts/a", evidence.ArtifactAttrs{
		Width: 1920, Height: 1080, Watermark: true,
	})
	job := claimAnalysis(t, h.store)

	if err := h.coord.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}

	res, err := h.store.GetFusionResult(ctx, job.ID)
	if err != nil || res == nil {
		t.Fatalf("get fusion result: res=%v err=%v", res, err)
	}
	if !res.Partial {
		t.Fatal("failed identity adapter must mark the result partial")
	}
	if res.PartialReason == "" {
		t.Fatal("partial result missing reason")
	}

	// Partial analyses always get a human look, whatever the verdict.
	ticket, err := h.store.TicketForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ticket for job: %v", err)
	}
	if ticket == nil {
		t.Fatal("partial result did not open a review ticket")
	}
}

func TestProcessPartialWhenExpensiveStageFailsEntirely(t *testing.T) {
	// The manipulation provider hangs until its deadline; the other two
	// reject outright. The job must still settle into a partial result.
	hang := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server notices the client abandoning the
		// request; otherwise the request context is never cancelled and
		// the harness hangs in Close.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})
	h := newHarness(t, hang,
		errorHandler(http.StatusInternalServerError),
		errorHandler(http.StatusServiceUnavailable),
		func(cfg *config.Config) {
			cfg.Adapters.Manipulation.TimeoutSeconds = 1
		})
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, h.store, "org-1", "artifacts/a", evidence.ArtifactAttrs{
		Width: 1920, Height: 1080, Watermark: true, Upscaled: true,
	})
	job := claimAnalysis(t, h.store)

	if err := h.coord.Process(ctx, job); err != nil {
		t.Fatalf("process: %v", err)
	}

	history, err := h.store.EvidenceForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("evidence for job: %v", err)
	}
	failures := 0
	for _, rec := range history {
		if rec.Outcome == evidence.OutcomeFailure {
			failures++
		}
	}
	if failures != 3 {
		t.Fatalf("got %d failure records, want one per expensive adapter", failures)
	}
	rec, ok := evidence.ByAdapter(history, evidence.AdapterManipulation)
	if !ok {
		t.Fatal("no manipulation record written")
	}
	if !strings.Contains(rec.Reason, "deadline exceeded") {
		t.Fatalf("manipulation failure reason = %q, want timeout", rec.Reason)
	}

	res, err := h.store.GetFusionResult(ctx, job.ID)
	if err != nil || res == nil {
		t.Fatalf("get fusion result: res=%v err=%v", res, err)
	}
	if !res.Partial {
		t.Fatal("fully failed expensive stage must mark the result partial")
	}
	if !strings.HasPrefix(res.PartialReason, "expensive stage failed entirely") {
		t.Fatalf("partial reason = %q", res.PartialReason)
	}
	if !strings.Contains(res.PartialReason, evidence.AdapterManipulation) {
		t.Fatalf("partial reason %q does not name the manipulation check", res.PartialReason)
	}
	if res.Scores.Manipulation != 50 {
		t.Fatalf("manipulation score = %d, want the neutral default", res.Scores.Manipulation)
	}

	ticket, err := h.store.TicketForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ticket for job: %v", err)
	}
	if ticket == nil {
		t.Fatal("partial result did not open a review ticket")
	}
}
