package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"veracity/internal/evidence"
	"veracity/internal/fusion"
	"veracity/internal/queue"
	"veracity/internal/services"
	"veracity/internal/testsupport"
)

func TestClaimOrdersByPriorityThenFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	enqueue := func(priority queue.Priority, ref string) int64 {
		t.Helper()
		job, err := store.Enqueue(ctx, queue.NewJob{
			Class:       queue.ClassAnalysis,
			OrgID:       "org-1",
			ArtifactRef: ref,
			Priority:    priority,
		})
		if err != nil {
			t.Fatalf("enqueue %s: %v", ref, err)
		}
		// Distinct creation timestamps keep FIFO ordering observable.
		time.Sleep(5 * time.Millisecond)
		return job.ID
	}

	first := enqueue(queue.PriorityNormal, "artifacts/a")
	low := enqueue(queue.PriorityLow, "artifacts/b")
	urgent := enqueue(queue.PriorityUrgent, "artifacts/c")
	second := enqueue(queue.PriorityNormal, "artifacts/d")

	want := []int64{urgent, first, second, low}
	for i, id := range want {
		job, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1")
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if job == nil {
			t.Fatalf("claim %d: no job available", i)
		}
		if job.ID != id {
			t.Fatalf("claim %d: got job %d, want %d", i, job.ID, id)
		}
		if job.Status != queue.StatusRunning || job.Attempts != 1 {
			t.Fatalf("claimed job %d: status %s attempts %d", job.ID, job.Status, job.Attempts)
		}
	}

	job, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1")
	if err != nil {
		t.Fatalf("claim empty queue: %v", err)
	}
	if job != nil {
		t.Fatalf("expected empty queue, claimed job %d", job.ID)
	}
}

func TestClaimIgnoresOtherClasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})

	job, err := store.Claim(ctx, queue.ClassWebhook, "worker-1")
	if err != nil {
		t.Fatalf("claim webhook class: %v", err)
	}
	if job != nil {
		t.Fatalf("claimed analysis job %d from webhook class", job.ID)
	}
}

func TestNackRetriesUntilExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})

	for attempt := 1; attempt < cfg.Queue.MaxAttempts; attempt++ {
		claimed, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1")
		if err != nil || claimed == nil {
			t.Fatalf("claim attempt %d: job=%v err=%v", attempt, claimed, err)
		}
		status, err := store.Nack(ctx, claimed.ID, true, "adapter unavailable")
		if err != nil {
			t.Fatalf("nack attempt %d: %v", attempt, err)
		}
		if status != queue.StatusPending {
			t.Fatalf("nack attempt %d: status %s, want pending", attempt, status)
		}
	}

	claimed, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("final claim: job=%v err=%v", claimed, err)
	}
	if claimed.Attempts != cfg.Queue.MaxAttempts {
		t.Fatalf("attempts = %d, want %d", claimed.Attempts, cfg.Queue.MaxAttempts)
	}

	status, err := store.Nack(ctx, claimed.ID, true, "adapter unavailable")
	if err != nil {
		t.Fatalf("final nack: %v", err)
	}
	if status != queue.StatusFailed {
		t.Fatalf("final nack status = %s, want failed", status)
	}

	failed, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if failed.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
	if failed.ErrorMessage != "adapter unavailable" {
		t.Fatalf("error message = %q", failed.ErrorMessage)
	}
}

func TestNackNonRetryableFailsImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})
	claimed, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1")
	if err != nil || claimed == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}

	status, err := store.Nack(ctx, claimed.ID, false, "bad artifact attributes")
	if err != nil {
		t.Fatalf("nack: %v", err)
	}
	if status != queue.StatusFailed {
		t.Fatalf("status = %s, want failed on first non-retryable failure", status)
	}
}

func TestRetryFailedResetsAttempts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})
	if _, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.Nack(ctx, job.ID, false, "boom"); err != nil {
		t.Fatalf("nack: %v", err)
	}

	count, err := store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("retried %d jobs, want 1", count)
	}

	retried, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if retried.Status != queue.StatusPending || retried.Attempts != 0 {
		t.Fatalf("retried job: status %s attempts %d", retried.Status, retried.Attempts)
	}
}

func TestCancelTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})

	cancelled, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("pending job should cancel")
	}

	again, err := store.Cancel(ctx, job.ID)
	if err != nil {
		t.Fatalf("cancel again: %v", err)
	}
	if again {
		t.Fatal("cancelled job should not cancel twice")
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != queue.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if !got.Terminal() {
		t.Fatal("cancelled job should be terminal")
	}
}

func TestReclaimStaleReturnsJobToQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})
	if _, err := store.Claim(ctx, queue.ClassAnalysis, "worker-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Nothing is stale against a cutoff in the past.
	count, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 0 {
		t.Fatalf("reclaimed %d jobs against past cutoff", count)
	}

	count, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if count != 1 {
		t.Fatalf("reclaimed %d jobs, want 1", count)
	}

	reclaimed, err := store.Claim(ctx, queue.ClassAnalysis, "worker-2")
	if err != nil {
		t.Fatalf("claim reclaimed: %v", err)
	}
	if reclaimed == nil || reclaimed.ID != job.ID {
		t.Fatalf("reclaimed job not claimable again: %v", reclaimed)
	}
}

func TestEvidenceAppendOnlyAndLatest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})

	failure := evidence.Record{
		JobID:   job.ID,
		Adapter: "manipulation-http",
		Factor:  evidence.FactorManipulation,
		Outcome: evidence.OutcomeFailure,
		Reason:  "deadline exceeded",
	}
	success := evidence.Record{
		JobID:    job.ID,
		Adapter:  "manipulation-http",
		Factor:   evidence.FactorManipulation,
		Outcome:  evidence.OutcomeSuccess,
		Payload:  json.RawMessage(`{"probability":12,"confidence":88}`),
		Provider: "acme-detect",
		Latency:  250 * time.Millisecond,
	}

	for _, rec := range []evidence.Record{failure, success} {
		if _, err := store.AppendEvidence(ctx, rec); err != nil {
			t.Fatalf("append evidence: %v", err)
		}
	}

	records, err := store.EvidenceForJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("evidence for job: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want append-only history of 2", len(records))
	}
	if records[0].Outcome != evidence.OutcomeFailure || records[1].Outcome != evidence.OutcomeSuccess {
		t.Fatalf("records out of insertion order: %v, %v", records[0].Outcome, records[1].Outcome)
	}

	latest := evidence.Latest(records)
	if len(latest) != 1 {
		t.Fatalf("latest reduced to %d records, want 1", len(latest))
	}
	if latest[0].Outcome != evidence.OutcomeSuccess || latest[0].Provider != "acme-detect" {
		t.Fatalf("latest record = %+v", latest[0])
	}

	var payload evidence.ManipulationPayload
	if err := latest[0].DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Probability != 12 || payload.Confidence != 88 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCreateFusionResultExactlyOncePerJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})

	res := &fusion.Result{
		ID:         "res-1",
		JobID:      job.ID,
		Scores:     fusion.Scores{Provenance: 80, Manipulation: 75, Visual: 60, Identity: 50},
		Weights:    fusion.Weights{Provenance: 0.35, Visual: 0.20, Manipulation: 0.30, Identity: 0.15},
		Score:      71,
		Verdict:    fusion.VerdictGenuine,
		Confidence: 82,
	}
	if err := store.CreateFusionResult(ctx, res); err != nil {
		t.Fatalf("create fusion result: %v", err)
	}

	dup := *res
	dup.ID = "res-2"
	if err := store.CreateFusionResult(ctx, &dup); err == nil {
		t.Fatal("second fusion result for the same job must be rejected")
	}

	got, err := store.GetFusionResult(ctx, job.ID)
	if err != nil {
		t.Fatalf("get fusion result: %v", err)
	}
	if got.ID != "res-1" || got.Verdict != fusion.VerdictGenuine || got.Score != 71 {
		t.Fatalf("stored result = %+v", got)
	}
	if got.Override != nil {
		t.Fatalf("fresh result carries override %+v", got.Override)
	}
}

func TestRecordOverrideOnlyOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})
	res := &fusion.Result{
		ID:         "res-1",
		JobID:      job.ID,
		Score:      30,
		Verdict:    fusion.VerdictFake,
		Confidence: 60,
	}
	if err := store.CreateFusionResult(ctx, res); err != nil {
		t.Fatalf("create fusion result: %v", err)
	}

	first := fusion.Override{
		Verdict:      fusion.VerdictGenuine,
		PriorVerdict: fusion.VerdictFake,
		Reason:       "confirmed original by rights holder",
		Actor:        "analyst@example.com",
		At:           time.Now().UTC(),
	}
	if err := store.RecordOverride(ctx, res.ID, first); err != nil {
		t.Fatalf("record override: %v", err)
	}

	got, err := store.GetFusionResultByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got.Override == nil || got.Override.Verdict != fusion.VerdictGenuine {
		t.Fatalf("override not recorded: %+v", got.Override)
	}
	if got.EffectiveVerdict() != fusion.VerdictGenuine {
		t.Fatalf("effective verdict = %s", got.EffectiveVerdict())
	}

	second := first
	second.Actor = "other@example.com"
	err = store.RecordOverride(ctx, res.ID, second)
	if !errors.Is(err, services.ErrOverrideConflict) {
		t.Fatalf("second override error = %v, want override conflict", err)
	}

	err = store.RecordOverride(ctx, "no-such-result", first)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing result error = %v, want not found", err)
	}
}

func TestNearestHashesOrdersByDistance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entries := []struct {
		hash    string
		label   string
		flagged bool
	}{
		{"0000000000000000", "original", false},
		{"0000000000000007", "near-duplicate", true},
		{"00000000000000ff", "loose-match", false},
		{"ffffffffffffffff", "unrelated", false},
	}
	for _, e := range entries {
		if err := store.AddCatalogHash(ctx, e.hash, e.label, e.flagged); err != nil {
			t.Fatalf("add catalog hash %s: %v", e.hash, err)
		}
	}

	matches, err := store.NearestHashes(ctx, "0000000000000001", 16)
	if err != nil {
		t.Fatalf("nearest hashes: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3 within distance 16", len(matches))
	}
	if matches[0].Distance != 1 || matches[0].Entry.Label != "original" {
		t.Fatalf("closest match = %+v", matches[0])
	}
	if matches[1].Distance != 2 || !matches[1].Entry.Flagged {
		t.Fatalf("second match = %+v", matches[1])
	}
	if matches[2].Distance != 7 {
		t.Fatalf("third match = %+v", matches[2])
	}

	if err := store.AddCatalogHash(ctx, "not-hex", "bad", false); err == nil {
		t.Fatal("non-hex hash must be rejected")
	}
}

func TestEndpointsUpsertAndRemove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.AddEndpoint(ctx, "org-1", "https://hooks.example.com/a", "secret-1"); err != nil {
		t.Fatalf("add endpoint: %v", err)
	}
	if err := store.AddEndpoint(ctx, "org-1", "https://hooks.example.com/a", "secret-2"); err != nil {
		t.Fatalf("re-add endpoint: %v", err)
	}
	if err := store.AddEndpoint(ctx, "org-2", "https://hooks.example.com/a", "other"); err != nil {
		t.Fatalf("add endpoint for other org: %v", err)
	}

	endpoints, err := store.EndpointsForOrg(ctx, "org-1")
	if err != nil {
		t.Fatalf("endpoints for org: %v", err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("got %d endpoints, want upsert to keep 1", len(endpoints))
	}
	if endpoints[0].Secret != "secret-2" {
		t.Fatalf("secret = %q, want rotated secret", endpoints[0].Secret)
	}

	removed, err := store.RemoveEndpoint(ctx, "org-1", "https://hooks.example.com/a")
	if err != nil {
		t.Fatalf("remove endpoint: %v", err)
	}
	if !removed {
		t.Fatal("expected endpoint removal")
	}
	removed, err = store.RemoveEndpoint(ctx, "org-1", "https://hooks.example.com/a")
	if err != nil {
		t.Fatalf("remove endpoint again: %v", err)
	}
	if removed {
		t.Fatal("second removal should report nothing deleted")
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/a", evidence.ArtifactAttrs{})
	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/b", evidence.ArtifactAttrs{})
	if _, err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats[queue.StatusPending] != 1 || stats[queue.StatusCancelled] != 1 {
		t.Fatalf("stats = %v", stats)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Total != 2 || health.Pending != 1 || health.Cancelled != 1 {
		t.Fatalf("health = %+v", health)
	}

	db := store.CheckDatabaseHealth(ctx)
	if !db.DatabaseExists || !db.DatabaseReadable || !db.IntegrityCheck {
		t.Fatalf("database health = %+v", db)
	}
}

func TestCountRecentByOriginMatchesExactHash(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	enqueue := func(class queue.Class, attrs evidence.ArtifactAttrs) {
		t.Helper()
		if _, err := store.Enqueue(ctx, queue.NewJob{
			Class:       class,
			OrgID:       "org-1",
			ArtifactRef: "artifacts/a",
			Attrs:       attrs,
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	enqueue(queue.ClassAnalysis, evidence.ArtifactAttrs{OriginHash: "cafe01"})
	enqueue(queue.ClassAnalysis, evidence.ArtifactAttrs{OriginHash: "cafe01"})
	// Prefix of the queried hash, must not count.
	enqueue(queue.ClassAnalysis, evidence.ArtifactAttrs{OriginHash: "cafe"})
	// Queried value appearing in a different attribute, must not count.
	enqueue(queue.ClassAnalysis, evidence.ArtifactAttrs{PerceptualHash: "cafe01"})
	// Same origin on a non-analysis job, must not count.
	enqueue(queue.ClassWebhook, evidence.ArtifactAttrs{OriginHash: "cafe01"})

	count, err := store.CountRecentByOrigin(ctx, "cafe01", time.Hour)
	if err != nil {
		t.Fatalf("count by origin: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want the two exact matches", count)
	}

	// SQL wildcards in the queried value carry no special meaning.
	count, err = store.CountRecentByOrigin(ctx, "%", time.Hour)
	if err != nil {
		t.Fatalf("count wildcard origin: %v", err)
	}
	if count != 0 {
		t.Fatalf("wildcard origin matched %d jobs, want 0", count)
	}

	count, err = store.CountRecentByOrigin(ctx, "", time.Hour)
	if err != nil || count != 0 {
		t.Fatalf("empty origin: count=%d err=%v", count, err)
	}
}
