package review_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"veracity/internal/evidence"
	"veracity/internal/fusion"
	"veracity/internal/queue"
	"veracity/internal/review"
	"veracity/internal/services"
	"veracity/internal/testsupport"
)

func newResult(t *testing.T, store *queue.Store, id string, verdict fusion.Verdict, partial bool) *fusion.Result {
	t.Helper()

	job := testsupport.NewAnalysisJob(t, store, "org-1", "artifacts/"+id, evidence.ArtifactAttrs{})
	res := &fusion.Result{
		ID:         id,
		JobID:      job.ID,
		Score:      55,
		Verdict:    verdict,
		Confidence: 70,
		Partial:    partial,
	}
	if err := store.CreateFusionResult(context.Background(), res); err != nil {
		t.Fatalf("create fusion result: %v", err)
	}
	return res
}

func TestRouteGenuineCompleteNeedsNoTicket(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	router := review.NewRouter(store, cfg, nil)

	res := newResult(t, store, "res-genuine", fusion.VerdictGenuine, false)
	ticket, err := router.Route(context.Background(), res)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if ticket != nil {
		t.Fatalf("genuine complete result routed to ticket %d", ticket.ID)
	}
}

func TestRouteFakeGetsHighPriorityTicket(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	router := review.NewRouter(store, cfg, nil)

	res := newResult(t, store, "res-fake", fusion.VerdictFake, false)
	ticket, err := router.Route(context.Background(), res)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if ticket == nil {
		t.Fatal("fake verdict must open a ticket")
	}
	if ticket.Priority != queue.TicketPriorityHigh {
		t.Fatalf("priority = %s, want high", ticket.Priority)
	}
	if ticket.State != queue.TicketOpen {
		t.Fatalf("state = %s, want open", ticket.State)
	}

	wantDeadline := time.Now().UTC().Add(time.Duration(cfg.Review.SLAHours) * time.Hour)
	if diff := ticket.SLADeadline.Sub(wantDeadline); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("sla deadline = %v, want about %v", ticket.SLADeadline, wantDeadline)
	}
	if ticket.Overdue(time.Now()) {
		t.Fatal("fresh ticket should not be overdue")
	}
	if !ticket.Overdue(ticket.SLADeadline.Add(time.Hour)) {
		t.Fatal("ticket past its deadline should be overdue")
	}
}

func TestRoutePartialGenuineStillGetsTicket(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	router := review.NewRouter(store, cfg, nil)

	res := newResult(t, store, "res-partial", fusion.VerdictGenuine, true)
	ticket, err := router.Route(context.Background(), res)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if ticket == nil {
		t.Fatal("partial analysis must open a ticket regardless of verdict")
	}
	if ticket.Priority != queue.TicketPriorityNormal {
		t.Fatalf("priority = %s, want normal", ticket.Priority)
	}
}

func TestOverrideResolvesTicketAndLocksResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	router := review.NewRouter(store, cfg, nil)
	ctx := context.Background()

	res := newResult(t, store, "res-override", fusion.VerdictFake, false)
	ticket, err := router.Route(ctx, res)
	if err != nil || ticket == nil {
		t.Fatalf("route: ticket=%v err=%v", ticket, err)
	}

	overridden, err := router.Override(ctx, res.ID, "genuine", "analyst@example.com", "rights holder confirmed the original")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if overridden.Override == nil {
		t.Fatal("override not recorded on result")
	}
	if overridden.Override.PriorVerdict != fusion.VerdictFake {
		t.Fatalf("prior verdict = %s", overridden.Override.PriorVerdict)
	}
	if overridden.Verdict != fusion.VerdictFake {
		t.Fatalf("fused verdict mutated to %s", overridden.Verdict)
	}
	if overridden.EffectiveVerdict() != fusion.VerdictGenuine {
		t.Fatalf("effective verdict = %s", overridden.EffectiveVerdict())
	}

	resolved, err := store.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if resolved.State != queue.TicketResolved {
		t.Fatalf("ticket state = %s, want resolved", resolved.State)
	}

	_, err = router.Override(ctx, res.ID, "fake", "other@example.com", "disagree")
	if !errors.Is(err, services.ErrOverrideConflict) {
		t.Fatalf("second override err = %v, want conflict", err)
	}

	final, err := store.GetFusionResultByID(ctx, res.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if final.Override.Actor != "analyst@example.com" {
		t.Fatalf("first override displaced: %+v", final.Override)
	}
}

func TestOverrideValidatesInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	router := review.NewRouter(store, cfg, nil)
	ctx := context.Background()

	res := newResult(t, store, "res-validate", fusion.VerdictSuspicious, false)

	cases := []struct {
		name    string
		verdict string
		actor   string
		reason  string
	}{
		{"unknown verdict", "plausible", "analyst", "reason"},
		{"missing actor", "genuine", "  ", "reason"},
		{"missing reason", "genuine", "analyst", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := router.Override(ctx, res.ID, tc.verdict, tc.actor, tc.reason)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("err = %v, want configuration error", err)
			}
		})
	}

	_, err := router.Override(ctx, "missing-result", "genuine", "analyst", "reason")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}
