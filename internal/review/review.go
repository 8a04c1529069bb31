// Package review routes completed analyses to human reviewers and applies
// admin overrides.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"veracity/internal/config"
	"veracity/internal/fusion"
	"veracity/internal/logging"
	"veracity/internal/queue"
	"veracity/internal/services"
)

// Router decides whether a fusion result needs a human-review ticket.
type Router struct {
	store  *queue.Store
	sla    time.Duration
	logger *slog.Logger
}

// NewRouter builds the review router.
func NewRouter(store *queue.Store, cfg *config.Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Router{
		store:  store,
		sla:    time.Duration(cfg.Review.SLAHours) * time.Hour,
		logger: logger.With(logging.FieldComponent, "review"),
	}
}

// Route creates a ticket iff the verdict is suspicious or fake, or the
// analysis completed partial. Returns nil when no review is needed. The
// rule is deterministic: same result, same routing.
func (r *Router) Route(ctx context.Context, res *fusion.Result) (*queue.Ticket, error) {
	if res.Verdict == fusion.VerdictGenuine && !res.Partial {
		return nil, nil
	}

	priority := queue.TicketPriorityNormal
	if res.Verdict == fusion.VerdictFake {
		priority = queue.TicketPriorityHigh
	}
	deadline := time.Now().UTC().Add(r.sla)

	ticket, err := r.store.CreateTicket(ctx, res.ID, res.JobID, priority, deadline)
	if err != nil {
		return nil, fmt.Errorf("create review ticket: %w", err)
	}

	r.logger.Info("review ticket created",
		logging.FieldJobID, res.JobID,
		"ticket_id", ticket.ID,
		"priority", string(ticket.Priority),
		"verdict", string(res.Verdict),
		"partial", res.Partial,
		"sla_deadline", ticket.SLADeadline)
	return ticket, nil
}

// Override applies the single admin override allowed on a fusion result
// and resolves any open ticket attached to it. The fused values are never
// touched; the override layers on top. A second override reports a
// conflict and leaves the first in place.
func (r *Router) Override(ctx context.Context, resultID, verdict, actor, reason string) (*fusion.Result, error) {
	parsed, ok := fusion.ParseVerdict(verdict)
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "review", "override",
			fmt.Sprintf("unknown verdict %q", verdict), nil)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "review", "override", "actor is required", nil)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "review", "override", "reason is required", nil)
	}

	res, err := r.store.GetFusionResultByID(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, services.Wrap(services.ErrNotFound, "review", "override",
			fmt.Sprintf("fusion result %s not found", resultID), nil)
	}

	override := fusion.Override{
		Verdict:      parsed,
		PriorVerdict: res.Verdict,
		Reason:       reason,
		Actor:        actor,
		At:           time.Now().UTC(),
	}
	if err := r.store.RecordOverride(ctx, resultID, override); err != nil {
		return nil, err
	}

	resolved, err := r.store.ResolveTicket(ctx, resultID)
	if err != nil {
		return nil, err
	}

	r.logger.Info("admin override applied",
		logging.FieldJobID, res.JobID,
		"result_id", resultID,
		"prior_verdict", string(override.PriorVerdict),
		"new_verdict", string(override.Verdict),
		"actor", actor,
		"tickets_resolved", resolved)

	return r.store.GetFusionResultByID(ctx, resultID)
}
