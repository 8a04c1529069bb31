package providers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/services"
)

// WebPresenceAdapter queries the reverse-image-search service. Outbound
// calls are rate limited because the upstream meters by the minute and
// over-limit calls burn the adapter deadline on 429 retries.
type WebPresenceAdapter struct {
	cfg     config.Provider
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebPresenceAdapter builds the reverse-search client. ratePerMinute <= 0
// disables the limiter.
func NewWebPresenceAdapter(cfg config.Provider, ratePerMinute int) *WebPresenceAdapter {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if ratePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60.0), ratePerMinute)
	}
	return &WebPresenceAdapter{cfg: cfg, client: newHTTPClient(), limiter: limiter}
}

func (a *WebPresenceAdapter) Name() string { return evidence.AdapterWebPresence }

func (a *WebPresenceAdapter) Factor() evidence.Factor { return evidence.FactorVisual }

func (a *WebPresenceAdapter) Timeout() time.Duration { return a.cfg.AdapterTimeout() }

type webPresenceResponse struct {
	Matches []struct {
		Domain     string  `json:"domain"`
		Similarity float64 `json:"similarity"`
		Flagged    bool    `json:"flagged"`
	} `json:"matches"`
}

func (a *WebPresenceAdapter) Check(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, services.Wrap(services.ErrAdapterUnavailable, a.Name(), "check", "rate limit wait", err)
	}

	var resp webPresenceResponse
	if err := postJSON(ctx, a.client, a.cfg, a.Name(), newCheckRequest(req), &resp); err != nil {
		return nil, err
	}

	payload := evidence.WebPresencePayload{MatchCount: len(resp.Matches)}
	for _, match := range resp.Matches {
		if match.Flagged {
			payload.FlaggedCount++
		}
		payload.Matches = append(payload.Matches, evidence.WebMatch{
			Domain:     match.Domain,
			Similarity: match.Similarity,
			Flagged:    match.Flagged,
		})
	}

	return &evidence.Evidence{Payload: payload, Provider: "reverse-search"}, nil
}
