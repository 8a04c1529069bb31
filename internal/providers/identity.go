package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/services"
)

// IdentityAdapter queries the seller-trust service for signals about the
// uploading account.
type IdentityAdapter struct {
	cfg    config.Provider
	client *http.Client
}

// NewIdentityAdapter builds the seller-trust client.
func NewIdentityAdapter(cfg config.Provider) *IdentityAdapter {
	return &IdentityAdapter{cfg: cfg, client: newHTTPClient()}
}

func (a *IdentityAdapter) Name() string { return evidence.AdapterIdentity }

func (a *IdentityAdapter) Factor() evidence.Factor { return evidence.FactorIdentity }

func (a *IdentityAdapter) Timeout() time.Duration { return a.cfg.AdapterTimeout() }

type identityResponse struct {
	TrustScore     int  `json:"trust_score"`
	AccountAgeDays int  `json:"account_age_days"`
	PriorFlags     int  `json:"prior_flags"`
	Verified       bool `json:"verified"`
}

func (a *IdentityAdapter) Check(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	var resp identityResponse
	if err := postJSON(ctx, a.client, a.cfg, a.Name(), newCheckRequest(req), &resp); err != nil {
		return nil, err
	}

	if resp.TrustScore < 0 || resp.TrustScore > 100 {
		return nil, services.Wrap(services.ErrInvalidEvidence, a.Name(), "check",
			fmt.Sprintf("trust score %d out of range", resp.TrustScore), nil)
	}

	return &evidence.Evidence{
		Payload: evidence.IdentityPayload{
			TrustScore:     resp.TrustScore,
			AccountAgeDays: resp.AccountAgeDays,
			PriorFlags:     resp.PriorFlags,
			Verified:       resp.Verified,
		},
		Provider: "seller-trust",
	}, nil
}
