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

// ManipulationAdapter queries the AI-manipulation classifier service.
type ManipulationAdapter struct {
	cfg    config.Provider
	client *http.Client
}

// NewManipulationAdapter builds the manipulation classifier client.
func NewManipulationAdapter(cfg config.Provider) *ManipulationAdapter {
	return &ManipulationAdapter{cfg: cfg, client: newHTTPClient()}
}

func (a *ManipulationAdapter) Name() string { return evidence.AdapterManipulation }

func (a *ManipulationAdapter) Factor() evidence.Factor { return evidence.FactorManipulation }

func (a *ManipulationAdapter) Timeout() time.Duration { return a.cfg.AdapterTimeout() }

type manipulationResponse struct {
	Probability int    `json:"probability"`
	Confidence  int    `json:"confidence"`
	Model       string `json:"model"`
}

func (a *ManipulationAdapter) Check(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	var resp manipulationResponse
	if err := postJSON(ctx, a.client, a.cfg, a.Name(), newCheckRequest(req), &resp); err != nil {
		return nil, err
	}

	if resp.Probability < 0 || resp.Probability > 100 || resp.Confidence < 0 || resp.Confidence > 100 {
		return nil, services.Wrap(services.ErrInvalidEvidence, a.Name(), "check",
			fmt.Sprintf("probability %d / confidence %d out of range", resp.Probability, resp.Confidence), nil)
	}

	return &evidence.Evidence{
		Payload: evidence.ManipulationPayload{
			Probability: resp.Probability,
			Confidence:  resp.Confidence,
			Model:       resp.Model,
		},
		Provider: resp.Model,
	}, nil
}
