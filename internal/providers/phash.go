package providers

import (
	"context"
	"time"

	"veracity/internal/evidence"
	"veracity/internal/queue"
)

// phashMaxDistance bounds the catalog search; anything farther than 16
// bits is not a meaningful visual relative.
const phashMaxDistance = 16

// PerceptualAdapter looks up the artifact's perceptual hash in the local
// duplicate catalog. It runs in the cheap stage: no network, SQLite only.
type PerceptualAdapter struct {
	store   *queue.Store
	timeout time.Duration
}

// NewPerceptualAdapter builds the catalog-lookup adapter.
func NewPerceptualAdapter(store *queue.Store, timeout time.Duration) *PerceptualAdapter {
	return &PerceptualAdapter{store: store, timeout: timeout}
}

func (a *PerceptualAdapter) Name() string { return evidence.AdapterPerceptual }

func (a *PerceptualAdapter) Factor() evidence.Factor { return evidence.FactorVisual }

func (a *PerceptualAdapter) Timeout() time.Duration { return a.timeout }

func (a *PerceptualAdapter) Check(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	payload := evidence.DuplicatePayload{BestDistance: -1}

	// Artifacts arrive without a hash when extraction failed upstream.
	// That is an empty lookup, not an adapter failure.
	if req.Attrs.PerceptualHash != "" {
		matches, err := a.store.NearestHashes(ctx, req.Attrs.PerceptualHash, phashMaxDistance)
		if err != nil {
			return nil, err
		}
		for i, match := range matches {
			if i == 0 {
				payload.BestDistance = match.Distance
			}
			payload.Matches = append(payload.Matches, evidence.DuplicateMatch{
				Label:    match.Entry.Label,
				Distance: match.Distance,
				Flagged:  match.Entry.Flagged,
			})
		}
	}

	return &evidence.Evidence{Payload: payload, Provider: "hash-catalog"}, nil
}
