package fusion

import "math"

// Weights holds the relative weight applied to each factor family.
type Weights struct {
	Provenance   float64 `json:"provenance"`
	Visual       float64 `json:"visual"`
	Manipulation float64 `json:"manipulation"`
	Identity     float64 `json:"identity"`
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Provenance + w.Visual + w.Manipulation + w.Identity
}

func (w Weights) add(delta Weights) Weights {
	return Weights{
		Provenance:   w.Provenance + delta.Provenance,
		Visual:       w.Visual + delta.Visual,
		Manipulation: w.Manipulation + delta.Manipulation,
		Identity:     w.Identity + delta.Identity,
	}
}

func (w Weights) normalize() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return Weights{Provenance: 0.25, Visual: 0.25, Manipulation: 0.25, Identity: 0.25}
	}
	return Weights{
		Provenance:   w.Provenance / sum,
		Visual:       w.Visual / sum,
		Manipulation: w.Manipulation / sum,
		Identity:     w.Identity / sum,
	}
}

// Presence summarizes which evidence signals are available and what they
// say, for the purpose of re-weighting only.
type Presence struct {
	ProvenanceVerified     bool
	ManipulationConfidence int
	VisualZeroMatches      bool
}

type weightRule struct {
	applies func(Presence) bool
	delta   func(base Weights, p Presence) Weights
}

// The adjustment rules fire in order; the deltas accumulate and a single
// normalization pass at the end restores a 1.0 sum.
var weightRules = []weightRule{
	{
		// Cryptographic verification is the strongest single signal the
		// system has, so shift weight toward provenance at the expense of
		// the statistical factors.
		applies: func(p Presence) bool { return p.ProvenanceVerified },
		delta: func(_ Weights, _ Presence) Weights {
			return Weights{Provenance: 0.10, Manipulation: -0.05, Visual: -0.05}
		},
	},
	{
		applies: func(p Presence) bool { return p.ManipulationConfidence > 80 },
		delta: func(_ Weights, _ Presence) Weights {
			return Weights{Manipulation: 0.05}
		},
	},
	{
		// Zero duplication matches is reassuring but weak: halve the
		// visual weight and hand the freed share to the other factors.
		applies: func(p Presence) bool { return p.VisualZeroMatches },
		delta: func(base Weights, _ Presence) Weights {
			freed := base.Visual / 2
			return Weights{
				Visual:       -freed,
				Provenance:   freed * 0.4,
				Manipulation: freed * 0.4,
				Identity:     freed * 0.2,
			}
		},
	},
}

// AdjustWeights applies the ordered re-weighting rules to the base weights
// and normalizes the result so the applied weights sum to 1.0.
func AdjustWeights(base Weights, p Presence) Weights {
	adjusted := base
	for _, rule := range weightRules {
		if rule.applies(p) {
			adjusted = adjusted.add(rule.delta(adjusted, p))
		}
	}
	return adjusted.normalize()
}

func roundScore(value float64) int {
	return int(math.Round(value))
}

func clampScore(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
