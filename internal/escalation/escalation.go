// Package escalation decides whether the expensive analysis stage runs.
//
// The gate is a pure function over cheap, already-available signals. It
// must stay deterministic and side-effect free so the decision for any
// artifact can be reproduced and tested in isolation.
package escalation

import "fmt"

// Per-signal suspicion increments. Fixed rather than configurable: the
// tunable knob is the threshold, not the shape of the heuristics.
const (
	watermarkIncrement     = 0.4
	hashProximityIncrement = 0.4
	upscaleIncrement       = 0.3
	noProvenanceIncrement  = 0.2
	aspectRatioIncrement   = 0.2
	repeatOriginIncrement  = 0.2

	// Hamming distance at or below which a perceptual hash counts as a
	// near-duplicate of a cataloged artifact.
	hashProximityLimit = 8

	// Aspect ratios outside this band are outliers. Covers everything
	// from 1:3 banners to 3:1 panoramas.
	minAspectRatio = 1.0 / 3.0
	maxAspectRatio = 3.0
)

// Signals carries everything the gate looks at. Absent signals keep their
// zero value: an unknown hash distance is represented as -1.
type Signals struct {
	Width             int
	Height            int
	Watermark         bool
	Upscaled          bool
	HasProvenanceMeta bool
	NearestHashDist   int // -1 when no catalog lookup happened or no match
	RepeatUploads     int // prior uploads from the same origin in the window
}

// Decision is the gate's output, including the per-signal trail for logs.
type Decision struct {
	Escalate  bool
	Forced    bool
	Suspicion float64
	Reasons   []string
}

// Evaluate scores the signals against the threshold. force short-circuits
// the heuristics; re-analysis requests always force.
func Evaluate(signals Signals, threshold float64, force bool) Decision {
	decision := Decision{}

	if signals.Watermark {
		decision.Suspicion += watermarkIncrement
		decision.Reasons = append(decision.Reasons, "watermark detected")
	}
	if signals.NearestHashDist >= 0 && signals.NearestHashDist <= hashProximityLimit {
		decision.Suspicion += hashProximityIncrement
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("perceptual hash within %d bits of a cataloged artifact", signals.NearestHashDist))
	}
	if signals.Upscaled {
		decision.Suspicion += upscaleIncrement
		decision.Reasons = append(decision.Reasons, "upscaled low-resolution source")
	}
	if !signals.HasProvenanceMeta {
		decision.Suspicion += noProvenanceIncrement
		decision.Reasons = append(decision.Reasons, "no provenance metadata")
	}
	if aspectOutlier(signals.Width, signals.Height) {
		decision.Suspicion += aspectRatioIncrement
		decision.Reasons = append(decision.Reasons, "aspect ratio outlier")
	}
	if signals.RepeatUploads > 0 {
		decision.Suspicion += repeatOriginIncrement
		decision.Reasons = append(decision.Reasons,
			fmt.Sprintf("%d recent upload(s) from the same origin", signals.RepeatUploads))
	}

	decision.Escalate = decision.Suspicion >= threshold
	if force && !decision.Escalate {
		decision.Escalate = true
		decision.Forced = true
		decision.Reasons = append(decision.Reasons, "escalation forced by caller")
	} else if force {
		decision.Forced = true
	}
	return decision
}

func aspectOutlier(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	ratio := float64(width) / float64(height)
	return ratio < minAspectRatio || ratio > maxAspectRatio
}
