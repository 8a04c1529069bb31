package fusion

import (
	"strings"
	"time"

	"veracity/internal/evidence"
)

// Verdict is the final authenticity call for an artifact.
type Verdict string

const (
	VerdictGenuine    Verdict = "genuine"
	VerdictSuspicious Verdict = "suspicious"
	VerdictFake       Verdict = "fake"
)

// ParseVerdict converts a string into a known Verdict.
func ParseVerdict(value string) (Verdict, bool) {
	switch Verdict(strings.ToLower(strings.TrimSpace(value))) {
	case VerdictGenuine:
		return VerdictGenuine, true
	case VerdictSuspicious:
		return VerdictSuspicious, true
	case VerdictFake:
		return VerdictFake, true
	default:
		return "", false
	}
}

// Params tunes the engine. Built from configuration by the caller.
type Params struct {
	BaseWeights         Weights
	GenuineThreshold    int
	SuspiciousThreshold int
}

// Override is the single layered admin decision allowed on a result. It
// never mutates the fused values underneath it.
type Override struct {
	Verdict      Verdict   `json:"verdict"`
	PriorVerdict Verdict   `json:"prior_verdict"`
	Reason       string    `json:"reason"`
	Actor        string    `json:"actor"`
	At           time.Time `json:"at"`
}

// Result is the engine's output for one job.
type Result struct {
	ID                 string    `json:"id"`
	JobID              int64     `json:"job_id"`
	Scores             Scores    `json:"scores"`
	Weights            Weights   `json:"weights"`
	Score              int       `json:"score"`
	Verdict            Verdict   `json:"verdict"`
	Confidence         int       `json:"confidence"`
	RiskFactors        []string  `json:"risk_factors,omitempty"`
	PositiveIndicators []string  `json:"positive_indicators,omitempty"`
	Partial            bool      `json:"analysis_partial"`
	PartialReason      string    `json:"partial_reason,omitempty"`
	ReportLocator      string    `json:"report_locator,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	Override           *Override `json:"override,omitempty"`
}

// EffectiveVerdict returns the override's verdict when present, else the
// engine's.
func (r *Result) EffectiveVerdict() Verdict {
	if r.Override != nil {
		return r.Override.Verdict
	}
	return r.Verdict
}

// Fuse computes the aggregated score, verdict, and confidence from the
// authoritative evidence record set. Pure: identical records and params
// always yield identical output. ID, JobID, partial flags, and report
// locator are the caller's to fill in.
func Fuse(records []evidence.Record, params Params) Result {
	provenance := assessProvenance(records)
	manipulation := assessManipulation(records)
	visual, zeroMatches := assessVisual(records)
	identity := assessIdentity(records)

	presence := Presence{
		ProvenanceVerified: provenanceVerified(records),
		VisualZeroMatches:  zeroMatches,
	}
	if manipulation.available {
		presence.ManipulationConfidence = manipulation.confidence
	}

	weights := AdjustWeights(params.BaseWeights, presence)

	aggregated := roundScore(
		float64(provenance.score)*weights.Provenance +
			float64(visual.score)*weights.Visual +
			float64(manipulation.score)*weights.Manipulation +
			float64(identity.score)*weights.Identity,
	)
	aggregated = clampScore(aggregated)

	assessments := []factorAssessment{provenance, visual, manipulation, identity}

	var risks, positives []string
	for _, a := range assessments {
		risks = append(risks, a.risks...)
		positives = append(positives, a.positives...)
	}

	return Result{
		Scores: Scores{
			Provenance:   provenance.score,
			Visual:       visual.score,
			Manipulation: manipulation.score,
			Identity:     identity.score,
		},
		Weights:            weights,
		Score:              aggregated,
		Verdict:            verdictFor(aggregated, params),
		Confidence:         confidenceFor(assessments),
		RiskFactors:        risks,
		PositiveIndicators: positives,
	}
}

// Boundary values close with the lower verdict: the genuine threshold
// itself is genuine, the suspicious threshold itself is suspicious.
func verdictFor(score int, params Params) Verdict {
	switch {
	case score >= params.GenuineThreshold:
		return VerdictGenuine
	case score >= params.SuspiciousThreshold:
		return VerdictSuspicious
	default:
		return VerdictFake
	}
}

const (
	factorBonus   = 5
	spreadPenalty = 15
	spreadLimit   = 40
)

func confidenceFor(assessments []factorAssessment) int {
	available := 0
	confidenceSum := 0
	minScore, maxScore := 101, -1
	for _, a := range assessments {
		if !a.available {
			continue // a defaulted factor is missing, not disagreeing
		}
		available++
		confidenceSum += a.confidence
		if a.score < minScore {
			minScore = a.score
		}
		if a.score > maxScore {
			maxScore = a.score
		}
	}
	if available == 0 {
		return 25
	}

	confidence := confidenceSum / available
	confidence += factorBonus * (available - 1)
	if maxScore-minScore > spreadLimit {
		confidence -= spreadPenalty
	}
	return clampScore(confidence)
}

func provenanceVerified(records []evidence.Record) bool {
	rec, ok := evidence.ByAdapter(records, evidence.AdapterProvenance)
	if !ok || rec.Outcome != evidence.OutcomeSuccess {
		return false
	}
	var payload evidence.ProvenancePayload
	if err := rec.DecodePayload(&payload); err != nil {
		return false
	}
	return payload.Verified()
}
