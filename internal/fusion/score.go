package fusion

import (
	"fmt"

	"veracity/internal/evidence"
)

// Scores holds the bounded 0-100 score computed for each factor family.
type Scores struct {
	Provenance   int `json:"provenance"`
	Manipulation int `json:"manipulation"`
	Visual       int `json:"visual"`
	Identity     int `json:"identity"`
}

// Neutral defaults used when a factor has no usable evidence. Absence of
// duplication evidence is mildly reassuring, so the visual factor defaults
// slightly positive.
const (
	defaultScore       = 50
	defaultVisualScore = 60
)

// factorAssessment is one factor's scored contribution plus the audit
// strings it produces.
type factorAssessment struct {
	score      int
	confidence int
	available  bool
	risks      []string
	positives  []string
}

func assessProvenance(records []evidence.Record) factorAssessment {
	rec, ok := evidence.ByAdapter(records, evidence.AdapterProvenance)
	if !ok || rec.Outcome != evidence.OutcomeSuccess {
		return factorAssessment{
			score: defaultScore,
			risks: []string{"provenance could not be checked"},
		}
	}

	var payload evidence.ProvenancePayload
	if err := rec.DecodePayload(&payload); err != nil {
		return factorAssessment{
			score: defaultScore,
			risks: []string{"provenance evidence unreadable"},
		}
	}

	assessment := factorAssessment{available: true, confidence: 90}
	switch {
	case payload.Verified() && payload.IssuerTrusted:
		assessment.score = 95
		assessment.positives = append(assessment.positives,
			fmt.Sprintf("provenance verified by trusted issuer %s", payload.Issuer))
	case payload.Verified():
		assessment.score = 80
		assessment.positives = append(assessment.positives, "provenance manifest signed")
		assessment.risks = append(assessment.risks, "provenance issuer not on trust list")
	case payload.ManifestPresent:
		assessment.score = 40
		assessment.risks = append(assessment.risks, "provenance signature invalid")
	default:
		assessment.score = 20
		assessment.risks = append(assessment.risks, "no provenance manifest embedded")
	}
	return assessment
}

func assessManipulation(records []evidence.Record) factorAssessment {
	rec, ok := evidence.ByAdapter(records, evidence.AdapterManipulation)
	if !ok || rec.Outcome != evidence.OutcomeSuccess {
		return factorAssessment{
			score: defaultScore,
			risks: []string{"manipulation analysis unavailable"},
		}
	}

	var payload evidence.ManipulationPayload
	if err := rec.DecodePayload(&payload); err != nil {
		return factorAssessment{
			score: defaultScore,
			risks: []string{"manipulation evidence unreadable"},
		}
	}

	assessment := factorAssessment{
		score:      clampScore(100 - payload.Probability),
		confidence: clampScore(payload.Confidence),
		available:  true,
	}
	switch {
	case payload.Probability >= 70:
		assessment.risks = append(assessment.risks,
			fmt.Sprintf("manipulation classifier reports %d%% probability of synthesis", payload.Probability))
	case payload.Probability <= 15:
		assessment.positives = append(assessment.positives, "manipulation classifier reports clean signal")
	}
	return assessment
}

// assessVisual fuses the perceptual-hash catalog lookup and the web
// reverse-search into the single visual-duplication factor. Either adapter
// alone can make the factor available; the worse signal dominates.
func assessVisual(records []evidence.Record) (factorAssessment, bool) {
	assessment := factorAssessment{score: defaultVisualScore}
	zeroMatches := true
	componentScores := 0
	components := 0

	if rec, ok := evidence.ByAdapter(records, evidence.AdapterPerceptual); ok && rec.Outcome == evidence.OutcomeSuccess {
		var payload evidence.DuplicatePayload
		if err := rec.DecodePayload(&payload); err == nil {
			assessment.available = true
			components++
			switch {
			case payload.BestDistance >= 0 && payload.BestDistance <= 8:
				componentScores += 10
				zeroMatches = false
				assessment.risks = append(assessment.risks,
					fmt.Sprintf("near-duplicate of cataloged artifact (hamming distance %d)", payload.BestDistance))
			case payload.BestDistance >= 0 && payload.BestDistance <= 16:
				componentScores += 45
				zeroMatches = false
				assessment.risks = append(assessment.risks, "visually similar to a cataloged artifact")
			default:
				componentScores += 85
				assessment.positives = append(assessment.positives, "no perceptual-hash catalog matches")
			}
		}
	}

	if rec, ok := evidence.ByAdapter(records, evidence.AdapterWebPresence); ok && rec.Outcome == evidence.OutcomeSuccess {
		var payload evidence.WebPresencePayload
		if err := rec.DecodePayload(&payload); err == nil {
			assessment.available = true
			components++
			switch {
			case payload.FlaggedCount > 0:
				componentScores += 10
				zeroMatches = false
				assessment.risks = append(assessment.risks,
					fmt.Sprintf("found on %d flagged domain(s)", payload.FlaggedCount))
			case payload.MatchCount > 0:
				componentScores += 50
				zeroMatches = false
				assessment.risks = append(assessment.risks,
					fmt.Sprintf("%d prior web appearance(s) of this image", payload.MatchCount))
			default:
				componentScores += 85
				assessment.positives = append(assessment.positives, "no prior web presence found")
			}
		}
	}

	if assessment.available {
		assessment.score = componentScores / components
		assessment.confidence = 80
	} else {
		assessment.risks = append(assessment.risks, "duplication checks unavailable")
		zeroMatches = false
	}
	return assessment, zeroMatches
}

func assessIdentity(records []evidence.Record) factorAssessment {
	rec, ok := evidence.ByAdapter(records, evidence.AdapterIdentity)
	if !ok || rec.Outcome != evidence.OutcomeSuccess {
		return factorAssessment{
			score: defaultScore,
			risks: []string{"seller identity signals unavailable"},
		}
	}

	var payload evidence.IdentityPayload
	if err := rec.DecodePayload(&payload); err != nil {
		return factorAssessment{
			score: defaultScore,
			risks: []string{"identity evidence unreadable"},
		}
	}

	score := clampScore(payload.TrustScore)
	assessment := factorAssessment{score: score, confidence: 70, available: true}
	if payload.PriorFlags > 0 {
		assessment.risks = append(assessment.risks,
			fmt.Sprintf("seller has %d prior flag(s)", payload.PriorFlags))
	}
	if payload.Verified {
		assessment.positives = append(assessment.positives, "seller identity verified")
	}
	if payload.AccountAgeDays < 30 {
		assessment.risks = append(assessment.risks, "seller account newer than 30 days")
	}
	return assessment
}
