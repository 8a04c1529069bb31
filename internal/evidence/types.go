package evidence

import (
	"encoding/json"
	"strings"
	"time"
)

// Factor identifies one of the four scored factor families.
type Factor string

const (
	FactorProvenance   Factor = "provenance"
	FactorVisual       Factor = "visual"
	FactorManipulation Factor = "manipulation"
	FactorIdentity     Factor = "identity"
)

// Factors returns the scored factor families in canonical order.
func Factors() []Factor {
	return []Factor{FactorProvenance, FactorVisual, FactorManipulation, FactorIdentity}
}

// Outcome describes how an adapter invocation settled.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// ParseOutcome converts a string into a known Outcome.
func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(value))) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeFailure:
		return OutcomeFailure, true
	case OutcomeSkipped:
		return OutcomeSkipped, true
	default:
		return "", false
	}
}

// ArtifactAttrs carries the cheap, already-extracted attributes of an
// uploaded artifact. They are supplied by the upload collaborator at
// submission time and drive the escalation heuristics.
type ArtifactAttrs struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	PerceptualHash string `json:"perceptual_hash,omitempty"` // hex-encoded 64-bit hash
	Watermark      bool   `json:"watermark,omitempty"`
	Upscaled       bool   `json:"upscaled,omitempty"`
	OriginHash     string `json:"origin_hash,omitempty"`
	MimeType       string `json:"mime_type,omitempty"`
}

// Request is the input handed to every adapter.
type Request struct {
	JobID       int64
	OrgID       string
	ArtifactRef string
	Attrs       ArtifactAttrs
}

// Evidence is a successful adapter result: a typed payload plus the
// provider label used for auditing.
type Evidence struct {
	Payload  any
	Provider string
}

// Record is one adapter invocation's immutable outcome. Records are
// append-only; a retry appends a new record and the latest per adapter per
// job is authoritative for fusion.
type Record struct {
	ID        int64
	JobID     int64
	Adapter   string
	Factor    Factor
	Outcome   Outcome
	Payload   json.RawMessage
	Reason    string
	Provider  string
	Latency   time.Duration
	CreatedAt time.Time
}

// DecodePayload unmarshals the record payload into dst.
func (r Record) DecodePayload(dst any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, dst)
}

// Latest reduces an append-only record set to the authoritative record per
// adapter, preserving first-seen adapter order.
func Latest(records []Record) []Record {
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if pos, ok := index[rec.Adapter]; ok {
			out[pos] = rec
			continue
		}
		index[rec.Adapter] = len(out)
		out = append(out, rec)
	}
	return out
}

// ByAdapter returns the authoritative record for an adapter, if any.
func ByAdapter(records []Record, adapter string) (Record, bool) {
	for _, rec := range Latest(records) {
		if rec.Adapter == adapter {
			return rec, true
		}
	}
	return Record{}, false
}
