package evidence

// Canonical adapter names. Fusion and the pipeline look up records by
// these rather than by factor family, since two adapters feed the visual
// family.
const (
	AdapterProvenance   = "provenance"
	AdapterPerceptual   = "phash"
	AdapterManipulation = "manipulation"
	AdapterWebPresence  = "webpresence"
	AdapterIdentity     = "identity"
)

// ProvenancePayload is the provenance authority's verdict on an artifact's
// cryptographic manifest.
type ProvenancePayload struct {
	ManifestPresent bool   `json:"manifest_present"`
	SignatureValid  bool   `json:"signature_valid"`
	Issuer          string `json:"issuer,omitempty"`
	IssuerTrusted   bool   `json:"issuer_trusted"`
	SoftwareAgent   string `json:"software_agent,omitempty"`
}

// Verified reports whether the artifact carries a valid signature chain.
func (p ProvenancePayload) Verified() bool {
	return p.ManifestPresent && p.SignatureValid
}

// DuplicateMatch is a single perceptual-hash catalog hit.
type DuplicateMatch struct {
	Label    string `json:"label,omitempty"`
	Distance int    `json:"distance"`
	Flagged  bool   `json:"flagged,omitempty"`
}

// DuplicatePayload is the perceptual-duplicate adapter's catalog lookup.
// BestDistance is -1 when the catalog held no comparable hash.
type DuplicatePayload struct {
	BestDistance int              `json:"best_distance"`
	Matches      []DuplicateMatch `json:"matches,omitempty"`
}

// ManipulationPayload is the AI-manipulation classifier's report.
// Probability is the likelihood (0-100) the artifact is generated or
// manipulated; Confidence is the classifier's own certainty (0-100).
type ManipulationPayload struct {
	Probability int    `json:"probability"`
	Confidence  int    `json:"confidence"`
	Model       string `json:"model,omitempty"`
}

// WebMatch is one reverse-search hit.
type WebMatch struct {
	Domain     string  `json:"domain"`
	Similarity float64 `json:"similarity"`
	Flagged    bool    `json:"flagged,omitempty"`
}

// WebPresencePayload is the reverse-search adapter's report.
type WebPresencePayload struct {
	MatchCount   int        `json:"match_count"`
	FlaggedCount int        `json:"flagged_count"`
	Matches      []WebMatch `json:"matches,omitempty"`
}

// IdentityPayload is the seller/uploader trust report.
type IdentityPayload struct {
	TrustScore     int  `json:"trust_score"` // 0-100
	AccountAgeDays int  `json:"account_age_days,omitempty"`
	PriorFlags     int  `json:"prior_flags,omitempty"`
	Verified       bool `json:"verified,omitempty"`
}
