package providers

import (
	"context"
	"net/http"
	"time"

	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/services"
)

// ProvenanceAdapter queries the provenance authority for an artifact's
// cryptographic manifest state.
type ProvenanceAdapter struct {
	cfg    config.Provider
	client *http.Client
}

// NewProvenanceAdapter builds the provenance authority client.
func NewProvenanceAdapter(cfg config.Provider) *ProvenanceAdapter {
	return &ProvenanceAdapter{cfg: cfg, client: newHTTPClient()}
}

func (a *ProvenanceAdapter) Name() string { return evidence.AdapterProvenance }

func (a *ProvenanceAdapter) Factor() evidence.Factor { return evidence.FactorProvenance }

func (a *ProvenanceAdapter) Timeout() time.Duration { return a.cfg.AdapterTimeout() }

type provenanceResponse struct {
	ManifestPresent bool   `json:"manifest_present"`
	SignatureValid  bool   `json:"signature_valid"`
	Issuer          string `json:"issuer"`
	IssuerTrusted   bool   `json:"issuer_trusted"`
	SoftwareAgent   string `json:"software_agent"`
}

func (a *ProvenanceAdapter) Check(ctx context.Context, req evidence.Request) (*evidence.Evidence, error) {
	var resp provenanceResponse
	if err := postJSON(ctx, a.client, a.cfg, a.Name(), newCheckRequest(req), &resp); err != nil {
		return nil, err
	}

	// A signature cannot be valid without a manifest to sign.
	if resp.SignatureValid && !resp.ManifestPresent {
		return nil, services.Wrap(services.ErrInvalidEvidence, a.Name(), "check",
			"valid signature reported without a manifest", nil)
	}

	return &evidence.Evidence{
		Payload: evidence.ProvenancePayload{
			ManifestPresent: resp.ManifestPresent,
			SignatureValid:  resp.SignatureValid,
			Issuer:          resp.Issuer,
			IssuerTrusted:   resp.IssuerTrusted,
			SoftwareAgent:   resp.SoftwareAgent,
		},
		Provider: "provenance-authority",
	}, nil
}
