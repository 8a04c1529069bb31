package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/retry"
	"veracity/internal/services"
)

// transientPolicy bounds in-call retries against a flaky upstream. The
// adapter's own deadline still caps total time, so these stay short.
var transientPolicy = retry.Policy{
	Attempts:  3,
	BaseDelay: 200 * time.Millisecond,
	MaxDelay:  2 * time.Second,
}

const maxResponseBytes = 1 << 20

// checkRequest is the common request body sent to every HTTP provider.
type checkRequest struct {
	ArtifactRef string `json:"artifact_ref"`
	OrgID       string `json:"org_id"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	Hash        string `json:"perceptual_hash,omitempty"`
}

func newCheckRequest(req evidence.Request) checkRequest {
	return checkRequest{
		ArtifactRef: req.ArtifactRef,
		OrgID:       req.OrgID,
		Width:       req.Attrs.Width,
		Height:      req.Attrs.Height,
		MimeType:    req.Attrs.MimeType,
		Hash:        req.Attrs.PerceptualHash,
	}
}

// postJSON POSTs a JSON body to the provider and decodes the JSON reply
// into out. Network errors, 429s, and 5xx replies are retried under the
// transient policy; other HTTP errors and undecodable replies fail
// immediately.
func postJSON(ctx context.Context, client *http.Client, provider config.Provider, name string, body, out any) error {
	if provider.BaseURL == "" {
		return services.Wrap(services.ErrConfiguration, name, "post", "base_url not configured", nil)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return services.Wrap(services.ErrInvalidEvidence, name, "post", "encode request", err)
	}

	return retry.Do(ctx, transientPolicy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL, bytes.NewReader(encoded))
		if err != nil {
			return retry.Permanent(services.Wrap(services.ErrConfiguration, name, "post", "build request", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if provider.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+provider.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return services.Wrap(services.ErrAdapterUnavailable, name, "post", "request failed", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return services.Wrap(services.ErrAdapterUnavailable, name, "post", "read response", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return services.Wrap(services.ErrAdapterUnavailable, name, "post",
				fmt.Sprintf("provider returned %d", resp.StatusCode), nil)
		default:
			return retry.Permanent(services.Wrap(services.ErrInvalidEvidence, name, "post",
				fmt.Sprintf("provider returned %d", resp.StatusCode), nil))
		}

		if err := json.Unmarshal(payload, out); err != nil {
			return retry.Permanent(services.Wrap(services.ErrInvalidEvidence, name, "post", "decode response", err))
		}
		return nil
	})
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
