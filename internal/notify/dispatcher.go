package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"veracity/internal/config"
	"veracity/internal/logging"
	"veracity/internal/queue"
	"veracity/internal/retry"
	"veracity/internal/services"
)

// Dispatcher POSTs events to every endpoint an organization registered.
type Dispatcher struct {
	store   *queue.Store
	client  *http.Client
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher builds the webhook dispatcher from configuration.
func NewDispatcher(store *queue.Store, cfg *config.Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store: store,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		policy: retry.Policy{
			Attempts:  cfg.Notifications.MaxAttempts,
			BaseDelay: time.Duration(cfg.Notifications.BackoffBaseSeconds) * time.Second,
			MaxDelay:  time.Minute,
		},
		timeout: time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second,
		logger:  logger.With(logging.FieldComponent, "notify"),
	}
}

// Dispatch delivers the encoded event from a webhook job to every endpoint
// registered for the organization. Each endpoint gets its own retry
// budget; one dead endpoint does not starve the others. Zero registered
// endpoints is a successful no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, job *queue.Job) error {
	event, err := DecodeEvent(job.PayloadJSON)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "notify", "dispatch", "unreadable webhook payload", err)
	}

	endpoints, err := d.store.EndpointsForOrg(ctx, job.OrgID)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		d.logger.Debug("no endpoints registered",
			logging.FieldJobID, event.JobID, "org_id", job.OrgID)
		return nil
	}

	body, err := event.Encode()
	if err != nil {
		return err
	}

	var failures []error
	for _, endpoint := range endpoints {
		if err := d.deliver(ctx, endpoint, []byte(body)); err != nil {
			d.logger.Warn("webhook delivery exhausted",
				logging.FieldJobID, event.JobID,
				"url", endpoint.URL,
				logging.FieldEventType, event.Type,
				logging.Error(err))
			failures = append(failures, fmt.Errorf("endpoint %s: %w", endpoint.URL, err))
			continue
		}
		d.logger.Info("webhook delivered",
			logging.FieldJobID, event.JobID,
			"url", endpoint.URL,
			logging.FieldEventType, event.Type)
	}
	if len(failures) > 0 {
		return services.Wrap(services.ErrTransient, "notify", "dispatch",
			fmt.Sprintf("%d of %d deliveries failed", len(failures), len(endpoints)), errors.Join(failures...))
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, endpoint queue.Endpoint, body []byte) error {
	return retry.Do(ctx, d.policy, func(ctx context.Context) error {
		reqCtx := ctx
		if d.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if endpoint.Secret != "" {
			req.Header.Set("X-Veracity-Signature", sign(endpoint.Secret, body))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("endpoint returned %d", resp.StatusCode)
		default:
			// A 4xx means the receiver rejected the payload; retrying the
			// identical body cannot succeed.
			return retry.Permanent(fmt.Errorf("endpoint rejected delivery with %d", resp.StatusCode))
		}
	})
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
