// Package workers runs the bounded per-class worker pools that drive jobs
// through their handlers: claim, process with heartbeats, ack or nack.
// Workers are stateless; all coordination happens through the store, which
// is what makes at-least-once delivery survive a crashed process.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"veracity/internal/config"
	"veracity/internal/logging"
	"veracity/internal/notify"
	"veracity/internal/queue"
	"veracity/internal/services"
)

// Handler processes one claimed job. A nil return acks the job; an error
// nacks it, with retryability decided by the error's classification.
type Handler func(ctx context.Context, job *queue.Job) error

type pool struct {
	class       queue.Class
	concurrency int
	handler     Handler
}

// Manager owns the worker pools and the stale-claim reclaimer.
type Manager struct {
	store  *queue.Store
	logger *slog.Logger
	pools  []pool

	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	hostname string
}

// NewManager builds the manager from configuration. Pools are registered
// with Register before Run.
func NewManager(store *queue.Store, cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "veracity"
	}
	return &Manager{
		store:             store,
		logger:            logger.With(logging.FieldComponent, "workers"),
		pollInterval:      time.Duration(cfg.Workers.PollIntervalSeconds) * time.Second,
		errorRetry:        time.Duration(cfg.Workers.ErrorRetryIntervalSeconds) * time.Second,
		heartbeatInterval: time.Duration(cfg.Workers.HeartbeatIntervalSeconds) * time.Second,
		heartbeatTimeout:  time.Duration(cfg.Workers.HeartbeatTimeoutSeconds) * time.Second,
		hostname:          hostname,
	}
}

// Register adds a pool for a queue class. Must happen before Run.
func (m *Manager) Register(class queue.Class, concurrency int, handler Handler) {
	if concurrency < 1 {
		concurrency = 1
	}
	m.pools = append(m.pools, pool{class: class, concurrency: concurrency, handler: handler})
}

// Run starts every pool plus the reclaimer and blocks until the context
// is cancelled and all workers have drained their in-flight jobs.
func (m *Manager) Run(ctx context.Context) error {
	if len(m.pools) == 0 {
		return errors.New("no worker pools registered")
	}

	var wg sync.WaitGroup
	for _, p := range m.pools {
		for i := 0; i < p.concurrency; i++ {
			workerID := fmt.Sprintf("%s/%s-%d", m.hostname, p.class, i)
			wg.Add(1)
			go func(p pool, workerID string) {
				defer wg.Done()
				m.runWorker(ctx, p, workerID)
			}(p, workerID)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.runReclaimer(ctx)
	}()

	m.logger.Info("worker pools started", "pools", len(m.pools))
	wg.Wait()
	m.logger.Info("worker pools stopped")
	return nil
}

func (m *Manager) runWorker(ctx context.Context, p pool, workerID string) {
	logger := m.logger.With(logging.FieldQueueClass, string(p.class), "worker", workerID)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := m.store.Claim(ctx, p.class, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim failed", logging.Error(err))
			if !sleepCtx(ctx, m.errorRetry) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, m.pollInterval) {
				return
			}
			continue
		}

		m.processJob(ctx, p, job, logger)
	}
}

func (m *Manager) processJob(ctx context.Context, p pool, job *queue.Job, logger *slog.Logger) {
	jobCtx := services.WithQueueClass(ctx, string(p.class))
	jobCtx = services.WithJobID(jobCtx, job.ID)
	logger = logger.With(logging.FieldJobID, job.ID)

	logger.Info("job claimed", "attempt", job.Attempts, "priority", string(job.Priority))

	stopHeartbeat := m.startHeartbeat(jobCtx, job.ID)
	err := runHandler(jobCtx, p.handler, job)
	stopHeartbeat()

	if err == nil {
		if ackErr := m.store.Ack(jobCtx, job.ID); ackErr != nil {
			logger.Error("ack failed", logging.Error(ackErr))
		} else {
			logger.Info("job completed")
		}
		return
	}

	retryable := services.Retryable(err)
	status, nackErr := m.store.Nack(context.WithoutCancel(jobCtx), job.ID, retryable, err.Error())
	if nackErr != nil {
		logger.Error("nack failed", logging.Error(nackErr))
		return
	}

	if status == queue.StatusFailed {
		logger.Error("job failed permanently",
			logging.Error(err), logging.FieldErrorHint, "inspect with: veracity jobs show")
		m.notifyExhausted(context.WithoutCancel(jobCtx), p.class, job, err)
		return
	}
	logger.Warn("job nacked for retry", "attempt", job.Attempts, logging.Error(err))
}

// runHandler isolates handler panics so one poisoned job cannot take down
// the pool.
func runHandler(ctx context.Context, handler Handler, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "workers", "process",
				fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return handler(ctx, job)
}

// notifyExhausted emits the analysis-failed webhook for an analysis job
// whose retries are spent. Webhook jobs that themselves exhaust stay
// terminal; recursing would loop forever against a dead endpoint.
func (m *Manager) notifyExhausted(ctx context.Context, class queue.Class, job *queue.Job, cause error) {
	if class != queue.ClassAnalysis {
		return
	}
	event := notify.NewFailedEvent(job, cause.Error())
	payload, err := event.Encode()
	if err != nil {
		m.logger.Error("encode failure event", logging.FieldJobID, job.ID, logging.Error(err))
		return
	}
	if _, err := m.store.Enqueue(ctx, queue.NewJob{
		Class:       queue.ClassWebhook,
		OrgID:       job.OrgID,
		Priority:    queue.PriorityHigh,
		PayloadJSON: payload,
	}); err != nil {
		m.logger.Error("enqueue failure event", logging.FieldJobID, job.ID, logging.Error(err))
	}
}

func (m *Manager) startHeartbeat(ctx context.Context, jobID int64) func() {
	interval := m.heartbeatInterval
	if interval <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.store.UpdateHeartbeat(ctx, jobID); err != nil {
					m.logger.Warn("heartbeat failed", logging.FieldJobID, jobID, logging.Error(err))
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (m *Manager) runReclaimer(ctx context.Context) {
	if m.heartbeatTimeout <= 0 {
		return
	}
	interval := m.heartbeatInterval
	if interval <= 0 {
		interval = m.heartbeatTimeout / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-m.heartbeatTimeout)
			reclaimed, err := m.store.ReclaimStale(ctx, cutoff)
			if err != nil {
				m.logger.Error("reclaim stale jobs", logging.Error(err))
				continue
			}
			if reclaimed > 0 {
				m.logger.Warn("reclaimed stale jobs", "count", reclaimed)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
