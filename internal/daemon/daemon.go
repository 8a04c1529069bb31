package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"veracity/internal/api"
	"veracity/internal/artifacts"
	"veracity/internal/config"
	"veracity/internal/evidence"
	"veracity/internal/logging"
	"veracity/internal/notify"
	"veracity/internal/pipeline"
	"veracity/internal/providers"
	"veracity/internal/queue"
	"veracity/internal/review"
	"veracity/internal/workers"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *queue.Store

	manager    *workers.Manager
	jobService *api.JobService
	apiServer  *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	JobCounts    map[queue.Status]int
	OpenTickets  int
	Database     queue.DatabaseHealth
}

// New constructs a daemon with all components wired: the cheap and
// expensive adapter sets, the coordinator, review router, dispatcher, and
// one worker pool per queue class.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	fsStore, err := artifacts.NewFSStore(cfg.Paths.StagingDir)
	if err != nil {
		return nil, err
	}
	reports := artifacts.NewReportWriter(fsStore)

	router := review.NewRouter(store, cfg, logger)

	cheap := []evidence.Adapter{
		providers.NewProvenanceAdapter(cfg.Adapters.Provenance),
		providers.NewPerceptualAdapter(store, cfg.CheapStageTimeout()),
	}
	expensive := []evidence.Adapter{
		providers.NewManipulationAdapter(cfg.Adapters.Manipulation),
		providers.NewWebPresenceAdapter(cfg.Adapters.WebPresence, cfg.Adapters.WebPresenceRatePerMinute),
		providers.NewIdentityAdapter(cfg.Adapters.Identity),
	}

	coordinator := pipeline.New(store, cheap, expensive, reports, router, cfg, logger)
	dispatcher := notify.NewDispatcher(store, cfg, logger)

	manager := workers.NewManager(store, cfg, logger)
	manager.Register(queue.ClassAnalysis, cfg.Workers.AnalysisConcurrency, coordinator.Process)
	manager.Register(queue.ClassWebhook, cfg.Workers.WebhookConcurrency, dispatcher.Dispatch)
	manager.Register(queue.ClassBilling, cfg.Workers.BillingConcurrency, billingHandler(store, logger))

	lockPath := filepath.Join(cfg.Paths.LogDir, "veracityd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		manager:    manager,
		jobService: api.NewJobService(store, router),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = server
	return d, nil
}

// Start acquires the daemon lock and launches the worker pools and API
// server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another veracity daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		if err := d.manager.Run(runCtx); err != nil {
			d.logger.Error("worker manager stopped", logging.Error(err))
		}
	}()

	if d.apiServer != nil {
		if err := d.apiServer.start(runCtx); err != nil {
			cancel()
			<-d.done
			_ = d.lock.Unlock()
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("veracity daemon started", "lock", d.lockPath)
	return nil
}

// Stop shuts down background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		select {
		case <-d.done:
		case <-time.After(30 * time.Second):
			d.logger.Warn("worker shutdown timed out")
		}
		d.done = nil
	}
	d.apiServer.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("veracity daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Database:     d.store.CheckDatabaseHealth(ctx),
	}
	if counts, err := d.store.Stats(ctx); err == nil {
		status.JobCounts = counts
	}
	if tickets, err := d.store.OpenTickets(ctx); err == nil {
		status.OpenTickets = len(tickets)
	}
	return status
}

// billingHandler records usage charges carried by billing-class jobs.
func billingHandler(store *queue.Store, logger *slog.Logger) workers.Handler {
	logger = logging.NewComponentLogger(logger, "billing")
	return func(ctx context.Context, job *queue.Job) error {
		charge, err := pipeline.DecodeBillingCharge(job.PayloadJSON)
		if err != nil {
			return err
		}
		if err := store.AddBillingEvent(ctx, job.OrgID, charge.AnalysisJobID, charge.AmountCents, charge.Description); err != nil {
			return err
		}
		logger.Info("billing event recorded",
			logging.FieldJobID, charge.AnalysisJobID,
			"org_id", job.OrgID,
			"amount_cents", charge.AmountCents)
		return nil
	}
}
