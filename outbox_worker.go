package provisioning

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron"
)

const outboxWorkerName = "OutboxCronWorker"

// DefaultOutboxSchedule is the cron spec used when none is configured
const DefaultOutboxSchedule = "@every 30s"

// OutboxWorker periodically delivers pending and stale outbox messages
type OutboxWorker struct {
	deliverer *OutboxDeliverer
	cron      *cron.Cron
	schedule  string
	timeout   time.Duration
	logger    Logger

	mu      sync.Mutex
	running bool
}

// NewOutboxWorker builds a worker around deliverer. An empty schedule uses
// DefaultOutboxSchedule.
func NewOutboxWorker(deliverer *OutboxDeliverer, schedule string) *OutboxWorker {
	if schedule == "" {
		schedule = DefaultOutboxSchedule
	}
	return &OutboxWorker{
		deliverer: deliverer,
		cron:      cron.New(),
		schedule:  schedule,
		timeout:   time.Minute,
		logger:    defLogger{name: "outbox"},
	}
}

func (w *OutboxWorker) WithLogger(logger Logger) *OutboxWorker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// WithTimeout bounds a single delivery sweep
func (w *OutboxWorker) WithTimeout(d time.Duration) *OutboxWorker {
	if d > 0 {
		w.timeout = d
	}
	return w
}

func (w *OutboxWorker) Name() string {
	return outboxWorkerName
}

// Start schedules the sweep and returns immediately
func (w *OutboxWorker) Start() error {
	if err := w.cron.AddFunc(w.schedule, w.tick); err != nil {
		w.logger.Error("could not schedule outbox worker", "worker", outboxWorkerName, "schedule", w.schedule, "error", err)
		return err
	}
	w.cron.Start()
	w.logger.Info("outbox worker started", "worker", outboxWorkerName, "schedule", w.schedule)
	return nil
}

func (w *OutboxWorker) Stop() {
	w.cron.Stop()
	w.logger.Info("outbox worker stopped", "worker", outboxWorkerName)
}

func (w *OutboxWorker) tick() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Debug("outbox sweep still running, skipping tick", "worker", outboxWorkerName)
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.Error("outbox sweep failed", "worker", outboxWorkerName, "error", err)
	}
}

// RunOnce performs a single delivery sweep
func (w *OutboxWorker) RunOnce(ctx context.Context) (int, error) {
	sent, err := w.deliverer.DeliverPending(ctx)
	if sent > 0 {
		w.logger.Info("outbox messages delivered", "worker", outboxWorkerName, "sent", sent)
	}
	return sent, err
}
