// Package worker implements the single background loop that dispatches
// queued runs, expires and deletes finished ones, drops abandoned
// definitions, sweeps zombie cache directories, and prunes old
// statistics.
package worker

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/config"
	"github.com/metakeggweb/mekeweserver/internal/filelayout"
	"github.com/metakeggweb/mekeweserver/internal/metrics"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/statemanager"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

// Engine is the subset of the engine.Adapter surface the worker needs;
// kept narrow so tests can supply a stub without building a real
// analysis pipeline.
type Engine interface {
	Execute(ctx context.Context, rec *model.RunRecord) error
}

// Worker runs the maintenance tick loop described by the component's
// contract: one goroutine, one tick at a time, crash-isolated with a
// restart budget persisted in the store.
type Worker struct {
	sm      *statemanager.StateManager
	store   store.Store
	engine  Engine
	cfg     config.Config
	log     *log.Logger
	metrics *metrics.Metrics
}

func New(sm *statemanager.StateManager, st store.Store, eng Engine, cfg config.Config, logger *log.Logger, m *metrics.Metrics) *Worker {
	return &Worker{sm: sm, store: st, engine: eng, cfg: cfg, log: logger, metrics: m}
}

// Reconcile marks any record left in state=running from a previous
// process as failed; call once at startup before Run.
func (w *Worker) Reconcile(ctx context.Context) error {
	n, err := w.sm.ReconcileOrphanedRunning(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Printf("reconciled %d orphaned running record(s) as failed", n)
	}
	return nil
}

// Run loops until ctx is cancelled, sleeping TickPauseSeconds between
// ticks. A tick's exceptions are tolerated up to
// RestartBackgroundWorkerOnExceptionNTimes consecutive failures; past
// that budget Run returns the triggering error so an external
// supervisor can restart the process.
func (w *Worker) Run(ctx context.Context) error {
	interval := time.Duration(w.cfg.TickPauseSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				if terminal := w.recordException(ctx, err); terminal {
					return err
				}
			}
		}
	}
}

func (w *Worker) recordException(ctx context.Context, tickErr error) (terminal bool) {
	count, err := w.store.CounterIncr(ctx, store.KeyWorkerExceptionCount)
	if err != nil {
		w.log.Printf("tick failed and exception counter unavailable: %v (original: %v)", err, tickErr)
		return true
	}
	if w.metrics != nil {
		w.metrics.WorkerExceptions.Inc()
	}
	w.log.Printf("tick failed (%d/%d): %v", count, w.cfg.RestartBackgroundWorkerOnExceptionNTimes, tickErr)
	return int(count) > w.cfg.RestartBackgroundWorkerOnExceptionNTimes
}

func (w *Worker) tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := w.cleanZombieFiles(ctx); err != nil {
		return err
	}
	if err := w.processNextQueued(ctx); err != nil {
		return err
	}
	if err := w.processNextExpiring(ctx); err != nil {
		return err
	}
	if err := w.processNextDeletable(ctx); err != nil {
		return err
	}
	if err := w.processNextAbandoned(ctx); err != nil {
		return err
	}
	if _, err := w.sm.RemoveExpiredStatisticPoints(ctx); err != nil {
		return err
	}

	return w.store.CounterSet(ctx, store.KeyWorkerExceptionCount, 0)
}

func (w *Worker) cleanZombieFiles(ctx context.Context) error {
	entries, err := filelayout.ZombieCandidates(w.cfg.PipelineRunsCacheDir)
	if err != nil {
		return apperrors.FilesystemError(err)
	}
	if len(entries) == 0 {
		return nil
	}
	known, err := w.sm.GetAllPipelineRunDefinitions(ctx)
	if err != nil {
		return err
	}
	knownTickets := make(map[string]bool, len(known))
	for _, rec := range known {
		knownTickets[rec.Ticket.String()] = true
	}

	for _, e := range entries {
		name := e.Name()
		if _, perr := model.ParseTicket(name); perr != nil {
			w.log.Printf("zombie sweep: %q is not a ticket directory, leaving it alone", name)
			continue
		}
		if knownTickets[name] {
			continue
		}
		path := w.cfg.PipelineRunsCacheDir + string(os.PathSeparator) + name
		if err := os.RemoveAll(path); err != nil {
			return apperrors.FilesystemError(err)
		}
		if w.metrics != nil {
			w.metrics.ZombiesSweptTotal.Inc()
		}
		w.log.Printf("zombie sweep: removed orphaned directory %s", name)
	}
	return nil
}

func (w *Worker) processNextQueued(ctx context.Context) error {
	rec, err := w.sm.GetNextPipelineRunFromQueue(ctx, true)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if w.metrics != nil {
		w.metrics.QueueDepth.Dec()
	}
	if err := w.engine.Execute(ctx, rec); err != nil {
		return err
	}
	if err := w.sm.SetPipelineRunDefinition(ctx, rec); err != nil {
		return err
	}
	if _, err := w.sm.SetFinished(ctx, rec.Ticket); err != nil {
		return err
	}
	if w.metrics != nil {
		outcome := "success"
		if rec.Error != "" {
			outcome = "failed"
		}
		w.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	}
	return nil
}

func (w *Worker) processNextExpiring(ctx context.Context) error {
	rec, err := w.sm.GetNextPipelineThatIsExpired(ctx, false)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if _, err := w.sm.WipeRun(ctx, rec.Ticket); err != nil {
		return err
	}
	return nil
}

func (w *Worker) processNextDeletable(ctx context.Context) error {
	rec, err := w.sm.GetNextPipelineThatIsDeletable(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	return w.sm.DeletePipelineStatus(ctx, rec.Ticket)
}

func (w *Worker) processNextAbandoned(ctx context.Context) error {
	rec, err := w.sm.GetNextPipelineThatIsAbandoned(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	return w.sm.DeletePipelineStatus(ctx, rec.Ticket)
}
