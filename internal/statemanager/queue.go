package statemanager

import (
	"context"
	"os"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/paramschema"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

// Commit validates method and the record's current parameters, resets
// any stale terminal-state fields, and pushes the ticket onto the
// dispatch queue. Returns the queued record with PlaceInQueue populated.
func (sm *StateManager) Commit(ctx context.Context, ticket model.Ticket, method string) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if _, ok := model.FindAnalysisMethod(method); !ok {
		return nil, apperrors.BadParameter("unknown analysis method %q", method)
	}
	if rec.State == model.StateQueued || rec.State == model.StateRunning {
		return nil, apperrors.BadState("cannot commit run while it is %s", rec.State)
	}

	v, verr := paramschema.BuildValidator(method, paramschema.WhichAll, false)
	if verr != nil {
		return nil, verr
	}
	merged := mergedParams(rec)
	if verr := v.Validate(merged); verr != nil {
		return nil, verr
	}

	if rec.PipelineOutputZipFileName != "" {
		zipPath := sm.layout(ticket).OutputZipPath(rec.PipelineOutputZipFileName)
		if rerr := os.Remove(zipPath); rerr != nil && !os.IsNotExist(rerr) {
			return nil, apperrors.FilesystemError(rerr)
		}
	}

	now := sm.now()
	rec.Error = ""
	rec.ErrorTraceback = ""
	rec.OutputLog = ""
	rec.FinishedAt = nil
	rec.PipelineOutputZipFileName = ""
	rec.PipelineAnalysesMethod = method
	rec.State = model.StateQueued
	rec.QueuedAt = &now

	length, lerr := sm.store.ListLength(ctx, store.KeyPipelineQueue)
	if lerr != nil {
		return nil, apperrors.StoreUnavailable(lerr)
	}
	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	if err := sm.store.ListPushLeft(ctx, store.KeyPipelineQueue, ticket.String()); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	place := int(length) + 1
	rec.PlaceInQueue = &place
	return rec, nil
}

func mergedParams(rec *model.RunRecord) map[string]any {
	merged := map[string]any{}
	for k, v := range rec.PipelineParams.GlobalParams {
		merged[k] = v
	}
	for k, v := range rec.PipelineParams.MethodSpecificParams {
		merged[k] = v
	}
	for param, names := range rec.PipelineInputFileNames {
		if len(names) > 0 {
			merged[param] = names
		}
	}
	return merged
}

// DeleteRun wipes a run's on-disk files (if any) and removes its
// record outright; unlike WipeRun it does not leave an expired
// tombstone behind. Refused while the run is queued or running.
func (sm *StateManager) DeleteRun(ctx context.Context, ticket model.Ticket) error {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return err
	}
	if rec.State == model.StateQueued || rec.State == model.StateRunning {
		return apperrors.BadState("cannot delete run while it is %s", rec.State)
	}
	if err := os.RemoveAll(sm.layout(ticket).BaseDir()); err != nil {
		return apperrors.FilesystemError(err)
	}
	return sm.DeletePipelineStatus(ctx, ticket)
}

// GetNextPipelineRunFromQueue pops the next ticket off the dispatch
// queue (FIFO) and, unless setRunning is false, transitions it to
// running. Returns nil, nil when the queue is empty.
func (sm *StateManager) GetNextPipelineRunFromQueue(ctx context.Context, setRunning bool) (*model.RunRecord, error) {
	ticketStr, found, err := sm.store.ListPopRight(ctx, store.KeyPipelineQueue)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if !found {
		return nil, nil
	}
	ticket, perr := model.ParseTicket(ticketStr)
	if perr != nil {
		return nil, perr
	}
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if setRunning {
		now := sm.now()
		rec.State = model.StateRunning
		rec.StartedAt = &now
		if err := sm.persist(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// SetRunning transitions a queued record to running without touching
// the dispatch queue; used when the caller already popped the ticket.
func (sm *StateManager) SetRunning(ctx context.Context, ticket model.Ticket) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	rec.State = model.StateRunning
	rec.StartedAt = &now
	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetFinished marks a running record success or failed depending on
// whether Error is already set on it, stamps FinishedAt, and appends a
// StatisticPoint.
func (sm *StateManager) SetFinished(ctx context.Context, ticket model.Ticket) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	rec.FinishedAt = &now
	if rec.Error != "" {
		rec.State = model.StateFailed
	} else {
		rec.State = model.StateSuccess
	}
	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	if err := sm.appendStatisticPoint(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// WipeRun deletes the ticket's on-disk directory and transitions the
// record to expired, clearing file-name and output-zip bookkeeping.
func (sm *StateManager) WipeRun(ctx context.Context, ticket model.Ticket) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if err := os.RemoveAll(sm.layout(ticket).BaseDir()); err != nil {
		return nil, apperrors.FilesystemError(err)
	}
	rec.State = model.StateExpired
	rec.PipelineInputFileNames = map[string][]string{}
	rec.PipelineOutputZipFileName = ""
	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetNextPipelineThatIsExpired returns the first finished record whose
// expiry window has elapsed and is not already expired. If
// setStatusExpired, it is flipped to expired in-place (file deletion is
// the worker's job, via WipeRun).
func (sm *StateManager) GetNextPipelineThatIsExpired(ctx context.Context, setStatusExpired bool) (*model.RunRecord, error) {
	all, err := sm.GetAllPipelineRunDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	window := minutes(sm.cfg.PipelineResultExpiredAfterMin)
	for _, rec := range all {
		if rec.State == model.StateExpired || rec.FinishedAt == nil {
			continue
		}
		if rec.FinishedAt.Add(window).Before(now) {
			if setStatusExpired {
				rec.State = model.StateExpired
				if err := sm.persist(ctx, rec); err != nil {
					return nil, err
				}
			}
			return rec, nil
		}
	}
	return nil, nil
}

// GetNextPipelineThatIsDeletable returns the first expired record whose
// additional deletion grace period has elapsed.
func (sm *StateManager) GetNextPipelineThatIsDeletable(ctx context.Context) (*model.RunRecord, error) {
	all, err := sm.GetAllPipelineRunDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	window := minutes(sm.cfg.PipelineResultExpiredAfterMin + sm.cfg.PipelineResultDeletedAfterMin)
	for _, rec := range all {
		if rec.State != model.StateExpired || rec.FinishedAt == nil {
			continue
		}
		if rec.FinishedAt.Add(window).Before(now) {
			return rec, nil
		}
	}
	return nil, nil
}

// GetNextPipelineThatIsAbandoned returns the first initialized record
// old enough to be dropped without ever having been committed.
func (sm *StateManager) GetNextPipelineThatIsAbandoned(ctx context.Context) (*model.RunRecord, error) {
	all, err := sm.GetAllPipelineRunDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	window := minutes(sm.cfg.PipelineAbandonedDefinitionDeletedAfterMin)
	for _, rec := range all {
		if rec.State != model.StateInitialized {
			continue
		}
		if rec.CreatedAt.Add(window).Before(now) {
			return rec, nil
		}
	}
	return nil, nil
}

// ReconcileOrphanedRunning marks every record found in state=running at
// startup as failed; a worker restart means no goroutine is actually
// executing it any longer.
func (sm *StateManager) ReconcileOrphanedRunning(ctx context.Context) (int, error) {
	all, err := sm.GetAllPipelineRunDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	now := sm.now()
	for _, rec := range all {
		if rec.State != model.StateRunning {
			continue
		}
		rec.State = model.StateFailed
		rec.Error = "worker restarted"
		rec.FinishedAt = &now
		if err := sm.persist(ctx, rec); err != nil {
			return n, err
		}
		if err := sm.appendStatisticPoint(ctx, rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
