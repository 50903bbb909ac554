// Package statemanager implements every mutation of run records, the
// dispatch queue, file attachment, and statistics. It is the only
// package that reads or writes the run-record, queue and statistics
// keys of the store.Store; callers (HTTP handlers, the worker) see
// those only as *model.RunRecord and apperrors.Error values. The worker
// keeps its own exception counter key in the store directly.
package statemanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/config"
	"github.com/metakeggweb/mekeweserver/internal/filelayout"
	"github.com/metakeggweb/mekeweserver/internal/metrics"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/paramschema"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

// Clock is injected so tests can control "now" deterministically instead
// of racing the wall clock.
type Clock func() time.Time

// StateManager is the single owner of every RunRecord mutation.
type StateManager struct {
	store    store.Store
	cacheDir string
	cfg      config.Config
	log      *log.Logger
	metrics  *metrics.Metrics
	now      Clock
}

// New constructs a StateManager. metrics may be nil (tests often pass nil).
func New(st store.Store, cfg config.Config, logger *log.Logger, m *metrics.Metrics) *StateManager {
	return &StateManager{
		store:    st,
		cacheDir: cfg.PipelineRunsCacheDir,
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock; used by tests.
func (sm *StateManager) WithClock(c Clock) *StateManager {
	sm.now = c
	return sm
}

func (sm *StateManager) layout(ticket model.Ticket) filelayout.Layout {
	return filelayout.New(sm.cacheDir, ticket)
}

// InitNewPipelineRun creates a RunRecord with state=initialized.
func (sm *StateManager) InitNewPipelineRun(ctx context.Context, params model.PipelineParams) (model.Ticket, error) {
	if params.GlobalParams == nil {
		params.GlobalParams = map[string]any{}
	}
	if params.MethodSpecificParams == nil {
		params.MethodSpecificParams = map[string]any{}
	}
	ticket := model.NewTicket()
	rec := model.NewRunRecord(ticket, params, sm.now())
	if err := sm.persist(ctx, rec); err != nil {
		return "", err
	}
	return ticket, nil
}

// GetPipelineRunDefinition loads a record and, if it is queued, populates
// PlaceInQueue from the live dispatch queue, counted from the head
// (1 = next to be dispatched).
func (sm *StateManager) GetPipelineRunDefinition(ctx context.Context, ticket model.Ticket) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if rec.State == model.StateQueued {
		pos, found, err := sm.store.ListPosition(ctx, store.KeyPipelineQueue, ticket.String())
		if err != nil {
			return nil, apperrors.StoreUnavailable(err)
		}
		if found {
			// The queue is pushed on the left and popped on the right, so
			// the head is the rightmost element.
			length, lerr := sm.store.ListLength(ctx, store.KeyPipelineQueue)
			if lerr != nil {
				return nil, apperrors.StoreUnavailable(lerr)
			}
			place := int(length) - pos
			rec.PlaceInQueue = &place
		}
	}
	return rec, nil
}

// SetPipelineRunDefinition overwrites the stored record verbatim.
func (sm *StateManager) SetPipelineRunDefinition(ctx context.Context, rec *model.RunRecord) error {
	return sm.persist(ctx, rec)
}

// GetAllPipelineRunDefinitions returns every record currently in the store
// (used by the zombie sweep and, in tests, to inspect global state).
func (sm *StateManager) GetAllPipelineRunDefinitions(ctx context.Context) ([]*model.RunRecord, error) {
	all, err := sm.store.HashGetAll(ctx, store.KeyPipelineStates)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	out := make([]*model.RunRecord, 0, len(all))
	for _, raw := range all {
		var rec model.RunRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode run record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (sm *StateManager) load(ctx context.Context, ticket model.Ticket) (*model.RunRecord, error) {
	raw, found, err := sm.store.HashGet(ctx, store.KeyPipelineStates, ticket.String())
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if !found {
		return nil, apperrors.RecordNotFound(ticket.String())
	}
	var rec model.RunRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode run record %s: %w", ticket, err)
	}
	return &rec, nil
}

func (sm *StateManager) persist(ctx context.Context, rec *model.RunRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode run record %s: %w", rec.Ticket, err)
	}
	if err := sm.store.HashSet(ctx, store.KeyPipelineStates, rec.Ticket.String(), string(raw)); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

// UpdateParams merges supplied non-file fields into the record's global
// and method-specific parameter maps. Only permitted outside
// {queued, running, expired}.
func (sm *StateManager) UpdateParams(ctx context.Context, ticket model.Ticket, globalUpdates, methodSpecificUpdates map[string]any) (*model.RunRecord, error) {
	rec, err := sm.load(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if rec.State == model.StateQueued || rec.State == model.StateRunning || rec.State == model.StateExpired {
		return nil, apperrors.BadState("cannot update parameters while run is %s", rec.State)
	}

	method := rec.PipelineAnalysesMethod
	v, verr := paramschema.BuildValidator(method, paramschema.WhichNonFile, true)
	if verr != nil {
		return nil, fmt.Errorf("build validator: %w", verr)
	}
	merged := map[string]any{}
	for k, val := range rec.PipelineParams.GlobalParams {
		merged[k] = val
	}
	for k, val := range globalUpdates {
		merged[k] = val
	}
	if err := v.Validate(merged); err != nil {
		return nil, err
	}

	for k, val := range globalUpdates {
		rec.PipelineParams.GlobalParams[k] = val
	}
	for k, val := range methodSpecificUpdates {
		rec.PipelineParams.MethodSpecificParams[k] = val
	}

	if err := sm.persist(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeletePipelineStatus hash-deletes the record.
func (sm *StateManager) DeletePipelineStatus(ctx context.Context, ticket model.Ticket) error {
	if err := sm.store.HashDelete(ctx, store.KeyPipelineStates, ticket.String()); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}
