package worker

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/config"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/statemanager"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

type stubEngine struct {
	executed []model.Ticket
	failWith string
}

func (s *stubEngine) Execute(ctx context.Context, rec *model.RunRecord) error {
	s.executed = append(s.executed, rec.Ticket)
	if s.failWith != "" {
		rec.Error = s.failWith
	} else {
		rec.PipelineOutputZipFileName = "output-metakegg-test.zip"
	}
	return nil
}

func newTestWorker(t *testing.T, eng Engine) (*Worker, *statemanager.StateManager) {
	t.Helper()
	cfg := config.Default()
	cfg.PipelineRunsCacheDir = t.TempDir()
	cfg.TickPauseSeconds = 1
	st := store.NewMemStore()
	sm := statemanager.New(st, cfg, log.New(os.Stderr, "test ", 0), nil)
	w := New(sm, st, eng, cfg, log.New(os.Stderr, "test ", 0), nil)
	return w, sm
}

func readyRun(t *testing.T, sm *statemanager.StateManager) model.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := sm.InitNewPipelineRun(ctx, model.PipelineParams{
		GlobalParams: map[string]any{
			"sheet_name_paths": "pathways",
			"sheet_name_genes": "gene_metrics",
			"genes_column":     "gene_symbol",
			"log2fc_column":    "logFC",
		},
		MethodSpecificParams: map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "in.xlsx", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	return ticket
}

func TestTickDispatchesQueuedRun(t *testing.T) {
	eng := &stubEngine{}
	w, sm := newTestWorker(t, eng)
	ctx := context.Background()
	ticket := readyRun(t, sm)

	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(eng.executed) != 1 || eng.executed[0] != ticket {
		t.Fatalf("engine.Execute called with %v, want [%s]", eng.executed, ticket)
	}
	rec, err := sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != model.StateSuccess {
		t.Fatalf("state = %s, want success", rec.State)
	}
}

func TestTickMarksFailedRun(t *testing.T) {
	eng := &stubEngine{failWith: "boom"}
	w, sm := newTestWorker(t, eng)
	ctx := context.Background()
	ticket := readyRun(t, sm)

	if err := w.tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	rec, err := sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != model.StateFailed || rec.Error != "boom" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestZombieSweepRemovesUnknownDirectory(t *testing.T) {
	w, _ := newTestWorker(t, &stubEngine{})
	ctx := context.Background()

	ghost := model.NewTicket()
	ghostDir := w.cfg.PipelineRunsCacheDir + string(os.PathSeparator) + ghost.String()
	if err := os.MkdirAll(ghostDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := w.cleanZombieFiles(ctx); err != nil {
		t.Fatalf("cleanZombieFiles: %v", err)
	}
	if _, err := os.Stat(ghostDir); !os.IsNotExist(err) {
		t.Fatalf("expected ghost directory removed, stat err = %v", err)
	}
}

func TestReconcileMarksOrphanedRunningAsFailed(t *testing.T) {
	w, sm := newTestWorker(t, &stubEngine{})
	ctx := context.Background()
	ticket := readyRun(t, sm)
	if _, err := sm.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatal(err)
	}

	if err := w.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec, err := sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != model.StateFailed {
		t.Fatalf("state = %s, want failed", rec.State)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w, _ := newTestWorker(t, &stubEngine{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	w.cfg.TickPauseSeconds = 1

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
