package statemanager

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/config"
	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

func newTestManager(t *testing.T) *StateManager {
	t.Helper()
	cfg := config.Default()
	cfg.PipelineRunsCacheDir = t.TempDir()
	sm := New(store.NewMemStore(), cfg, log.New(os.Stderr, "test ", 0), nil)
	return sm.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
}

func fullParams() model.PipelineParams {
	return model.PipelineParams{
		GlobalParams: map[string]any{
			"sheet_name_paths": "pathways",
			"sheet_name_genes": "gene_metrics",
			"genes_column":     "gene_symbol",
			"log2fc_column":    "logFC",
		},
		MethodSpecificParams: map[string]any{},
	}
}

func initReadyRun(t *testing.T, sm *StateManager) model.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := sm.InitNewPipelineRun(ctx, fullParams())
	if err != nil {
		t.Fatalf("InitNewPipelineRun: %v", err)
	}
	if _, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "input.xlsx", bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("AttachInputFile: %v", err)
	}
	return ticket
}

func TestInitAndGetDefinition(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	ticket, err := sm.InitNewPipelineRun(ctx, fullParams())
	if err != nil {
		t.Fatalf("InitNewPipelineRun: %v", err)
	}

	rec, err := sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatalf("GetPipelineRunDefinition: %v", err)
	}
	if rec.State != model.StateInitialized {
		t.Fatalf("state = %s, want initialized", rec.State)
	}
	if rec.PipelineParams.GlobalParams["genes_column"] != "gene_symbol" {
		t.Fatalf("unexpected params: %+v", rec.PipelineParams.GlobalParams)
	}
}

func TestGetMissingDefinitionReturnsNotFound(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	_, err := sm.GetPipelineRunDefinition(ctx, model.Ticket("deadbeefdeadbeefdeadbeefdeadbeef"))
	if err == nil {
		t.Fatal("expected error for missing ticket")
	}
}

func TestUpdateParamsRejectedWhileQueued(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_, err := sm.UpdateParams(ctx, ticket, map[string]any{"count_threshold": 5}, nil)
	if err == nil {
		t.Fatal("expected BadState while queued")
	}
}

func TestUpdateParamsMergesFields(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())
	rec, err := sm.UpdateParams(ctx, ticket, map[string]any{"count_threshold": 7}, nil)
	if err != nil {
		t.Fatalf("UpdateParams: %v", err)
	}
	v, ok := rec.PipelineParams.GlobalParams["count_threshold"]
	if !ok {
		t.Fatal("count_threshold missing after update")
	}
	if n, ok := v.(int); !ok || n != 7 {
		t.Fatalf("count_threshold = %#v, want 7", v)
	}
}

func TestAttachAndRemoveInputFile(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())

	rec, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "genes (1).xlsx", bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("AttachInputFile: %v", err)
	}
	names := rec.PipelineInputFileNames["input_file_path"]
	if len(names) != 1 || names[0] != "genes1.xlsx" {
		t.Fatalf("unexpected file names: %v", names)
	}
	path := filepath.Join(sm.cacheDir, ticket.String(), "input", "input_file_path", "genes1.xlsx")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	rec, err = sm.RemoveInputFile(ctx, ticket, "input_file_path", "genes1.xlsx")
	if err != nil {
		t.Fatalf("RemoveInputFile: %v", err)
	}
	if len(rec.PipelineInputFileNames["input_file_path"]) != 0 {
		t.Fatalf("expected no files left, got %v", rec.PipelineInputFileNames["input_file_path"])
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed from disk, stat err = %v", err)
	}
}

func TestAttachRejectsUnknownParam(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())
	if _, err := sm.AttachInputFile(ctx, ticket, "not_a_param", "a.txt", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected BadParameter for unknown param")
	}
}

func TestAttachFileTwiceAppendsToList(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())

	if _, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "a.xlsx", bytes.NewReader([]byte("1"))); err != nil {
		t.Fatal(err)
	}
	rec, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "b.xlsx", bytes.NewReader([]byte("2")))
	if err != nil {
		t.Fatal(err)
	}
	names := rec.PipelineInputFileNames["input_file_path"]
	if len(names) != 2 || names[0] != "a.xlsx" || names[1] != "b.xlsx" {
		t.Fatalf("expected both files kept for a list param, got %v", names)
	}
}

func TestAttachAndRemoveAllowedOnFailedRun(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatal(err)
	}
	rec, err := sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatal(err)
	}
	rec.Error = "boom"
	if err := sm.SetPipelineRunDefinition(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.SetFinished(ctx, ticket); err != nil {
		t.Fatal(err)
	}
	rec, err = sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != model.StateFailed {
		t.Fatalf("state = %s, want failed", rec.State)
	}

	// Replace the bad input file now that the run has failed, and
	// re-commit: a failed run's files must remain editable.
	if _, err := sm.RemoveInputFile(ctx, ticket, "input_file_path", "input.xlsx"); err != nil {
		t.Fatalf("RemoveInputFile on failed run: %v", err)
	}
	if _, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "fixed.xlsx", bytes.NewReader([]byte("good data"))); err != nil {
		t.Fatalf("AttachInputFile on failed run: %v", err)
	}
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatalf("re-Commit after fixing input: %v", err)
	}
}

func TestAttachRejectedWhileQueued(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "x.xlsx", bytes.NewReader([]byte("x"))); err == nil {
		t.Fatal("expected BadState while queued")
	}
}

func TestRemoveInputFileMissingIsNotAnError(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)

	rec, err := sm.RemoveInputFile(ctx, ticket, "input_file_path", "never-uploaded.xlsx")
	if err != nil {
		t.Fatalf("RemoveInputFile of missing file should not error, got %v", err)
	}
	if len(rec.PipelineInputFileNames["input_file_path"]) != 1 {
		t.Fatalf("expected existing file untouched, got %v", rec.PipelineInputFileNames["input_file_path"])
	}
}

func TestAttachInputFileRejectsOversizedUpload(t *testing.T) {
	sm := newTestManager(t)
	limit := int64(4)
	sm.cfg.MaxFileSizeUploadLimitBytes = &limit
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())

	_, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "big.xlsx", bytes.NewReader([]byte("too many bytes")))
	if err == nil {
		t.Fatal("expected UploadTooLarge")
	}
	path := filepath.Join(sm.cacheDir, ticket.String(), "input", "input_file_path", "big.xlsx")
	if _, serr := os.Stat(path); !os.IsNotExist(serr) {
		t.Fatalf("expected no file left on disk after rejection, stat err = %v", serr)
	}
}

func TestAttachInputFileRejectsWhenCacheFull(t *testing.T) {
	sm := newTestManager(t)
	limit := int64(1)
	sm.cfg.MaxCacheSizeBytes = &limit
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())

	_, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "big.xlsx", bytes.NewReader([]byte("more than one byte")))
	if err == nil {
		t.Fatal("expected OutOfStorage")
	}
	path := filepath.Join(sm.cacheDir, ticket.String(), "input", "input_file_path", "big.xlsx")
	if _, serr := os.Stat(path); !os.IsNotExist(serr) {
		t.Fatalf("expected file removed after cache budget rejection, stat err = %v", serr)
	}
}

func TestCommitPushesOntoQueueAndDispatch(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	t1 := initReadyRun(t, sm)
	t2 := initReadyRun(t, sm)

	rec1, err := sm.Commit(ctx, t1, "single_input_genes")
	if err != nil {
		t.Fatalf("Commit t1: %v", err)
	}
	if rec1.PlaceInQueue == nil || *rec1.PlaceInQueue != 1 {
		t.Fatalf("t1 place_in_queue = %v, want 1", rec1.PlaceInQueue)
	}
	rec2, err := sm.Commit(ctx, t2, "single_input_transcripts")
	if err != nil {
		t.Fatalf("Commit t2: %v", err)
	}
	if rec2.PlaceInQueue == nil || *rec2.PlaceInQueue != 2 {
		t.Fatalf("t2 place_in_queue = %v, want 2", rec2.PlaceInQueue)
	}

	dispatched, err := sm.GetNextPipelineRunFromQueue(ctx, true)
	if err != nil {
		t.Fatalf("GetNextPipelineRunFromQueue: %v", err)
	}
	if dispatched.Ticket != t1 {
		t.Fatalf("dispatched = %s, want FIFO head %s", dispatched.Ticket, t1)
	}
	if dispatched.State != model.StateRunning {
		t.Fatalf("dispatched state = %s, want running", dispatched.State)
	}
}

func TestCommitRejectsUnknownMethod(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())
	if _, err := sm.Commit(ctx, ticket, "not_a_method"); err == nil {
		t.Fatal("expected BadParameter for unknown method")
	}
}

func TestSetFinishedSuccessAndFailed(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatal(err)
	}
	rec, err := sm.SetFinished(ctx, ticket)
	if err != nil {
		t.Fatalf("SetFinished: %v", err)
	}
	if rec.State != model.StateSuccess {
		t.Fatalf("state = %s, want success", rec.State)
	}
	if rec.FinishedAt == nil {
		t.Fatal("expected FinishedAt to be set")
	}
}

func TestWipeRunDeletesFilesAndExpires(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())
	if _, err := sm.AttachInputFile(ctx, ticket, "input_file_path", "a.xlsx", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatal(err)
	}

	rec, err := sm.WipeRun(ctx, ticket)
	if err != nil {
		t.Fatalf("WipeRun: %v", err)
	}
	if rec.State != model.StateExpired {
		t.Fatalf("state = %s, want expired", rec.State)
	}
	if _, err := os.Stat(sm.layout(ticket).BaseDir()); !os.IsNotExist(err) {
		t.Fatalf("expected base dir removed, stat err = %v", err)
	}
}

func TestDeletePipelineStatus(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())
	if err := sm.DeletePipelineStatus(ctx, ticket); err != nil {
		t.Fatalf("DeletePipelineStatus: %v", err)
	}
	if _, err := sm.GetPipelineRunDefinition(ctx, ticket); err == nil {
		t.Fatal("expected record to be gone")
	}
}

func TestGetNextPipelineThatIsExpired(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.SetFinished(ctx, ticket); err != nil {
		t.Fatal(err)
	}

	sm.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(minutes(sm.cfg.PipelineResultExpiredAfterMin + 1))
	})

	rec, err := sm.GetNextPipelineThatIsExpired(ctx, true)
	if err != nil {
		t.Fatalf("GetNextPipelineThatIsExpired: %v", err)
	}
	if rec == nil || rec.Ticket != ticket {
		t.Fatalf("expected %s to be expired, got %v", ticket, rec)
	}
	if rec.State != model.StateExpired {
		t.Fatalf("state = %s, want expired", rec.State)
	}
}

func TestGetNextPipelineThatIsAbandoned(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket, _ := sm.InitNewPipelineRun(ctx, fullParams())

	sm.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(minutes(sm.cfg.PipelineAbandonedDefinitionDeletedAfterMin + 1))
	})

	rec, err := sm.GetNextPipelineThatIsAbandoned(ctx)
	if err != nil {
		t.Fatalf("GetNextPipelineThatIsAbandoned: %v", err)
	}
	if rec == nil || rec.Ticket != ticket {
		t.Fatalf("expected %s to be abandoned, got %v", ticket, rec)
	}
}

func TestReconcileOrphanedRunning(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatal(err)
	}

	n, err := sm.ReconcileOrphanedRunning(ctx)
	if err != nil {
		t.Fatalf("ReconcileOrphanedRunning: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
	rec, err := sm.GetPipelineRunDefinition(ctx, ticket)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != model.StateFailed || rec.Error != "worker restarted" {
		t.Fatalf("unexpected record after reconciliation: %+v", rec)
	}
}

func TestStatisticsAppendAndSummarize(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()
	ticket := initReadyRun(t, sm)
	if _, err := sm.Commit(ctx, ticket, "single_input_genes"); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.GetNextPipelineRunFromQueue(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, err := sm.SetFinished(ctx, ticket); err != nil {
		t.Fatal(err)
	}

	summary, err := sm.CalculateStatisticSummary(ctx, 30, 0)
	if err != nil {
		t.Fatalf("CalculateStatisticSummary: %v", err)
	}
	if summary.TotalRuns != 1 {
		t.Fatalf("TotalRuns = %d, want 1", summary.TotalRuns)
	}
	if summary.RunsPerMethod["single_input_genes"] != 1 {
		t.Fatalf("RunsPerMethod = %v", summary.RunsPerMethod)
	}
}
