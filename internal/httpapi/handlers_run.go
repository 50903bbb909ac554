package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
	"github.com/metakeggweb/mekeweserver/internal/filelayout"
	"github.com/metakeggweb/mekeweserver/internal/model"
)

func (a *API) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	method := r.PathValue("method")

	rec, err := a.sm.Commit(r.Context(), ticket, method)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if a.metrics != nil {
		a.metrics.QueueDepth.Inc()
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleDownloadResult(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	rec, err := a.sm.GetPipelineRunDefinition(r.Context(), ticket)
	if err != nil {
		writeAppError(w, err)
		return
	}

	switch rec.State {
	case model.StateFailed:
		writeAppError(w, apperrors.DependencyFailed("pipeline run failed: %s", rec.Error))
		return
	case model.StateInitialized, model.StateQueued, model.StateRunning:
		writeAppError(w, apperrors.NotReady("pipeline run is not finished"))
		return
	case model.StateExpired:
		writeAppError(w, apperrors.Gone("pipeline run expired and its result was cleaned up"))
		return
	}

	zipPath := filelayout.New(a.cfg.PipelineRunsCacheDir, ticket).OutputZipPath(rec.PipelineOutputZipFileName)
	f, err := os.Open(zipPath)
	if err != nil {
		writeAppError(w, apperrors.FilesystemError(err))
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if rec.FinishedAt != nil {
		modTime = *rec.FinishedAt
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.PipelineOutputZipFileName+`"`)
	http.ServeContent(w, r, rec.PipelineOutputZipFileName, modTime, f)
}
