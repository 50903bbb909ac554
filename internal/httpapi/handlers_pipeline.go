package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/metakeggweb/mekeweserver/internal/model"
)

type createPipelineRequest struct {
	GlobalParams         map[string]any `json:"global_params"`
	MethodSpecificParams map[string]any `json:"method_specific_params"`
}

func (a *API) handleCreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req createPipelineRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	ticket, err := a.sm.InitNewPipelineRun(r.Context(), model.PipelineParams{
		GlobalParams:         req.GlobalParams,
		MethodSpecificParams: req.MethodSpecificParams,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": ticket.String()})
}

type updatePipelineRequest struct {
	GlobalParams         map[string]any `json:"global_params"`
	MethodSpecificParams map[string]any `json:"method_specific_params"`
}

func (a *API) handleUpdatePipeline(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	var req updatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	rec, err := a.sm.UpdateParams(r.Context(), ticket, req.GlobalParams, req.MethodSpecificParams)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleDeletePipeline(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	if err := a.sm.DeleteRun(r.Context(), ticket); err != nil {
		writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	rec, err := a.sm.GetPipelineRunDefinition(r.Context(), ticket)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// parseTicket extracts and validates the {id} path value, writing a 404
// directly (rather than surfacing a parse error) since a malformed id
// can never match a stored record.
func parseTicket(w http.ResponseWriter, r *http.Request) (model.Ticket, bool) {
	ticket, err := model.ParseTicket(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return "", false
	}
	return ticket, true
}
