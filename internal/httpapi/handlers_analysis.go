package httpapi

import (
	"net/http"

	"github.com/metakeggweb/mekeweserver/internal/model"
	"github.com/metakeggweb/mekeweserver/internal/paramschema"
)

func (a *API) handleListAnalysisMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.AnalysisMethods)
}

func (a *API) handleMethodParams(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	if _, ok := model.FindAnalysisMethod(method); !ok {
		writeError(w, http.StatusNotFound, "unknown analysis method "+method)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"global_params":          paramschema.GlobalDescriptors(),
		"method_specific_params": paramschema.MethodDescriptors(method),
	})
}
