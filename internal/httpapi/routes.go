package httpapi

import "net/http"

// routes builds the Go 1.22+ method+pattern mux for the full surface.
func (a *API) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/analysis", a.handleListAnalysisMethods)
	mux.HandleFunc("GET /api/{method}/params", a.handleMethodParams)

	mux.HandleFunc("POST /api/pipeline", a.handleCreatePipeline)
	mux.HandleFunc("PATCH /api/pipeline/{id}", a.handleUpdatePipeline)
	mux.HandleFunc("DELETE /api/pipeline/{id}", a.handleDeletePipeline)
	mux.HandleFunc("GET /api/pipeline/{id}/status", a.handlePipelineStatus)

	mux.HandleFunc("POST /api/pipeline/{id}/file/upload/{param}", a.handleUploadFile)
	mux.HandleFunc("DELETE /api/pipeline/{id}/file/remove/{param}/{filename}", a.handleRemoveFile)

	mux.HandleFunc("POST /api/pipeline/{id}/run/{method}", a.handleRunPipeline)
	mux.HandleFunc("GET /api/pipeline/{id}/result", a.handleDownloadResult)

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /config", a.handleClientConfig)
	mux.HandleFunc("GET /info-links", a.handleInfoLinks)
	mux.Handle("GET /metrics", a.metricsHandler())

	return mux
}
