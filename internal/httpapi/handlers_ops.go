package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metakeggweb/mekeweserver/internal/config"
)

// healthState is one dependency's liveness, modeled after the source's
// structured health reporting rather than a single boolean.
type healthState struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps := map[string]healthState{}

	if err := a.store.Ping(r.Context()); err != nil {
		deps["state_store"] = healthState{Healthy: false, Detail: err.Error()}
	} else {
		deps["state_store"] = healthState{Healthy: true}
	}
	deps["cache_dir"] = a.checkCacheDir()
	deps["worker"] = healthState{Healthy: true}

	healthy := true
	for _, d := range deps {
		if !d.Healthy {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":      healthy,
		"dependencies": deps,
	})
}

func (a *API) checkCacheDir() healthState {
	if err := os.MkdirAll(a.cfg.PipelineRunsCacheDir, 0o755); err != nil {
		return healthState{Healthy: false, Detail: err.Error()}
	}
	probe := filepath.Join(a.cfg.PipelineRunsCacheDir, ".health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return healthState{Healthy: false, Detail: err.Error()}
	}
	_ = os.Remove(probe)
	return healthState{Healthy: true}
}

func (a *API) handleClientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"contact_email":                a.cfg.ClientContactEmail,
		"bug_report_email":             a.cfg.ClientBugReportEmail,
		"entry_text":                   a.cfg.ClientEntryText,
		"terms_and_conditions":         a.cfg.ClientTermsAndConditions,
		"pipeline_ticket_expire_time_sec": a.cfg.PipelineAbandonedDefinitionDeletedAfterMin * 60,
		"max_file_size_upload_limit_bytes": a.cfg.MaxFileSizeUploadLimitBytes,
	})
}

func (a *API) handleInfoLinks(w http.ResponseWriter, r *http.Request) {
	links := a.cfg.ClientLinkList
	if links == nil {
		links = []config.LinkItem{}
	}
	writeJSON(w, http.StatusOK, links)
}

func (a *API) metricsHandler() http.Handler {
	if a.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{})
}
