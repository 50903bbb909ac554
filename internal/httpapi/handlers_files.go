package httpapi

import (
	"fmt"
	"net/http"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
)

const multipartMemoryBudget = 32 << 20 // buffered in memory before spilling to temp files

func (a *API) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	param := r.PathValue("param")

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing upload field \"file\": %v", err))
		return
	}
	defer file.Close()

	// Reject an oversized upload by its declared size before it ever
	// reaches the run's input directory; AttachInputFile still bounds
	// the write itself as a backstop against a lying Content-Length.
	if limit := a.cfg.MaxFileSizeUploadLimitBytes; limit != nil && header.Size > *limit {
		writeAppError(w, apperrors.UploadTooLarge("uploaded file of %d bytes exceeds the %d byte limit", header.Size, *limit))
		return
	}

	rec, aerr := a.sm.AttachInputFile(r.Context(), ticket, param, header.Filename, file)
	if aerr != nil {
		writeAppError(w, aerr)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	ticket, ok := parseTicket(w, r)
	if !ok {
		return
	}
	param := r.PathValue("param")
	filename := r.PathValue("filename")

	rec, err := a.sm.RemoveInputFile(r.Context(), ticket, param, filename)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
