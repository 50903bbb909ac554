package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/metakeggweb/mekeweserver/internal/apperrors"
)

// errorResponse matches the body shape {"detail": "..."} used throughout
// the HTTP surface.
type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// writeAppError translates an apperrors.Error (or an opaque error) into
// the matching HTTP status and {"detail": ...} body.
func writeAppError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperrors.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeError(w, statusForKind(ae.Kind), ae.Error())
}

func statusForKind(k apperrors.Kind) int {
	switch k {
	case apperrors.KindRecordNotFound:
		return http.StatusNotFound
	case apperrors.KindBadState:
		return http.StatusBadRequest
	case apperrors.KindBadParameter:
		return http.StatusUnprocessableEntity
	case apperrors.KindOutOfStorage:
		return http.StatusInsufficientStorage
	case apperrors.KindUploadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.KindNotReady:
		return http.StatusTooEarly
	case apperrors.KindGone:
		return http.StatusGone
	case apperrors.KindDependencyFailed:
		return http.StatusFailedDependency
	case apperrors.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.KindFilesystemError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
