package services

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/EO-DataHub/eodhp-directory-services/internal/directory"
	"github.com/EO-DataHub/eodhp-directory-services/models"
)

func WriteResponse(w http.ResponseWriter, statusCode int, response interface{}) {

	w.Header().Set("Content-Type", "application/json")

	// We don't want to cache API responses so the client receives most curent data
	w.Header().Set("Cache-Control", "max-age=0")

	w.WriteHeader(statusCode)

	if response != nil {
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
			return
		}
	}
}

// envelope wraps data in the response format shared by every endpoint.
func (svc *Service) envelope(r *http.Request, status int, msg string, data interface{}) models.Response {
	return models.Response{
		Status:    status,
		Msg:       msg,
		Timestamp: time.Now().UTC().Unix(),
		Nodename:  svc.Nodename,
		Request:   r.Method + " " + r.URL.Path,
		Data:      data,
	}
}

// WriteData sends a successful envelope.
func (svc *Service) WriteData(w http.ResponseWriter, r *http.Request, msg string, data interface{}) {
	WriteResponse(w, http.StatusOK, svc.envelope(r, models.StatusOK, msg, data))
}

// HandleErrResponse sends an error envelope with the given HTTP status.
func (svc *Service) HandleErrResponse(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	WriteResponse(w, statusCode, svc.envelope(r, models.StatusError, err.Error(), nil))
}

// StatusFor maps an operation failure onto an HTTP status.
func StatusFor(err error) int {
	switch directory.KindOf(err) {
	case directory.KindMalformed, directory.KindValidation:
		return http.StatusBadRequest
	case directory.KindNotFound:
		return http.StatusNotFound
	case directory.KindConflict, directory.KindInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
