// Package response renders the uniform JSON envelope every internal/api
// handler writes back to the caller. Encode failures and API errors surface
// through the service's logging.Logger.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

var log logging.Logger = logging.Nop()

// SetLogger installs the process-wide logger used for encode failures and
// API error logging. Call once at startup, before serving traffic; uninstalled
// calls fall back to a no-op logger rather than writing to stderr.
func SetLogger(l logging.Logger) {
	log = l
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("error encoding JSON response", "error", err)
	}
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string, err error) {
	errorMsg := message
	if err != nil {
		log.Warn("api error", "message", message, "error", err)
		errorMsg = err.Error()
	}

	JSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: errorMsg,
		Code:    status,
	})
}

// Success writes a success JSON response
func Success(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}
