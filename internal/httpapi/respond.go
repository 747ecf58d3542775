package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("httpapi: encoding response")
	}
}

// errorResponse is the standard JSON error envelope.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// RespondError writes a JSON error envelope.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	Respond(w, status, errorResponse{Error: code, Message: message})
}
