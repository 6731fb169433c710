package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"netwatch/internal/service"
	"netwatch/internal/util"
)

// Envelope is the uniform JSON response shape. Payload fields sit at the top
// level next to success and message.
type Envelope map[string]interface{}

func respondWithJSON(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

// respondSuccess merges payload fields into a success envelope.
func respondSuccess(w http.ResponseWriter, message string, payload Envelope) {
	body := Envelope{"success": true}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	respondWithJSON(w, http.StatusOK, body)
}

func respondWithError(w http.ResponseWriter, err error) {
	respondWithJSON(w, getStatusCode(err), Envelope{
		"success": false,
		"message": clientMessage(err),
	})
}

func respondBadRequest(w http.ResponseWriter, message string) {
	respondWithJSON(w, http.StatusBadRequest, Envelope{
		"success": false,
		"message": message,
	})
}

// getStatusCode maps service sentinel errors to HTTP status codes.
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var sentinels = []error{
	service.ErrValidation,
	service.ErrUnauthorized,
	service.ErrForbidden,
	service.ErrNotFound,
	service.ErrAlreadyExists,
	service.ErrQuotaExceeded,
	service.ErrRateLimited,
}

// clientMessage extracts the human-readable part of a sentinel error. Storage
// and other internal failures never leak details to the client.
func clientMessage(err error) string {
	for _, sentinel := range sentinels {
		if !errors.Is(err, sentinel) {
			continue
		}
		msg := err.Error()
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
		return msg
	}
	util.Error("Request failed", zap.Error(err))
	return "Internal server error"
}
