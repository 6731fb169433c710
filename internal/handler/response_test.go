package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"netwatch/internal/service"
)

func TestGetStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: field required", service.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: invalid credentials", service.ErrUnauthorized), http.StatusUnauthorized},
		{fmt.Errorf("%w: not yours", service.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: node 7", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: username taken", service.ErrAlreadyExists), http.StatusBadRequest},
		{fmt.Errorf("%w: maximum of 5 nodes reached", service.ErrQuotaExceeded), http.StatusBadRequest},
		{fmt.Errorf("%w: slow down", service.ErrRateLimited), http.StatusTooManyRequests},
		{errors.New("pg: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := getStatusCode(tc.err); got != tc.want {
			t.Errorf("getStatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestClientMessageStripsSentinelPrefix(t *testing.T) {
	err := fmt.Errorf("%w: Cannot delete primary admin", service.ErrForbidden)
	if got := clientMessage(err); got != "Cannot delete primary admin" {
		t.Fatalf("clientMessage = %q", got)
	}
}

func TestClientMessageHidesInternalErrors(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	if got := clientMessage(err); got != "Internal server error" {
		t.Fatalf("internal details leaked: %q", got)
	}
}

func TestRespondSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	respondSuccess(rec, "Node created successfully", Envelope{"node_id": 7})

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["success"] != true {
		t.Fatalf("success = %v", body["success"])
	}
	if body["message"] != "Node created successfully" {
		t.Fatalf("message = %v", body["message"])
	}
	// Payload fields sit at the top level, not nested under a data key.
	if body["node_id"] != float64(7) {
		t.Fatalf("node_id = %v", body["node_id"])
	}
}

func TestRespondWithErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithError(rec, fmt.Errorf("%w: maximum of 5 nodes reached", service.ErrQuotaExceeded))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["success"] != false {
		t.Fatalf("success = %v", body["success"])
	}
	if body["message"] != "maximum of 5 nodes reached" {
		t.Fatalf("message = %v", body["message"])
	}
}
