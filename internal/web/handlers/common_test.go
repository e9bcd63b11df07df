package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusNoContent, nil)

	assertStatusCode(t, recorder, http.StatusNoContent)
	assertContentType(t, recorder, "application/json")
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"BadRequest", http.StatusBadRequest},
		{"Conflict", http.StatusConflict},
		{"ServiceUnavailable", http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondError(recorder, tc.statusCode, "test error")

			assertStatusCode(t, recorder, tc.statusCode)
			assertJSONError(t, recorder, "test error")
		})
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/faces", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	var v RegisterRequest
	if decodeJSON(recorder, req, &v) {
		t.Fatal("expected oversized body to be rejected")
	}
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\r\nadmin"); got != "aliceadmin" {
		t.Errorf("expected newlines stripped, got %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	recorder := httptest.NewRecorder()

	HealthCheck(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result map[string]string
	parseJSONResponse(t, recorder, &result)
	if result["status"] != "ok" {
		t.Errorf("expected status ok, got %v", result)
	}
}
