package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-auth/internal/facestore"
)

func TestFacesHandler_List(t *testing.T) {
	faces := staticFaces{
		{Name: "alice", Path: "/srv/faces/alice.jpg"},
		{Name: "bob", Path: "/srv/faces/bob.png"},
	}
	h := NewFacesHandler(newFakeSession(), faces, nil)
	recorder := httptest.NewRecorder()

	h.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/faces", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var result []FaceResponse
	parseJSONResponse(t, recorder, &result)
	if len(result) != 2 || result[0].Name != "alice" || result[1].File != "bob.png" {
		t.Errorf("unexpected faces %+v", result)
	}
}

func TestFacesHandler_ListEmpty(t *testing.T) {
	h := NewFacesHandler(newFakeSession(), staticFaces{}, nil)
	recorder := httptest.NewRecorder()

	h.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/faces", nil))

	if body := recorder.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestFacesHandler_Register(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		registerErr error
		wantStatus  int
		wantError   string
	}{
		{"success", `{"name":"alice"}`, nil, http.StatusCreated, ""},
		{"empty name", `{"name":"   "}`, nil, http.StatusBadRequest, "invalid name: please enter a name"},
		{"path separator", `{"name":"../etc"}`, nil, http.StatusBadRequest, "invalid name: must not contain path separators"},
		{"no face", `{"name":"alice"}`, &facestore.ValidationError{Field: "face", Reason: "no valid face detected"}, http.StatusBadRequest, "invalid face: no valid face detected"},
		{"storage failure", `{"name":"alice"}`, errPermission, http.StatusInternalServerError, "failed to store face"},
		{"malformed body", `name=alice`, nil, http.StatusBadRequest, errInvalidRequestBody},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := newFakeSession()
			fake.registerErr = tc.registerErr
			h := NewFacesHandler(fake, staticFaces{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/faces", bytes.NewBufferString(tc.body))
			recorder := httptest.NewRecorder()

			h.Register(recorder, req)

			assertStatusCode(t, recorder, tc.wantStatus)
			if tc.wantError != "" {
				assertJSONError(t, recorder, tc.wantError)
				return
			}
			var result FaceResponse
			parseJSONResponse(t, recorder, &result)
			if result.Name != "alice" || result.File != "alice.jpg" {
				t.Errorf("unexpected response %+v", result)
			}
		})
	}
}
