package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/notify"
)

// testNow is the service clock in handler tests: Monday 2026-01-05 08:00 UTC.
var testNow = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

// newTestService creates a service over a mock store with Asha and Ravi registered.
func newTestService(t *testing.T, n notify.Notifier) (*attendance.Service, *mock.MockStore) {
	t.Helper()
	store := mock.NewMockStore()
	store.AddRegistrantNames("Asha", "Ravi")
	svc := attendance.NewService(store, store, attendance.Options{
		Location: time.UTC,
		Notifier: n,
		Logger:   zap.NewNop(),
		Now:      func() time.Time { return testNow },
	})
	return svc, store
}

// newJSONRequest creates a request with body marshaled as JSON. A string body is sent as is.
func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case string:
		raw = []byte(b)
	default:
		var err error
		if raw, err = json.Marshal(b); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result ErrorResponse
	parseJSONResponse(t, recorder, &result)
	if result.Error != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result.Error)
	}
}

// assertErrorKind checks the kind field of an attendance error response
func assertErrorKind(t *testing.T, recorder *httptest.ResponseRecorder, expected attendance.Kind) ErrorResponse {
	t.Helper()
	var result ErrorResponse
	parseJSONResponse(t, recorder, &result)
	if result.Kind != expected.String() {
		t.Errorf("expected kind '%s', got '%s' (error %q)", expected, result.Kind, result.Error)
	}
	return result
}
