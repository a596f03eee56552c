package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

func punch(t *testing.T, h *PunchesHandler, name, ts string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	h.Create(recorder, newJSONRequest(t, http.MethodPost, "/api/v1/punches", PunchRequest{Name: name, Timestamp: ts}))
	return recorder
}

func TestPunchesHandler_Create_FullDay(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := NewPunchesHandler(svc, zap.NewNop())

	var resp PunchResponse
	for _, ts := range []string{"2026-01-05 09:00:00", "13:05", "01:20 PM", "2026-01-05T17:00:00Z"} {
		recorder := punch(t, h, "Asha", ts)
		assertStatusCode(t, recorder, http.StatusOK)
		parseJSONResponse(t, recorder, &resp)
	}

	if resp.Transition.Direction != string(attendance.PunchOut) || resp.Transition.Slot != 2 {
		t.Errorf("unexpected transition %+v", resp.Transition)
	}
	if resp.Transition.Duration != "03:40:00" || resp.Transition.Total != "07:45:00" {
		t.Errorf("unexpected durations %+v", resp.Transition)
	}
	if resp.Record.Status != "Present" || resp.Record.Total != "07:45:00" {
		t.Errorf("unexpected record %+v", resp.Record)
	}
	if len(resp.Record.Slots) != 5 {
		t.Fatalf("expected 5 slots, got %d", len(resp.Record.Slots))
	}
	first := resp.Record.Slots[0]
	if first.In != "09:00:00" || first.Out != "13:05:00" || first.Duration != "04:05:00" {
		t.Errorf("unexpected first slot %+v", first)
	}
	if resp.Record.Slots[2].In != "" {
		t.Errorf("third slot should be empty, got %+v", resp.Record.Slots[2])
	}
}

func TestPunchesHandler_Create_BreakTooShort(t *testing.T) {
	svc, store := newTestService(t, nil)
	h := NewPunchesHandler(svc, zap.NewNop())

	punch(t, h, "Asha", "09:00")
	punch(t, h, "Asha", "13:05")
	before := store.UpdateCalls

	recorder := punch(t, h, "Asha", "13:07")

	assertStatusCode(t, recorder, http.StatusConflict)
	resp := assertErrorKind(t, recorder, attendance.KindBreakTooShort)
	if resp.RetryAfterSeconds != 480 || resp.Slot != 2 {
		t.Errorf("unexpected retry hint %+v", resp)
	}
	if got := recorder.Header().Get("Retry-After"); got != "480" {
		t.Errorf("Retry-After = %q, want 480", got)
	}

	rec, _ := store.GetRecord(t.Context(), "Asha", testNow)
	if rec.Revision != 2 || rec.Slots[1].HasIn() {
		t.Errorf("rejected punch changed the record: %+v", rec)
	}
	if store.UpdateCalls != before+1 {
		t.Errorf("rejection should not be retried, got %d calls", store.UpdateCalls-before)
	}
}

func TestPunchesHandler_Create_SessionLimit(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := NewPunchesHandler(svc, zap.NewNop())

	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	for i := range 10 {
		ts := start.Add(time.Duration(i) * 15 * time.Minute).Format(time.RFC3339)
		assertStatusCode(t, punch(t, h, "Ravi", ts), http.StatusOK)
	}

	recorder := punch(t, h, "Ravi", "18:00")
	assertStatusCode(t, recorder, http.StatusConflict)
	assertErrorKind(t, recorder, attendance.KindSessionLimitReached)
}

func TestPunchesHandler_Create_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		setup      func(h *PunchesHandler)
		wantStatus int
		wantKind   attendance.Kind
		wantError  string
	}{
		{
			name:       "unregistered identity",
			body:       PunchRequest{Name: "Meera", Timestamp: "09:00"},
			wantStatus: http.StatusNotFound,
			wantKind:   attendance.KindUnregisteredIdentity,
		},
		{
			name:       "malformed timestamp",
			body:       PunchRequest{Name: "Asha", Timestamp: "25:99"},
			wantStatus: http.StatusBadRequest,
			wantKind:   attendance.KindMalformedTimestamp,
		},
		{
			name:       "missing name",
			body:       PunchRequest{Name: "  "},
			wantStatus: http.StatusBadRequest,
			wantError:  "name is required",
		},
		{
			name:       "invalid json",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantError:  errInvalidRequestBody,
		},
		{
			name:       "unknown field",
			body:       `{"name":"Asha","when":"09:00"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  errInvalidRequestBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t, nil)
			h := NewPunchesHandler(svc, zap.NewNop())

			recorder := httptest.NewRecorder()
			h.Create(recorder, newJSONRequest(t, http.MethodPost, "/api/v1/punches", tt.body))

			assertStatusCode(t, recorder, tt.wantStatus)
			if tt.wantError != "" {
				assertJSONError(t, recorder, tt.wantError)
			} else {
				assertErrorKind(t, recorder, tt.wantKind)
			}
			if store.RecordCount() != 0 {
				t.Errorf("rejected punch created %d records", store.RecordCount())
			}
		})
	}
}

func TestPunchesHandler_Create_PersistenceUnavailable(t *testing.T) {
	svc, store := newTestService(t, nil)
	store.UpdateError = errors.New("connection refused")
	h := NewPunchesHandler(svc, zap.NewNop())

	recorder := punch(t, h, "Asha", "09:00")

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	resp := assertErrorKind(t, recorder, attendance.KindPersistenceUnavailable)
	if resp.Error != attendance.ErrPersistenceUnavailable.Error() {
		t.Errorf("storage error leaked to client: %q", resp.Error)
	}
}

func TestPunchesHandler_Create_DefaultsToNow(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := NewPunchesHandler(svc, zap.NewNop())

	recorder := punch(t, h, "Asha", "")
	assertStatusCode(t, recorder, http.StatusOK)

	var resp PunchResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.Transition.At.Equal(testNow) {
		t.Errorf("expected punch at %v, got %v", testNow, resp.Transition.At)
	}
	if resp.Transition.Clock != "08:00:00" {
		t.Errorf("Clock = %q", resp.Transition.Clock)
	}
}
