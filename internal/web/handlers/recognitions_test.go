package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/consensus"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

func recognize(t *testing.T, h *RecognitionsHandler, body any) (*httptest.ResponseRecorder, RecognitionResponse) {
	t.Helper()
	recorder := httptest.NewRecorder()
	h.Create(recorder, newJSONRequest(t, http.MethodPost, "/api/v1/recognitions", body))
	var resp RecognitionResponse
	if recorder.Code != http.StatusBadRequest {
		parseJSONResponse(t, recorder, &resp)
	}
	return recorder, resp
}

func TestRecognitionsHandler_StableIdentityPunches(t *testing.T) {
	svc, store := newTestService(t, nil)
	h := NewRecognitionsHandler(svc, nil, 3, 0.4, zap.NewNop())

	recorder, resp := recognize(t, h, RecognitionRequest{
		Frames:    [][]string{{"Asha"}, {"Asha"}, {}, {"Asha"}, {"Asha"}, {"Asha"}},
		Timestamp: "09:00:00",
	})

	assertStatusCode(t, recorder, http.StatusOK)
	if !resp.Decision.Found || resp.Decision.Identity != "Asha" || resp.Decision.Frames != 6 {
		t.Fatalf("unexpected decision %+v", resp.Decision)
	}
	if resp.Punch == nil || resp.Punch.Transition.Direction != string(attendance.PunchIn) {
		t.Fatalf("expected punch in, got %+v", resp.Punch)
	}
	if store.RecordCount() != 1 {
		t.Errorf("expected 1 record, got %d", store.RecordCount())
	}
}

func TestRecognitionsHandler_NoConsensusNoPunch(t *testing.T) {
	svc, store := newTestService(t, nil)
	h := NewRecognitionsHandler(svc, nil, 3, 0.4, zap.NewNop())

	recorder, resp := recognize(t, h, RecognitionRequest{
		Frames: [][]string{{"Asha"}, {"Ravi"}, {"Asha"}, {"Ravi"}},
	})

	assertStatusCode(t, recorder, http.StatusOK)
	if resp.Decision.Found || resp.Punch != nil {
		t.Errorf("expected no decision, got %+v", resp)
	}
	if store.UpdateCalls != 0 {
		t.Errorf("ledger touched without consensus: %d calls", store.UpdateCalls)
	}
}

func TestRecognitionsHandler_RequestMinFramesOverridesDefault(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := NewRecognitionsHandler(svc, nil, 3, 0.4, zap.NewNop())

	_, resp := recognize(t, h, RecognitionRequest{
		Frames:    [][]string{{"Ravi"}, {"Ravi"}},
		MinFrames: 2,
	})

	if !resp.Decision.Found || resp.Decision.Identity != "Ravi" {
		t.Errorf("expected Ravi with min_frames 2, got %+v", resp.Decision)
	}
}

func TestRecognitionsHandler_EmbeddingsResolvedByGallery(t *testing.T) {
	svc, _ := newTestService(t, nil)
	gallery := facematch.NewGallery([]database.FaceEmbedding{
		{ID: 1, Name: "Asha", Embedding: []float32{1, 0, 0}},
		{ID: 2, Name: "Ravi", Embedding: []float32{0, 1, 0}},
	}, 0.4)
	h := NewRecognitionsHandler(svc, gallery, 3, 0.4, zap.NewNop())

	near := consensus.Frame{Detections: []consensus.Detection{{Embedding: []float32{0.95, 0.05, 0}}}}
	stranger := consensus.Frame{Detections: []consensus.Detection{{Embedding: []float32{0, 0, 1}}}}

	recorder, resp := recognize(t, h, RecognitionRequest{
		Detections: []consensus.Frame{near, stranger, near, near},
	})

	assertStatusCode(t, recorder, http.StatusOK)
	if !resp.Decision.Found || resp.Decision.Identity != "Asha" || resp.Decision.Count != 3 {
		t.Fatalf("unexpected decision %+v", resp.Decision)
	}
	if resp.Punch == nil {
		t.Fatal("expected a punch")
	}
}

func TestRecognitionsHandler_RejectedPunchKeepsDecision(t *testing.T) {
	svc, store := newTestService(t, nil)
	h := NewRecognitionsHandler(svc, nil, 1, 0.4, zap.NewNop())

	recorder, resp := recognize(t, h, RecognitionRequest{Frames: [][]string{{"Meera"}}})

	assertStatusCode(t, recorder, http.StatusNotFound)
	if !resp.Decision.Found || resp.Decision.Identity != "Meera" {
		t.Errorf("decision missing from rejection: %+v", resp.Decision)
	}
	if resp.Error == nil || resp.Error.Kind != attendance.KindUnregisteredIdentity.String() {
		t.Errorf("unexpected error %+v", resp.Error)
	}
	if store.RecordCount() != 0 {
		t.Error("unregistered identity created a record")
	}
}

func TestRecognitionsHandler_BreakTooShortSetsRetryAfter(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := NewRecognitionsHandler(svc, nil, 2, 0.4, zap.NewNop())

	for _, ts := range []string{"09:00:00", "13:05:00"} {
		when, err := attendance.ParseTimestamp(ts, testNow, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.ApplyPunch(context.Background(), "Asha", when); err != nil {
			t.Fatalf("ApplyPunch(%s) error: %v", ts, err)
		}
	}

	recorder, resp := recognize(t, h, RecognitionRequest{
		Frames:    [][]string{{"Asha"}, {"Asha"}},
		Timestamp: "13:07:00",
	})

	assertStatusCode(t, recorder, http.StatusConflict)
	if resp.Error == nil || resp.Error.RetryAfterSeconds != 480 {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if got := recorder.Header().Get("Retry-After"); got != "480" {
		t.Errorf("Retry-After = %q, want 480", got)
	}
}

func TestRecognitionsHandler_BadRequests(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := NewRecognitionsHandler(svc, nil, 3, 0.4, zap.NewNop())

	tests := []struct {
		name string
		body any
	}{
		{"frames and detections", RecognitionRequest{
			Frames:     [][]string{{"Asha"}},
			Detections: []consensus.Frame{{}},
		}},
		{"negative min frames", RecognitionRequest{Frames: [][]string{{"Asha"}}, MinFrames: -1}},
		{"invalid json", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, _ := recognize(t, h, tt.body)
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
}
