package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/notify"
)

func TestEventsHandler_Stream(t *testing.T) {
	b := notify.NewBroadcaster()
	h := NewEventsHandler(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Stream(recorder, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.Listeners() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener was never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Notify(context.Background(), notify.Event{
		ID:       "evt-1",
		Kind:     notify.KindPunchOut,
		Identity: "Asha",
		Date:     "2026-01-05",
		Slot:     1,
		At:       time.Date(2026, 1, 5, 13, 5, 0, 0, time.UTC),
		Duration: "04:05:00",
		Total:    "04:05:00",
	})

	// The event is buffered; give the stream a moment to write it.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := recorder.Body.String()
	if !strings.Contains(body, "event: connected\n") {
		t.Errorf("missing connected event:\n%s", body)
	}
	if !strings.Contains(body, "event: punch_out\n") || !strings.Contains(body, `"identity":"Asha"`) {
		t.Errorf("missing punch event:\n%s", body)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if b.Listeners() != 0 {
		t.Error("listener not removed after disconnect")
	}
}
