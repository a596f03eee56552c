package handlers

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// PunchRequest is the body of POST /punches. An empty timestamp means now.
type PunchRequest struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// TransitionResponse describes the slot change caused by an accepted punch.
type TransitionResponse struct {
	Direction string    `json:"direction"`
	Identity  string    `json:"identity"`
	Date      string    `json:"date"`
	Slot      int       `json:"slot"`
	At        time.Time `json:"at"`
	Clock     string    `json:"clock"`
	Duration  string    `json:"duration,omitempty"`
	Total     string    `json:"total_hours"`
}

// PunchResponse is returned for an accepted punch.
type PunchResponse struct {
	Transition TransitionResponse `json:"transition"`
	Record     RecordResponse     `json:"record"`
}

func newPunchResponse(res *attendance.Result) PunchResponse {
	tr := res.Transition
	resp := PunchResponse{
		Transition: TransitionResponse{
			Direction: string(tr.Direction),
			Identity:  tr.Identity,
			Date:      tr.Date.Format("2006-01-02"),
			Slot:      tr.Slot,
			At:        tr.At,
			Clock:     attendance.FormatClock(tr.At),
			Total:     attendance.FormatDuration(tr.Total),
		},
		Record: newRecordResponse(&res.Record),
	}
	if tr.Direction == attendance.PunchOut {
		resp.Transition.Duration = attendance.FormatDuration(tr.Duration)
	}
	return resp
}

// PunchesHandler applies confirmed punches.
type PunchesHandler struct {
	service *attendance.Service
	logger  *zap.Logger
}

// NewPunchesHandler creates a new punches handler
func NewPunchesHandler(service *attendance.Service, logger *zap.Logger) *PunchesHandler {
	return &PunchesHandler{service: service, logger: logger}
}

// resolveTimestamp parses ts against the service clock, defaulting to now.
func resolveTimestamp(service *attendance.Service, ts string) (time.Time, error) {
	now := service.Now()
	if strings.TrimSpace(ts) == "" {
		return now, nil
	}
	return attendance.ParseTimestamp(ts, now, service.Location())
}

// Create applies one punch for a registrant.
func (h *PunchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	at, err := resolveTimestamp(h.service, req.Timestamp)
	if err != nil {
		respondAttendanceError(w, err)
		return
	}

	res, err := h.service.ApplyPunch(r.Context(), name, at)
	if err != nil {
		h.logger.Debug("punch not applied", zap.String("identity", sanitizeForLog(name)), zap.Error(err))
		respondAttendanceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newPunchResponse(res))
}
