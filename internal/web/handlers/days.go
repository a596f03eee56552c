package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// DaysHandler runs the daily initializer on demand.
type DaysHandler struct {
	service *attendance.Service
}

// NewDaysHandler creates a new days handler
func NewDaysHandler(service *attendance.Service) *DaysHandler {
	return &DaysHandler{service: service}
}

// EnsureTodayResponse reports how many Absent records were seeded.
type EnsureTodayResponse struct {
	Date    string `json:"date"`
	Created int64  `json:"created"`
}

// EnsureToday seeds today's records. Calling it again the same day creates nothing.
func (h *DaysHandler) EnsureToday(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.EnsureToday(r.Context())
	if err != nil {
		respondAttendanceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, EnsureTodayResponse{
		Date:    database.DayOf(h.service.Now(), h.service.Location()).Format(database.DateLayout),
		Created: created,
	})
}
