package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// SlotResponse is one in/out pair rendered with 24-hour clock strings.
type SlotResponse struct {
	Slot     int    `json:"slot"`
	In       string `json:"in,omitempty"`
	Out      string `json:"out,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// RecordResponse is the JSON form of a punch record.
type RecordResponse struct {
	Name      string         `json:"name"`
	Date      string         `json:"date"`
	Slots     []SlotResponse `json:"slots"`
	Total     string         `json:"total_hours"`
	Status    string         `json:"status"`
	Revision  int64          `json:"revision"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

func newRecordResponse(rec *database.PunchRecord) RecordResponse {
	resp := RecordResponse{
		Name:     rec.Name,
		Date:     rec.DateKey(),
		Slots:    make([]SlotResponse, 0, len(rec.Slots)),
		Total:    attendance.FormatDuration(rec.TotalDuration),
		Status:   string(rec.Status),
		Revision: rec.Revision,
	}
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt
		resp.UpdatedAt = &updated
	}
	for i, s := range rec.Slots {
		sr := SlotResponse{Slot: i + 1}
		if s.HasIn() {
			sr.In = attendance.FormatClock(s.In)
		}
		if s.HasOut() {
			sr.Out = attendance.FormatClock(s.Out)
			sr.Duration = attendance.FormatDuration(s.Duration)
		}
		resp.Slots = append(resp.Slots, sr)
	}
	return resp
}

// SummaryResponse is attendance.Summary with a formatted total.
type SummaryResponse struct {
	attendance.Summary
	TotalDuration string `json:"total_duration"`
}

// RecordsResponse is the body of the attendance list endpoint.
type RecordsResponse struct {
	Records []RecordResponse `json:"records"`
	Summary SummaryResponse  `json:"summary"`
}

// RecordsHandler serves the attendance ledger.
type RecordsHandler struct {
	service *attendance.Service
	logger  *zap.Logger
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(service *attendance.Service, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{service: service, logger: logger}
}

// parseDay parses a YYYY-MM-DD query value in the service location.
func (h *RecordsHandler) parseDay(s string) (time.Time, error) {
	return time.ParseInLocation(database.DateLayout, s, h.service.Location())
}

// List returns records filtered by ?from, ?to, ?status and ?name, plus summary statistics.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter database.RecordFilter

	if s := q.Get("from"); s != "" {
		day, err := h.parseDay(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
			return
		}
		filter.From = day
	}
	if s := q.Get("to"); s != "" {
		day, err := h.parseDay(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
			return
		}
		filter.To = day
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		respondError(w, http.StatusBadRequest, "to date is before from date")
		return
	}
	if s := q.Get("status"); s != "" {
		status := database.AttendanceStatus(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "status must be Present or Absent")
			return
		}
		filter.Status = status
	}
	filter.Name = strings.TrimSpace(q.Get("name"))

	records, err := h.service.Records(r.Context(), filter)
	if err != nil {
		h.logger.Error("list records", zap.Error(err))
		respondAttendanceError(w, err)
		return
	}

	resp := RecordsResponse{Records: make([]RecordResponse, 0, len(records))}
	for i := range records {
		resp.Records = append(resp.Records, newRecordResponse(&records[i]))
	}
	summary := attendance.Summarize(records)
	resp.Summary = SummaryResponse{
		Summary:       summary,
		TotalDuration: attendance.FormatDuration(summary.TotalDuration),
	}

	respondJSON(w, http.StatusOK, resp)
}

// Get returns the record of one registrant for one day.
func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	day, err := h.parseDay(chi.URLParam(r, "date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	rec, err := h.service.Record(r.Context(), name, day)
	if err != nil {
		h.logger.Error("get record", zap.String("identity", sanitizeForLog(name)), zap.Error(err))
		respondAttendanceError(w, err)
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "record not found")
		return
	}

	respondJSON(w, http.StatusOK, newRecordResponse(rec))
}
