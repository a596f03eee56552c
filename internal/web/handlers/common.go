package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a size-limited JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// ErrorResponse is the body of every non-2xx response. Kind and the retry
// hint are only set for attendance rejections.
type ErrorResponse struct {
	Error             string `json:"error"`
	Kind              string `json:"kind,omitempty"`
	Slot              int    `json:"slot,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// statusForKind maps an attendance rejection to an HTTP status.
func statusForKind(k attendance.Kind) int {
	switch k {
	case attendance.KindMalformedTimestamp:
		return http.StatusBadRequest
	case attendance.KindUnregisteredIdentity:
		return http.StatusNotFound
	case attendance.KindBreakTooShort, attendance.KindSessionLimitReached:
		return http.StatusConflict
	case attendance.KindPersistenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// newErrorResponse builds the status and body for an attendance error.
func newErrorResponse(err error) (int, ErrorResponse) {
	kind := attendance.KindOf(err)
	resp := ErrorResponse{Error: err.Error(), Kind: kind.String()}

	var pe *attendance.PunchError
	if errors.As(err, &pe) {
		resp.Slot = pe.Slot
		if d := pe.RetryAfter(); d > 0 {
			resp.RetryAfterSeconds = int(math.Ceil(d.Seconds()))
		}
		if kind == attendance.KindPersistenceUnavailable {
			resp.Error = attendance.ErrPersistenceUnavailable.Error()
		}
	}
	if kind == attendance.KindUnknown {
		resp.Error = "internal error"
		resp.Kind = ""
	}
	return statusForKind(kind), resp
}

// setRetryAfter mirrors the retry hint of resp in the Retry-After header.
func setRetryAfter(w http.ResponseWriter, resp ErrorResponse) {
	if resp.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
}

// respondAttendanceError writes an attendance error. Storage details are not
// leaked to clients.
func respondAttendanceError(w http.ResponseWriter, err error) {
	status, resp := newErrorResponse(err)
	setRetryAfter(w, resp)
	respondJSON(w, status, resp)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
