package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/consensus"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

// RecognitionRequest carries one observation window. Frames holds label sets
// already resolved by the oracle; Detections holds raw oracle frames whose
// embeddings are resolved against the face gallery. Exactly one may be set.
type RecognitionRequest struct {
	Frames     [][]string        `json:"frames,omitempty"`
	Detections []consensus.Frame `json:"detections,omitempty"`
	MinFrames  int               `json:"min_frames,omitempty"`
	Timestamp  string            `json:"timestamp,omitempty"`
}

// RecognitionResponse reports the window decision and, when an identity was
// finalized, the applied punch.
type RecognitionResponse struct {
	Decision consensus.Decision `json:"decision"`
	Punch    *PunchResponse     `json:"punch"`
	Error    *ErrorResponse     `json:"error,omitempty"`
}

// RecognitionsHandler turns a window of oracle output into at most one punch.
type RecognitionsHandler struct {
	service   *attendance.Service
	labeler   consensus.Labeler
	minFrames int
	tolerance float64
	logger    *zap.Logger
}

// NewRecognitionsHandler creates a new recognitions handler. labeler may be nil
// when no face gallery is loaded.
func NewRecognitionsHandler(service *attendance.Service, labeler consensus.Labeler, minFrames int, tolerance float64, logger *zap.Logger) *RecognitionsHandler {
	if minFrames <= 0 {
		minFrames = constants.DefaultMinFrames
	}
	if tolerance <= 0 {
		tolerance = constants.DefaultTolerance
	}
	return &RecognitionsHandler{
		service:   service,
		labeler:   labeler,
		minFrames: minFrames,
		tolerance: tolerance,
		logger:    logger,
	}
}

func (req *RecognitionRequest) frames() ([]consensus.Frame, error) {
	if len(req.Frames) > 0 && len(req.Detections) > 0 {
		return nil, errors.New("frames and detections are mutually exclusive")
	}
	if n := len(req.Frames) + len(req.Detections); n > constants.MaxRecognitionFrames {
		return nil, fmt.Errorf("too many frames: %d (max %d)", n, constants.MaxRecognitionFrames)
	}
	if len(req.Detections) > 0 {
		return req.Detections, nil
	}

	frames := make([]consensus.Frame, 0, len(req.Frames))
	for _, labels := range req.Frames {
		f := consensus.Frame{Detections: make([]consensus.Detection, 0, len(labels))}
		for _, l := range labels {
			f.Detections = append(f.Detections, consensus.Detection{Label: l})
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Create runs one aggregator over the submitted frames and punches the
// finalized identity, if any.
func (h *RecognitionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RecognitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	frames, err := req.frames()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MinFrames < 0 {
		respondError(w, http.StatusBadRequest, "min_frames must not be negative")
		return
	}
	minFrames := req.MinFrames
	if minFrames == 0 {
		minFrames = h.minFrames
	}

	at, err := resolveTimestamp(h.service, req.Timestamp)
	if err != nil {
		respondAttendanceError(w, err)
		return
	}

	agg := consensus.NewAggregator()
	for _, f := range frames {
		if err := agg.Observe(f.Labels(h.tolerance, h.labeler)); err != nil {
			respondError(w, http.StatusInternalServerError, "observe frame failed")
			return
		}
	}
	decision := agg.Finalize(minFrames)

	resp := RecognitionResponse{Decision: decision}
	if !decision.Found {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	res, err := h.service.ApplyPunch(r.Context(), decision.Identity, at)
	if err != nil {
		h.logger.Debug("recognized punch not applied",
			zap.String("identity", sanitizeForLog(decision.Identity)),
			zap.Error(err),
		)
		status, body := newErrorResponse(err)
		resp.Error = &body
		setRetryAfter(w, body)
		respondJSON(w, status, resp)
		return
	}

	punch := newPunchResponse(res)
	resp.Punch = &punch
	respondJSON(w, http.StatusOK, resp)
}
