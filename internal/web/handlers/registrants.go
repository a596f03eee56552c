package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// RegistrantResponse is the JSON form of a registrant.
type RegistrantResponse struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterRequest is the body of POST /registrants. Embedding is an optional
// reference face vector for the recognition gallery.
type RegisterRequest struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// RegisterResponse reports the outcome of a registration.
type RegisterResponse struct {
	Name        string `json:"name"`
	Created     bool   `json:"created"`
	EmbeddingID int64  `json:"embedding_id,omitempty"`
}

// RegistrantsHandler manages registrants and their reference faces.
type RegistrantsHandler struct {
	store   database.RegistrantWriter
	gallery *facematch.Gallery
	logger  *zap.Logger
}

// NewRegistrantsHandler creates a new registrants handler. gallery may be nil.
func NewRegistrantsHandler(store database.RegistrantWriter, gallery *facematch.Gallery, logger *zap.Logger) *RegistrantsHandler {
	return &RegistrantsHandler{store: store, gallery: gallery, logger: logger}
}

// List returns all registrants ordered by name.
func (h *RegistrantsHandler) List(w http.ResponseWriter, r *http.Request) {
	registrants, err := h.store.ListRegistrants(r.Context())
	if err != nil {
		h.logger.Error("list registrants", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "failed to list registrants")
		return
	}

	resp := make([]RegistrantResponse, 0, len(registrants))
	for _, reg := range registrants {
		resp = append(resp, RegistrantResponse(reg))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Create registers a name, optionally with a reference face embedding.
// Registering an existing name again returns 200 with created=false.
func (h *RegistrantsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	name := facematch.CleanName(req.Name)
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	created, err := h.store.AddRegistrant(r.Context(), name)
	if errors.Is(err, database.ErrRegistrantExists) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("add registrant", zap.String("identity", sanitizeForLog(name)), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "failed to register")
		return
	}

	resp := RegisterResponse{Name: name, Created: created}

	if len(req.Embedding) > 0 {
		id, err := h.store.SaveFaceEmbedding(r.Context(), name, req.Embedding)
		if err != nil {
			h.logger.Error("save face embedding", zap.String("identity", sanitizeForLog(name)), zap.Error(err))
			respondError(w, http.StatusServiceUnavailable, "failed to save face embedding")
			return
		}
		resp.EmbeddingID = id

		if h.gallery != nil {
			face := database.FaceEmbedding{ID: id, Name: name, Embedding: req.Embedding}
			if err := h.gallery.Add(face); err != nil {
				h.logger.Warn("face embedding not indexed", zap.String("identity", sanitizeForLog(name)), zap.Error(err))
			}
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, resp)
}
