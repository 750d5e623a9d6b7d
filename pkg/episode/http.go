package episode

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/epicare/platform/pkg/common/logger"
	"github.com/epicare/platform/pkg/common/models"
	"github.com/epicare/platform/pkg/gateway/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/episodes/start", h.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/episodes", h.handleListAll).Methods(http.MethodGet)
	r.HandleFunc("/episodes/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/episodes/{id}", h.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/episodes/{id}/stop", h.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/patients/{id}/episodes", h.handleListByPatient).Methods(http.MethodGet)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	var req models.StartEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.PatientID == uuid.Nil {
		http.Error(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	episode, err := h.service.Start(r.Context(), req, actor)
	if err != nil {
		writeDomainError(w, err, "failed to start episode")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"episode": episode})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid episode id", http.StatusBadRequest)
		return
	}

	episode, err := h.service.Stop(r.Context(), id, actor)
	if err != nil {
		writeDomainError(w, err, "failed to stop episode")
		return
	}

	durationMinutes, _ := episode.DurationMinutes()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"episode":          episode,
		"duration_minutes": durationMinutes,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid episode id", http.StatusBadRequest)
		return
	}

	episode, err := h.service.GetByID(r.Context(), id, actor)
	if err != nil {
		writeDomainError(w, err, "failed to get episode")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"episode": episode})
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	episodes, err := h.service.ListAll(r.Context(), parseLimit(r, 100), actor)
	if err != nil {
		writeDomainError(w, err, "failed to list episodes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": episodes})
}

func (h *Handler) handleListByPatient(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	patientID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}

	episodes, err := h.service.ListByPatient(r.Context(), patientID, actor)
	if err != nil {
		writeDomainError(w, err, "failed to list patient episodes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": episodes})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid episode id", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), id, actor); err != nil {
		writeDomainError(w, err, "failed to delete episode")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

func writeDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrEpisodeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrOpenEpisodeExists), errors.Is(err, ErrEpisodeAlreadyClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrAccessDenied):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrSymptomNotFound), errors.Is(err, ErrInvalidSeizureType):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		logger.Log.WithError(err).Error(message)
		http.Error(w, message, http.StatusInternalServerError)
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
