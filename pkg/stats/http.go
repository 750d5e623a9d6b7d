package stats

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/epicare/platform/pkg/common/logger"
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
	r.HandleFunc("/patients/{id}/statistics", h.handleSummarize).Methods(http.MethodGet)
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	patientID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid patient id", http.StatusBadRequest)
		return
	}

	from, err := parseTimeParam(r, "from")
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		http.Error(w, "invalid to date", http.StatusBadRequest)
		return
	}

	summary, err := h.service.Summarize(r.Context(), patientID, from, to, actor)
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		logger.Log.WithError(err).Error("failed to summarize statistics")
		http.Error(w, "failed to summarize statistics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.Log.WithError(err).Error("failed to encode statistics")
	}
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return &parsed, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
