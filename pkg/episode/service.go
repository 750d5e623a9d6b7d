package episode

import (
	"context"
	"time"

	"github.com/epicare/platform/pkg/access"
	"github.com/epicare/platform/pkg/common/logger"
	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
)

// Store is the durable episode storage the lifecycle depends on. The
// single-open-episode and already-closed guards are enforced inside
// CreateEpisode and CloseEpisode atomically, not by callers.
type Store interface {
	GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error)
	ResolveSymptoms(ctx context.Context, ids []uuid.UUID) ([]models.Symptom, error)
	CreateEpisode(ctx context.Context, ep models.SeizureEpisode, symptomIDs []uuid.UUID) (models.SeizureEpisode, error)
	GetEpisode(ctx context.Context, id uuid.UUID) (models.SeizureEpisode, error)
	ListEpisodesByPatient(ctx context.Context, patientID uuid.UUID) ([]models.SeizureEpisode, error)
	ListAllEpisodes(ctx context.Context, limit int) ([]models.SeizureEpisode, error)
	CloseEpisode(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) (models.SeizureEpisode, error)
	SoftDeleteEpisode(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type SummaryInvalidator interface {
	Invalidate(ctx context.Context, patientID uuid.UUID) error
}

type Service struct {
	store     Store
	scope     *access.Scope
	events    EventPublisher
	summaries SummaryInvalidator
	now       func() time.Time
}

// NewService wires the lifecycle. events and summaries may be nil; event
// publishing and cache invalidation are best-effort and never fail an
// operation.
func NewService(store Store, scope *access.Scope, events EventPublisher, summaries SummaryInvalidator) *Service {
	return &Service{
		store:     store,
		scope:     scope,
		events:    events,
		summaries: summaries,
		now:       time.Now,
	}
}

func (s *Service) Start(ctx context.Context, req models.StartEpisodeRequest, actor models.Actor) (models.SeizureEpisode, error) {
	if !s.scope.CanRegisterSeizure(actor, req.PatientID) {
		return models.SeizureEpisode{}, ErrAccessDenied
	}

	seizureType := req.Type
	if seizureType == "" {
		seizureType = models.SeizureUnknown
	}
	if !seizureType.Valid() {
		return models.SeizureEpisode{}, ErrInvalidSeizureType
	}

	if _, err := s.store.GetPatient(ctx, req.PatientID); err != nil {
		return models.SeizureEpisode{}, err
	}
	if _, err := s.store.ResolveSymptoms(ctx, req.SymptomIDs); err != nil {
		return models.SeizureEpisode{}, err
	}

	now := s.now().UTC()
	episode := models.SeizureEpisode{
		ID:                uuid.New(),
		PatientID:         req.PatientID,
		StartTime:         now,
		Type:              seizureType,
		ConsciousnessLoss: req.ConsciousnessLoss,
		Notes:             req.Notes,
		RegisteredByID:    actor.ID,
		RegisteredByName:  actor.Name,
		CreatedAt:         now,
	}

	created, err := s.store.CreateEpisode(ctx, episode, req.SymptomIDs)
	if err != nil {
		return models.SeizureEpisode{}, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"episode_id": created.ID,
		"patient_id": created.PatientID,
		"type":       created.Type,
	}).Info("episode started")

	s.publish(ctx, models.EventEpisodeStarted, created, actor)
	s.invalidate(ctx, created.PatientID)
	return created, nil
}

func (s *Service) Stop(ctx context.Context, episodeID uuid.UUID, actor models.Actor) (models.SeizureEpisode, error) {
	existing, err := s.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return models.SeizureEpisode{}, err
	}
	if !s.scope.CanAccessPatient(actor, existing.PatientID) {
		return models.SeizureEpisode{}, ErrAccessDenied
	}

	closed, err := s.store.CloseEpisode(ctx, episodeID, actor.ID, s.now().UTC())
	if err != nil {
		return models.SeizureEpisode{}, err
	}

	durationMinutes, _ := closed.DurationMinutes()
	logger.Log.WithFields(map[string]interface{}{
		"episode_id":       closed.ID,
		"patient_id":       closed.PatientID,
		"duration_minutes": durationMinutes,
	}).Info("episode stopped")

	s.publish(ctx, models.EventEpisodeStopped, closed, actor)
	s.invalidate(ctx, closed.PatientID)
	return closed, nil
}

func (s *Service) GetByID(ctx context.Context, episodeID uuid.UUID, actor models.Actor) (models.SeizureEpisode, error) {
	episode, err := s.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return models.SeizureEpisode{}, err
	}
	if !s.scope.CanAccessPatient(actor, episode.PatientID) {
		return models.SeizureEpisode{}, ErrAccessDenied
	}
	return episode, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, actor models.Actor) ([]models.SeizureEpisode, error) {
	if !s.scope.CanAccessPatient(actor, patientID) {
		return nil, ErrAccessDenied
	}
	return s.store.ListEpisodesByPatient(ctx, patientID)
}

func (s *Service) ListAll(ctx context.Context, limit int, actor models.Actor) ([]models.SeizureEpisode, error) {
	if !s.scope.CanListAllEpisodes(actor) {
		return nil, ErrAccessDenied
	}
	return s.store.ListAllEpisodes(ctx, limit)
}

func (s *Service) Delete(ctx context.Context, episodeID uuid.UUID, actor models.Actor) error {
	episode, err := s.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if !s.scope.CanDeleteEpisode(actor) || !s.scope.CanAccessPatient(actor, episode.PatientID) {
		return ErrAccessDenied
	}

	if err := s.store.SoftDeleteEpisode(ctx, episodeID, actor.ID, s.now().UTC()); err != nil {
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"episode_id": episodeID,
		"patient_id": episode.PatientID,
	}).Info("episode deleted")

	s.publish(ctx, models.EventEpisodeDeleted, episode, actor)
	s.invalidate(ctx, episode.PatientID)
	return nil
}

func (s *Service) publish(ctx context.Context, eventType string, episode models.SeizureEpisode, actor models.Actor) {
	if s.events == nil {
		return
	}
	data := map[string]interface{}{
		"episode_id": episode.ID.String(),
		"patient_id": episode.PatientID.String(),
		"type":       string(episode.Type),
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
	}
	if episode.EndTime != nil {
		if minutes, ok := episode.DurationMinutes(); ok {
			data["duration_minutes"] = minutes
		}
	}
	if err := s.events.PublishEvent(ctx, eventType, "seizure-service", data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("failed to publish episode event")
	}
}

func (s *Service) invalidate(ctx context.Context, patientID uuid.UUID) {
	if s.summaries == nil {
		return
	}
	if err := s.summaries.Invalidate(ctx, patientID); err != nil {
		logger.Log.WithError(err).WithField("patient_id", patientID).Warn("failed to invalidate statistics cache")
	}
}
