package stats

import (
	"context"
	"errors"
	"time"

	"github.com/epicare/platform/pkg/access"
	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
)

var ErrAccessDenied = errors.New("access denied")

type Store interface {
	ListEpisodesInWindow(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]models.SeizureEpisode, error)
}

type Service struct {
	store Store
	scope *access.Scope
	cache *Cache
	now   func() time.Time
}

func NewService(store Store, scope *access.Scope, cache *Cache) *Service {
	return &Service{
		store: store,
		scope: scope,
		cache: cache,
		now:   time.Now,
	}
}

// Summarize computes per-patient statistics over [from, to]. Nil bounds
// default to the trailing year. An empty selection yields a zero-valued
// summary, never an error.
func (s *Service) Summarize(ctx context.Context, patientID uuid.UUID, from, to *time.Time, actor models.Actor) (models.StatisticsSummary, error) {
	if !s.scope.CanViewStatistics(actor, patientID) {
		return models.StatisticsSummary{}, ErrAccessDenied
	}

	now := s.now().UTC()
	fromValue := now.AddDate(-1, 0, 0)
	if from != nil {
		fromValue = from.UTC()
	}
	toValue := now
	if to != nil {
		toValue = to.UTC()
	}

	if summary, ok := s.cache.Get(ctx, patientID, fromValue, toValue); ok {
		return summary, nil
	}

	episodes, err := s.store.ListEpisodesInWindow(ctx, patientID, fromValue, toValue)
	if err != nil {
		return models.StatisticsSummary{}, err
	}

	summary := Aggregate(episodes, now)
	s.cache.Set(ctx, patientID, fromValue, toValue, summary)
	return summary, nil
}
