package audit

import (
	"context"
	"fmt"

	"github.com/epicare/platform/pkg/common/logger"
	"github.com/epicare/platform/pkg/common/models"
)

// Recorder turns episode lifecycle events into audit entries.
type Recorder struct {
	repo *Repository
}

func NewRecorder(repo *Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) HandleEvent(ctx context.Context, event models.Event) error {
	episodeID, ok := event.Data["episode_id"].(string)
	if !ok || episodeID == "" {
		logger.Log.WithField("event_id", event.ID).Warn("episode event missing episode id")
		return nil
	}

	actorID, _ := event.Data["actor_id"].(string)
	actorRole, _ := event.Data["actor_role"].(string)

	entry := Entry{
		ActorID:   actorID,
		ActorRole: actorRole,
		Action:    event.Type,
		Entity:    "episode",
		EntityID:  episodeID,
		Payload:   event.Data,
		CreatedAt: event.Timestamp,
	}
	if err := r.repo.Record(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"action":     event.Type,
		"episode_id": episodeID,
	}).Debug("audit entry recorded")
	return nil
}
