package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/epicare/platform/pkg/common/logger"
	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache keeps computed summaries in Redis so repeated dashboard reads skip
// the episode scan. Lifecycle writes invalidate the patient's entries.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(patientID uuid.UUID, from, to time.Time) string {
	return fmt.Sprintf("stats:%s:%d:%d", patientID, from.Unix(), to.Unix())
}

func (c *Cache) Get(ctx context.Context, patientID uuid.UUID, from, to time.Time) (models.StatisticsSummary, bool) {
	if c == nil || c.client == nil {
		return models.StatisticsSummary{}, false
	}
	raw, err := c.client.Get(ctx, summaryKey(patientID, from, to)).Result()
	if err != nil {
		return models.StatisticsSummary{}, false
	}
	var summary models.StatisticsSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return models.StatisticsSummary{}, false
	}
	return summary, true
}

func (c *Cache) Set(ctx context.Context, patientID uuid.UUID, from, to time.Time, summary models.StatisticsSummary) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(patientID, from, to), data, c.ttl).Err(); err != nil {
		logger.Log.WithError(err).Debug("failed to cache statistics summary")
	}
}

// Invalidate drops every cached window for the patient.
func (c *Cache) Invalidate(ctx context.Context, patientID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	pattern := fmt.Sprintf("stats:%s:*", patientID)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
