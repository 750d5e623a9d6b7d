package audit

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is one recorded action against an episode, written after the fact
// from the event bus. The lifecycle's own audit fields (created/updated
// actor and timestamps) live on the entity rows; this table is the
// cross-entity trail.
type Entry struct {
	ID        int64                  `json:"id"`
	ActorID   string                 `json:"actor_id"`
	ActorRole string                 `json:"actor_role,omitempty"`
	Action    string                 `json:"action"`
	Entity    string                 `json:"entity"`
	EntityID  string                 `json:"entity_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type entryModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ActorID   string `gorm:"index"`
	ActorRole string
	Action    string `gorm:"index"`
	Entity    string
	EntityID  string            `gorm:"index"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time
}

func (entryModel) TableName() string { return "audit_logs" }

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&entryModel{})
}

func (r *Repository) Record(ctx context.Context, entry Entry) error {
	row := entryModel{
		ActorID:   entry.ActorID,
		ActorRole: entry.ActorRole,
		Action:    entry.Action,
		Entity:    entry.Entity,
		EntityID:  entry.EntityID,
		Payload:   datatypes.JSONMap(entry.Payload),
		CreatedAt: entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []entryModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = Entry{
			ID:        row.ID,
			ActorID:   row.ActorID,
			ActorRole: row.ActorRole,
			Action:    row.Action,
			Entity:    row.Entity,
			EntityID:  row.EntityID,
			Payload:   map[string]interface{}(row.Payload),
			CreatedAt: row.CreatedAt,
		}
	}
	return entries, nil
}
