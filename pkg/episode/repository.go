package episode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type patientModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code        string    `gorm:"uniqueIndex"`
	FirstName   string
	LastName    string
	DateOfBirth time.Time
	Diagnosis   string
	Notes       string
	IsDeleted   bool `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

func (patientModel) TableName() string { return "patients" }

type symptomModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name        string    `gorm:"uniqueIndex"`
	Description string
	IsDeleted   bool `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

func (symptomModel) TableName() string { return "symptoms" }

type episodeModel struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	PatientID         uuid.UUID `gorm:"type:uuid;index"`
	StartTime         time.Time `gorm:"index"`
	EndTime           *time.Time
	Type              string `gorm:"index"`
	ConsciousnessLoss bool
	Notes             string
	RegisteredByID    uuid.UUID `gorm:"type:uuid"`
	RegisteredByName  string
	IsDeleted         bool `gorm:"index"`
	CreatedAt         time.Time
	UpdatedAt         *time.Time
	UpdatedByID       *uuid.UUID `gorm:"type:uuid"`
}

func (episodeModel) TableName() string { return "seizure_episodes" }

type episodeSymptomModel struct {
	EpisodeID uuid.UUID `gorm:"type:uuid;primaryKey"`
	SymptomID uuid.UUID `gorm:"type:uuid;primaryKey"`
}

func (episodeSymptomModel) TableName() string { return "episode_symptoms" }

func (r *Repository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&patientModel{}, &symptomModel{}, &episodeModel{}, &episodeSymptomModel{}); err != nil {
		return err
	}
	// Partial unique index backing the one-open-episode-per-patient
	// invariant. Concurrent inserts past the in-transaction check hit this
	// instead of creating a second open episode.
	return r.db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_seizure_episodes_one_open
		 ON seizure_episodes (patient_id)
		 WHERE end_time IS NULL AND NOT is_deleted`,
	).Error
}

func (r *Repository) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	var patient patientModel
	err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&patient).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Patient{}, ErrPatientNotFound
	}
	if err != nil {
		return models.Patient{}, err
	}
	return mapPatientModel(patient), nil
}

// ResolveSymptoms loads live symptoms for the given ids and fails when any
// id has no live row.
func (r *Repository) ResolveSymptoms(ctx context.Context, ids []uuid.UUID) ([]models.Symptom, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []symptomModel
	if err := r.db.WithContext(ctx).Where("id IN ? AND is_deleted = ?", ids, false).Find(&rows).Error; err != nil {
		return nil, err
	}

	found := make(map[uuid.UUID]models.Symptom, len(rows))
	for _, row := range rows {
		found[row.ID] = mapSymptomModel(row)
	}

	symptoms := make([]models.Symptom, 0, len(ids))
	for _, id := range ids {
		symptom, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrSymptomNotFound, id)
		}
		symptoms = append(symptoms, symptom)
	}
	return symptoms, nil
}

// CreateEpisode inserts the episode and its symptom links in one
// transaction. The open-episode count runs under FOR UPDATE, and the partial
// unique index converts any racing insert into a conflict.
func (r *Repository) CreateEpisode(ctx context.Context, ep models.SeizureEpisode, symptomIDs []uuid.UUID) (models.SeizureEpisode, error) {
	row := episodeModel{
		ID:                ep.ID,
		PatientID:         ep.PatientID,
		StartTime:         ep.StartTime,
		EndTime:           nil,
		Type:              string(ep.Type),
		ConsciousnessLoss: ep.ConsciousnessLoss,
		Notes:             ep.Notes,
		RegisteredByID:    ep.RegisteredByID,
		RegisteredByName:  ep.RegisteredByName,
		CreatedAt:         ep.CreatedAt,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var open []episodeModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("patient_id = ? AND end_time IS NULL AND is_deleted = ?", ep.PatientID, false).
			Find(&open).Error
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return ErrOpenEpisodeExists
		}

		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrOpenEpisodeExists
			}
			return err
		}

		for _, symptomID := range symptomIDs {
			link := episodeSymptomModel{EpisodeID: row.ID, SymptomID: symptomID}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.SeizureEpisode{}, err
	}

	return r.GetEpisode(ctx, row.ID)
}

func (r *Repository) GetEpisode(ctx context.Context, id uuid.UUID) (models.SeizureEpisode, error) {
	var row episodeModel
	err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SeizureEpisode{}, ErrEpisodeNotFound
	}
	if err != nil {
		return models.SeizureEpisode{}, err
	}

	symptoms, err := r.loadSymptoms(ctx, []uuid.UUID{row.ID})
	if err != nil {
		return models.SeizureEpisode{}, err
	}
	return mapEpisodeModel(row, symptoms[row.ID]), nil
}

func (r *Repository) ListEpisodesByPatient(ctx context.Context, patientID uuid.UUID) ([]models.SeizureEpisode, error) {
	var rows []episodeModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND is_deleted = ?", patientID, false).
		Order("start_time DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.mapEpisodeRows(ctx, rows)
}

func (r *Repository) ListAllEpisodes(ctx context.Context, limit int) ([]models.SeizureEpisode, error) {
	query := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("start_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []episodeModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.mapEpisodeRows(ctx, rows)
}

// ListEpisodesInWindow selects non-deleted episodes whose start time falls
// inside [from, to], oldest first. Used by the statistics aggregator.
func (r *Repository) ListEpisodesInWindow(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]models.SeizureEpisode, error) {
	var rows []episodeModel
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND is_deleted = ? AND start_time >= ? AND start_time <= ?", patientID, false, from, to).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return r.mapEpisodeRows(ctx, rows)
}

// CloseEpisode re-reads the end time under FOR UPDATE in the same
// transaction that sets it, so two racing stops cannot both succeed.
func (r *Repository) CloseEpisode(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) (models.SeizureEpisode, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row episodeModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_deleted = ?", id, false).
			First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEpisodeNotFound
		}
		if err != nil {
			return err
		}
		if row.EndTime != nil {
			return ErrEpisodeAlreadyClosed
		}

		return tx.Model(&episodeModel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"end_time":      at,
			"updated_at":    at,
			"updated_by_id": actorID,
		}).Error
	})
	if err != nil {
		return models.SeizureEpisode{}, err
	}

	return r.GetEpisode(ctx, id)
}

func (r *Repository) SoftDeleteEpisode(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&episodeModel{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted":    true,
			"updated_at":    at,
			"updated_by_id": actorID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEpisodeNotFound
	}
	return nil
}

func (r *Repository) mapEpisodeRows(ctx context.Context, rows []episodeModel) ([]models.SeizureEpisode, error) {
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	symptoms, err := r.loadSymptoms(ctx, ids)
	if err != nil {
		return nil, err
	}

	episodes := make([]models.SeizureEpisode, len(rows))
	for i, row := range rows {
		episodes[i] = mapEpisodeModel(row, symptoms[row.ID])
	}
	return episodes, nil
}

func (r *Repository) loadSymptoms(ctx context.Context, episodeIDs []uuid.UUID) (map[uuid.UUID][]models.Symptom, error) {
	result := make(map[uuid.UUID][]models.Symptom)
	if len(episodeIDs) == 0 {
		return result, nil
	}

	var links []episodeSymptomModel
	if err := r.db.WithContext(ctx).Where("episode_id IN ?", episodeIDs).Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return result, nil
	}

	symptomIDs := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		symptomIDs = append(symptomIDs, link.SymptomID)
	}

	var rows []symptomModel
	if err := r.db.WithContext(ctx).Where("id IN ?", symptomIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Symptom, len(rows))
	for _, row := range rows {
		byID[row.ID] = mapSymptomModel(row)
	}

	for _, link := range links {
		if symptom, ok := byID[link.SymptomID]; ok {
			result[link.EpisodeID] = append(result[link.EpisodeID], symptom)
		}
	}
	return result, nil
}

func mapPatientModel(row patientModel) models.Patient {
	return models.Patient{
		ID:          row.ID,
		Code:        row.Code,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		DateOfBirth: row.DateOfBirth,
		Diagnosis:   row.Diagnosis,
		Notes:       row.Notes,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func mapSymptomModel(row symptomModel) models.Symptom {
	return models.Symptom{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
	}
}

func mapEpisodeModel(row episodeModel, symptoms []models.Symptom) models.SeizureEpisode {
	return models.SeizureEpisode{
		ID:                row.ID,
		PatientID:         row.PatientID,
		StartTime:         row.StartTime,
		EndTime:           row.EndTime,
		Type:              models.SeizureType(row.Type),
		ConsciousnessLoss: row.ConsciousnessLoss,
		Notes:             row.Notes,
		Symptoms:          symptoms,
		RegisteredByID:    row.RegisteredByID,
		RegisteredByName:  row.RegisteredByName,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		UpdatedByID:       row.UpdatedByID,
	}
}
