package episode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/epicare/platform/pkg/access"
	"github.com/epicare/platform/pkg/common/logger"
	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
)

func init() {
	logger.Init()
}

type fakeStore struct {
	patients map[uuid.UUID]models.Patient
	symptoms map[uuid.UUID]models.Symptom
	episodes map[uuid.UUID]*models.SeizureEpisode
	deleted  map[uuid.UUID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patients: map[uuid.UUID]models.Patient{},
		symptoms: map[uuid.UUID]models.Symptom{},
		episodes: map[uuid.UUID]*models.SeizureEpisode{},
		deleted:  map[uuid.UUID]bool{},
	}
}

func (f *fakeStore) addPatient() uuid.UUID {
	id := uuid.New()
	f.patients[id] = models.Patient{ID: id, Code: "P-" + id.String()[:8]}
	return id
}

func (f *fakeStore) addSymptom(name string) uuid.UUID {
	id := uuid.New()
	f.symptoms[id] = models.Symptom{ID: id, Name: name}
	return id
}

func (f *fakeStore) GetPatient(ctx context.Context, id uuid.UUID) (models.Patient, error) {
	patient, ok := f.patients[id]
	if !ok {
		return models.Patient{}, ErrPatientNotFound
	}
	return patient, nil
}

func (f *fakeStore) ResolveSymptoms(ctx context.Context, ids []uuid.UUID) ([]models.Symptom, error) {
	symptoms := make([]models.Symptom, 0, len(ids))
	for _, id := range ids {
		symptom, ok := f.symptoms[id]
		if !ok {
			return nil, ErrSymptomNotFound
		}
		symptoms = append(symptoms, symptom)
	}
	return symptoms, nil
}

func (f *fakeStore) CreateEpisode(ctx context.Context, ep models.SeizureEpisode, symptomIDs []uuid.UUID) (models.SeizureEpisode, error) {
	for _, existing := range f.episodes {
		if existing.PatientID == ep.PatientID && existing.EndTime == nil && !f.deleted[existing.ID] {
			return models.SeizureEpisode{}, ErrOpenEpisodeExists
		}
	}
	symptoms, err := f.ResolveSymptoms(ctx, symptomIDs)
	if err != nil {
		return models.SeizureEpisode{}, err
	}
	ep.Symptoms = symptoms
	stored := ep
	f.episodes[ep.ID] = &stored
	return stored, nil
}

func (f *fakeStore) GetEpisode(ctx context.Context, id uuid.UUID) (models.SeizureEpisode, error) {
	ep, ok := f.episodes[id]
	if !ok || f.deleted[id] {
		return models.SeizureEpisode{}, ErrEpisodeNotFound
	}
	return *ep, nil
}

func (f *fakeStore) ListEpisodesByPatient(ctx context.Context, patientID uuid.UUID) ([]models.SeizureEpisode, error) {
	var episodes []models.SeizureEpisode
	for _, ep := range f.episodes {
		if ep.PatientID == patientID && !f.deleted[ep.ID] {
			episodes = append(episodes, *ep)
		}
	}
	return episodes, nil
}

func (f *fakeStore) ListAllEpisodes(ctx context.Context, limit int) ([]models.SeizureEpisode, error) {
	var episodes []models.SeizureEpisode
	for _, ep := range f.episodes {
		if !f.deleted[ep.ID] {
			episodes = append(episodes, *ep)
		}
	}
	return episodes, nil
}

func (f *fakeStore) CloseEpisode(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) (models.SeizureEpisode, error) {
	ep, ok := f.episodes[id]
	if !ok || f.deleted[id] {
		return models.SeizureEpisode{}, ErrEpisodeNotFound
	}
	if ep.EndTime != nil {
		return models.SeizureEpisode{}, ErrEpisodeAlreadyClosed
	}
	end := at
	ep.EndTime = &end
	ep.UpdatedAt = &end
	ep.UpdatedByID = &actorID
	return *ep, nil
}

func (f *fakeStore) SoftDeleteEpisode(ctx context.Context, id uuid.UUID, actorID uuid.UUID, at time.Time) error {
	if _, ok := f.episodes[id]; !ok || f.deleted[id] {
		return ErrEpisodeNotFound
	}
	f.deleted[id] = true
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error {
	f.events = append(f.events, eventType)
	return nil
}

func newTestService(store Store) *Service {
	return NewService(store, access.NewScope(access.DefaultPolicy()), nil, nil)
}

func adminActor() models.Actor {
	return models.Actor{ID: uuid.New(), Name: "Anne Admin", Role: models.RoleAdmin}
}

func TestStartCreatesOpenEpisode(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	symptomID := store.addSymptom("aura")
	service := newTestService(store)
	actor := adminActor()

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{
		PatientID:         patientID,
		Type:              models.SeizureTonicClonic,
		SymptomIDs:        []uuid.UUID{symptomID},
		ConsciousnessLoss: true,
		Notes:             "observed during rounds",
	}, actor)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !episode.Open() {
		t.Fatal("expected new episode to be open")
	}
	if episode.StartTime.IsZero() {
		t.Fatal("expected start time to be set")
	}
	if episode.RegisteredByID != actor.ID || episode.RegisteredByName != actor.Name {
		t.Fatalf("expected registeredBy %s/%s, got %s/%s", actor.ID, actor.Name, episode.RegisteredByID, episode.RegisteredByName)
	}
	if len(episode.Symptoms) != 1 || episode.Symptoms[0].Name != "aura" {
		t.Fatalf("expected attached symptom, got %v", episode.Symptoms)
	}
	if _, ok := episode.Duration(); ok {
		t.Fatal("duration must be undefined while open")
	}
}

func TestStartDefaultsTypeToUnknown(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, adminActor())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if episode.Type != models.SeizureUnknown {
		t.Fatalf("expected Unknown type, got %s", episode.Type)
	}
}

func TestStartRejectsInvalidType(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	_, err := service.Start(context.Background(), models.StartEpisodeRequest{
		PatientID: patientID,
		Type:      models.SeizureType("GrandMal"),
	}, adminActor())
	if !errors.Is(err, ErrInvalidSeizureType) {
		t.Fatalf("expected ErrInvalidSeizureType, got %v", err)
	}
}

func TestStartUnknownPatientFails(t *testing.T) {
	service := newTestService(newFakeStore())

	_, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: uuid.New()}, adminActor())
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestStartUnknownSymptomFails(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	_, err := service.Start(context.Background(), models.StartEpisodeRequest{
		PatientID:  patientID,
		SymptomIDs: []uuid.UUID{uuid.New()},
	}, adminActor())
	if !errors.Is(err, ErrSymptomNotFound) {
		t.Fatalf("expected ErrSymptomNotFound, got %v", err)
	}
}

func TestStartSecondOpenEpisodeConflicts(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)
	actor := adminActor()

	if _, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	_, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor)
	if !errors.Is(err, ErrOpenEpisodeExists) {
		t.Fatalf("expected ErrOpenEpisodeExists, got %v", err)
	}
}

func TestStartAllowedAgainAfterStop(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)
	actor := adminActor()

	first, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor)
	if err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if _, err := service.Stop(context.Background(), first.ID, actor); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor); err != nil {
		t.Fatalf("second Start after stop failed: %v", err)
	}
}

func TestStartDeniedForUnassignedRelative(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	relative := models.Actor{ID: uuid.New(), Role: models.RoleRelative}
	_, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, relative)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestStartAllowedForPatientOnOwnRecord(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	patient := models.Actor{ID: uuid.New(), Name: "Per Patient", Role: models.RolePatient, AssignedPatientID: &patientID}
	if _, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, patient); err != nil {
		t.Fatalf("expected patient to start an episode on their own record, got %v", err)
	}
}

func TestStopComputesDuration(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)
	actor := adminActor()

	started := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return started }

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	service.now = func() time.Time { return started.Add(3 * time.Minute) }
	closed, err := service.Stop(context.Background(), episode.ID, actor)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	minutes, ok := closed.DurationMinutes()
	if !ok {
		t.Fatal("expected closed episode to have a duration")
	}
	if minutes != 3 {
		t.Fatalf("expected 3 minute duration, got %v", minutes)
	}
	if closed.EndTime == nil || closed.EndTime.Before(closed.StartTime) {
		t.Fatalf("expected end time at or after start time, got %v", closed.EndTime)
	}
}

func TestStopAlreadyClosedFails(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)
	actor := adminActor()

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	closed, err := service.Stop(context.Background(), episode.ID, actor)
	if err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}

	_, err = service.Stop(context.Background(), episode.ID, actor)
	if !errors.Is(err, ErrEpisodeAlreadyClosed) {
		t.Fatalf("expected ErrEpisodeAlreadyClosed, got %v", err)
	}

	// The original end time must survive the failed second stop.
	after, err := store.GetEpisode(context.Background(), episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if !after.EndTime.Equal(*closed.EndTime) {
		t.Fatalf("end time mutated by failed stop: %v != %v", after.EndTime, closed.EndTime)
	}
}

func TestStopMissingEpisodeFails(t *testing.T) {
	service := newTestService(newFakeStore())

	_, err := service.Stop(context.Background(), uuid.New(), adminActor())
	if !errors.Is(err, ErrEpisodeNotFound) {
		t.Fatalf("expected ErrEpisodeNotFound, got %v", err)
	}
}

func TestStopDeniedForOtherPatientsRelative(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	otherID := store.addPatient()
	service := newTestService(store)

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, adminActor())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	relative := models.Actor{ID: uuid.New(), Role: models.RoleRelative, AssignedPatientID: &otherID}
	_, err = service.Stop(context.Background(), episode.ID, relative)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestListAllRequiresPrivilegedRole(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	if _, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, adminActor()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	relative := models.Actor{ID: uuid.New(), Role: models.RoleRelative, AssignedPatientID: &patientID}
	if _, err := service.ListAll(context.Background(), 10, relative); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	episodes, err := service.ListAll(context.Background(), 10, models.Actor{ID: uuid.New(), Role: models.RoleNurse})
	if err != nil {
		t.Fatalf("ListAll failed for nurse: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}
}

func TestDeleteHidesEpisodeFromReads(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)
	actor := adminActor()

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := service.Delete(context.Background(), episode.ID, actor); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := service.GetByID(context.Background(), episode.ID, actor); !errors.Is(err, ErrEpisodeNotFound) {
		t.Fatalf("expected ErrEpisodeNotFound after delete, got %v", err)
	}
	episodes, err := service.ListByPatient(context.Background(), patientID, actor)
	if err != nil {
		t.Fatalf("ListByPatient failed: %v", err)
	}
	if len(episodes) != 0 {
		t.Fatalf("expected no episodes after delete, got %d", len(episodes))
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	service := newTestService(store)

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, adminActor())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	nurse := models.Actor{ID: uuid.New(), Role: models.RoleNurse}
	if err := service.Delete(context.Background(), episode.ID, nurse); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for nurse delete, got %v", err)
	}
}

func TestLifecyclePublishesEvents(t *testing.T) {
	store := newFakeStore()
	patientID := store.addPatient()
	publisher := &fakePublisher{}
	service := NewService(store, access.NewScope(access.DefaultPolicy()), publisher, nil)
	actor := adminActor()

	episode, err := service.Start(context.Background(), models.StartEpisodeRequest{PatientID: patientID}, actor)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := service.Stop(context.Background(), episode.ID, actor); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if len(publisher.events) != 2 ||
		publisher.events[0] != models.EventEpisodeStarted ||
		publisher.events[1] != models.EventEpisodeStopped {
		t.Fatalf("unexpected events: %v", publisher.events)
	}
}
