package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of caller roles. Anything outside this set is
// rejected at the boundary; the rest of the code never compares raw strings.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleNurse    Role = "Nurse"
	RoleRelative Role = "Relative"
	RolePatient  Role = "Patient"
)

func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "admin":
		return RoleAdmin, nil
	case "nurse":
		return RoleNurse, nil
	case "relative":
		return RoleRelative, nil
	case "patient":
		return RolePatient, nil
	}
	return "", fmt.Errorf("unknown role %q", value)
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleNurse, RoleRelative, RolePatient:
		return true
	}
	return false
}

// Actor is the authenticated caller as seen by the core: its role and, for
// Relative/Patient roles, the single patient it is bound to. Patient-role
// actors carry their own patient id in AssignedPatientID.
type Actor struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Role              Role       `json:"role"`
	AssignedPatientID *uuid.UUID `json:"assigned_patient_id,omitempty"`
}

type SeizureType string

const (
	SeizureTonicClonic   SeizureType = "TonicClonic"
	SeizureAbsence       SeizureType = "Absence"
	SeizureMyoclonic     SeizureType = "Myoclonic"
	SeizureAtonic        SeizureType = "Atonic"
	SeizureFocalAware    SeizureType = "FocalAware"
	SeizureFocalImpaired SeizureType = "FocalImpaired"
	SeizureUnknown       SeizureType = "Unknown"
)

func ParseSeizureType(value string) (SeizureType, error) {
	for _, t := range []SeizureType{
		SeizureTonicClonic, SeizureAbsence, SeizureMyoclonic, SeizureAtonic,
		SeizureFocalAware, SeizureFocalImpaired, SeizureUnknown,
	} {
		if strings.EqualFold(string(t), strings.TrimSpace(value)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown seizure type %q", value)
}

func (t SeizureType) Valid() bool {
	switch t {
	case SeizureTonicClonic, SeizureAbsence, SeizureMyoclonic, SeizureAtonic,
		SeizureFocalAware, SeizureFocalImpaired, SeizureUnknown:
		return true
	}
	return false
}

type Patient struct {
	ID          uuid.UUID  `json:"id"`
	Code        string     `json:"code"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth time.Time  `json:"date_of_birth"`
	Diagnosis   string     `json:"diagnosis,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type Symptom struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
}

// SeizureEpisode is one recorded seizure event. An episode without an end
// time is open; setting the end time closes it, and closed is terminal.
type SeizureEpisode struct {
	ID                uuid.UUID   `json:"id"`
	PatientID         uuid.UUID   `json:"patient_id"`
	StartTime         time.Time   `json:"start_time"`
	EndTime           *time.Time  `json:"end_time,omitempty"`
	Type              SeizureType `json:"type"`
	ConsciousnessLoss bool        `json:"consciousness_loss"`
	Notes             string      `json:"notes,omitempty"`
	Symptoms          []Symptom   `json:"symptoms,omitempty"`
	RegisteredByID    uuid.UUID   `json:"registered_by_id"`
	RegisteredByName  string      `json:"registered_by_name"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         *time.Time  `json:"updated_at,omitempty"`
	UpdatedByID       *uuid.UUID  `json:"updated_by_id,omitempty"`
}

func (e SeizureEpisode) Open() bool {
	return e.EndTime == nil
}

// Duration is defined only for closed episodes.
func (e SeizureEpisode) Duration() (time.Duration, bool) {
	if e.EndTime == nil {
		return 0, false
	}
	return e.EndTime.Sub(e.StartTime), true
}

func (e SeizureEpisode) DurationMinutes() (float64, bool) {
	d, ok := e.Duration()
	if !ok {
		return 0, false
	}
	return d.Minutes(), true
}

type StartEpisodeRequest struct {
	PatientID         uuid.UUID   `json:"patient_id"`
	Type              SeizureType `json:"type"`
	SymptomIDs        []uuid.UUID `json:"symptom_ids,omitempty"`
	ConsciousnessLoss bool        `json:"consciousness_loss"`
	Notes             string      `json:"notes,omitempty"`
}

// StatisticsSummary is derived, never persisted.
type StatisticsSummary struct {
	TotalSeizures          int                 `json:"total_seizures"`
	AverageDurationMinutes float64             `json:"average_duration_minutes"`
	SeizuresThisMonth      int                 `json:"seizures_this_month"`
	SeizuresByType         map[string]int      `json:"seizures_by_type"`
	MonthlyTrend           []MonthlyTrendEntry `json:"monthly_trend"`
}

// MonthlyTrendEntry aggregates one calendar month of episodes. Month is
// formatted "YYYY-MM" so lexicographic order is chronological order.
type MonthlyTrendEntry struct {
	Month                  string  `json:"month"`
	Count                  int     `json:"count"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
}

// Event bus payloads.
const (
	EventEpisodeStarted = "episode.started"
	EventEpisodeStopped = "episode.stopped"
	EventEpisodeDeleted = "episode.deleted"
)

type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
