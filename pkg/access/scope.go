package access

import (
	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
)

// Scope resolves whether an actor may read or act on a given patient. Pure
// function of the actor and the policy table; every lifecycle and statistics
// operation must pass through it before touching the store.
type Scope struct {
	policy Policy
}

func NewScope(policy Policy) *Scope {
	return &Scope{policy: policy}
}

func (s *Scope) CanAccessPatient(actor models.Actor, patientID uuid.UUID) bool {
	if !actor.Role.Valid() {
		return false
	}
	if s.policy.Allows(actor.Role, CapAccessAllPatients) {
		return true
	}
	if s.policy.Allows(actor.Role, CapAccessAssignedPatient) {
		return actor.AssignedPatientID != nil && *actor.AssignedPatientID == patientID
	}
	return false
}

func (s *Scope) CanRegisterSeizure(actor models.Actor, patientID uuid.UUID) bool {
	return s.policy.Allows(actor.Role, CapRegisterSeizure) && s.CanAccessPatient(actor, patientID)
}

func (s *Scope) CanViewStatistics(actor models.Actor, patientID uuid.UUID) bool {
	return s.policy.Allows(actor.Role, CapViewStatistics) && s.CanAccessPatient(actor, patientID)
}

// CanListAllEpisodes gates the privileged cross-patient listing.
func (s *Scope) CanListAllEpisodes(actor models.Actor) bool {
	return s.policy.Allows(actor.Role, CapListAllEpisodes)
}

func (s *Scope) CanDeleteEpisode(actor models.Actor) bool {
	return s.policy.Allows(actor.Role, CapDeleteEpisode)
}
