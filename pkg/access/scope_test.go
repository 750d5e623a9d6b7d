package access

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/epicare/platform/pkg/common/models"
	"github.com/google/uuid"
)

func TestCanAccessPatient(t *testing.T) {
	scope := NewScope(DefaultPolicy())

	patientID := uuid.New()
	otherID := uuid.New()

	admin := models.Actor{ID: uuid.New(), Role: models.RoleAdmin}
	nurse := models.Actor{ID: uuid.New(), Role: models.RoleNurse}
	relative := models.Actor{ID: uuid.New(), Role: models.RoleRelative, AssignedPatientID: &patientID}
	unassigned := models.Actor{ID: uuid.New(), Role: models.RoleRelative}
	patient := models.Actor{ID: uuid.New(), Role: models.RolePatient, AssignedPatientID: &patientID}
	unknown := models.Actor{ID: uuid.New(), Role: models.Role("Doctor")}

	cases := []struct {
		name    string
		actor   models.Actor
		patient uuid.UUID
		want    bool
	}{
		{"admin sees any patient", admin, patientID, true},
		{"admin sees another patient", admin, otherID, true},
		{"nurse sees any patient", nurse, otherID, true},
		{"relative sees assigned patient", relative, patientID, true},
		{"relative denied other patient", relative, otherID, false},
		{"relative without assignment denied", unassigned, patientID, false},
		{"patient sees own record", patient, patientID, true},
		{"patient denied other record", patient, otherID, false},
		{"unknown role denied", unknown, patientID, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scope.CanAccessPatient(tc.actor, tc.patient); got != tc.want {
				t.Fatalf("CanAccessPatient = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanRegisterSeizure(t *testing.T) {
	scope := NewScope(DefaultPolicy())
	patientID := uuid.New()

	relative := models.Actor{ID: uuid.New(), Role: models.RoleRelative, AssignedPatientID: &patientID}
	if !scope.CanRegisterSeizure(relative, patientID) {
		t.Fatal("expected relative to register for assigned patient")
	}

	// Registration follows the access predicate: anyone who can see the
	// patient can register, including the patient themselves.
	patient := models.Actor{ID: uuid.New(), Role: models.RolePatient, AssignedPatientID: &patientID}
	if !scope.CanRegisterSeizure(patient, patientID) {
		t.Fatal("expected patient to register a seizure on their own record")
	}
	if scope.CanRegisterSeizure(patient, uuid.New()) {
		t.Fatal("expected patient to be denied registration for another patient")
	}
	if !scope.CanViewStatistics(patient, patientID) {
		t.Fatal("expected patient role to view own statistics")
	}
}

func TestCanListAllEpisodes(t *testing.T) {
	scope := NewScope(DefaultPolicy())

	if !scope.CanListAllEpisodes(models.Actor{Role: models.RoleAdmin}) {
		t.Fatal("expected admin to list all episodes")
	}
	if !scope.CanListAllEpisodes(models.Actor{Role: models.RoleNurse}) {
		t.Fatal("expected nurse to list all episodes")
	}
	if scope.CanListAllEpisodes(models.Actor{Role: models.RoleRelative}) {
		t.Fatal("expected relative to be denied listing all episodes")
	}
}

func TestLoadPolicyFromFile(t *testing.T) {
	content := `roles:
  admin:
    - access_all_patients
    - list_all_episodes
  relative:
    - access_assigned_patient
    - register_seizure
`
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	if !policy.Allows(models.RoleAdmin, CapAccessAllPatients) {
		t.Fatal("expected admin access_all_patients grant")
	}
	if policy.Allows(models.RoleAdmin, CapRegisterSeizure) {
		t.Fatal("did not expect admin register_seizure grant")
	}
	if !policy.Allows(models.RoleRelative, CapRegisterSeizure) {
		t.Fatal("expected relative register_seizure grant")
	}
	if policy.Allows(models.RoleNurse, CapAccessAllPatients) {
		t.Fatal("did not expect grants for a role absent from the file")
	}
}

func TestLoadPolicyRejectsUnknownCapability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  admin:\n    - fly\n"), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected unknown capability error")
	}
}

func TestLoadPolicyRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  doctor:\n    - view_statistics\n"), 0o600); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	if _, err := LoadPolicy(path); err == nil {
		t.Fatal("expected unknown role error")
	}
}

func TestLoadPolicyDefaultsOnEmptyPath(t *testing.T) {
	policy, err := LoadPolicy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !policy.Allows(models.RoleNurse, CapListAllEpisodes) {
		t.Fatal("expected default policy to grant nurse list_all_episodes")
	}
}
