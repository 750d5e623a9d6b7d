package access

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/epicare/platform/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Capability names one thing a role is allowed to do. The scope predicate
// only ever consults the policy table; no call site compares role names.
type Capability string

const (
	CapAccessAllPatients     Capability = "access_all_patients"
	CapAccessAssignedPatient Capability = "access_assigned_patient"
	CapRegisterSeizure       Capability = "register_seizure"
	CapViewStatistics        Capability = "view_statistics"
	CapListAllEpisodes       Capability = "list_all_episodes"
	CapDeleteEpisode         Capability = "delete_episode"
)

var knownCapabilities = map[Capability]bool{
	CapAccessAllPatients:     true,
	CapAccessAssignedPatient: true,
	CapRegisterSeizure:       true,
	CapViewStatistics:        true,
	CapListAllEpisodes:       true,
	CapDeleteEpisode:         true,
}

type Policy struct {
	grants map[models.Role]map[Capability]bool
}

type policyFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadPolicy reads a role/capability table from a YAML file. An empty path
// yields the compiled-in default policy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Policy{}, err
	}

	var file policyFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return Policy{}, err
	}
	if len(file.Roles) == 0 {
		return Policy{}, fmt.Errorf("access policy %s defines no roles", path)
	}

	grants := make(map[models.Role]map[Capability]bool, len(file.Roles))
	for roleName, caps := range file.Roles {
		role, err := models.ParseRole(roleName)
		if err != nil {
			return Policy{}, err
		}
		grants[role] = make(map[Capability]bool, len(caps))
		for _, c := range caps {
			capability := Capability(c)
			if !knownCapabilities[capability] {
				return Policy{}, fmt.Errorf("unknown capability %q for role %s", c, role)
			}
			grants[role][capability] = true
		}
	}
	return Policy{grants: grants}, nil
}

func DefaultPolicy() Policy {
	return Policy{grants: map[models.Role]map[Capability]bool{
		models.RoleAdmin: {
			CapAccessAllPatients: true,
			CapRegisterSeizure:   true,
			CapViewStatistics:    true,
			CapListAllEpisodes:   true,
			CapDeleteEpisode:     true,
		},
		models.RoleNurse: {
			CapAccessAllPatients: true,
			CapRegisterSeizure:   true,
			CapViewStatistics:    true,
			CapListAllEpisodes:   true,
		},
		models.RoleRelative: {
			CapAccessAssignedPatient: true,
			CapRegisterSeizure:       true,
			CapViewStatistics:        true,
		},
		models.RolePatient: {
			CapAccessAssignedPatient: true,
			CapRegisterSeizure:       true,
			CapViewStatistics:        true,
		},
	}}
}

func (p Policy) Allows(role models.Role, capability Capability) bool {
	caps, ok := p.grants[role]
	if !ok {
		return false
	}
	return caps[capability]
}
