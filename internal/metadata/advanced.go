package metadata

import (
	"fmt"
	"strings"
)

// AdvancedSettings groups the entity-level toggles. Indexes live in
// Schema.Lookups and browsing is derived from field flags.
type AdvancedSettings struct {
	Tracking    Tracking    `json:"tracking"`
	RestOptions RestOptions `json:"rest_options"`
}

type Tracking struct {
	AllowCreate bool `json:"allow_create"`
	AllowRead   bool `json:"allow_read"`
	AllowUpdate bool `json:"allow_update"`
	AllowDelete bool `json:"allow_delete"`
	Auditing    bool `json:"auditing"`
}

type RestOptions struct {
	Create     bool     `json:"create"`
	Read       bool     `json:"read"`
	Update     bool     `json:"update"`
	Delete     bool     `json:"delete"`
	FieldNames []string `json:"field_names,omitempty"`
}

func (a AdvancedSettings) Clone() AdvancedSettings {
	out := a
	out.RestOptions.FieldNames = append([]string(nil), a.RestOptions.FieldNames...)
	return out
}

// SecurityMode controls who may access an entity's instances.
type SecurityMode string

const (
	SecurityEveryone SecurityMode = "EVERYONE"
	SecurityOwner    SecurityMode = "OWNER"
	SecurityCreator  SecurityMode = "CREATOR"
	SecurityUsers    SecurityMode = "USERS"
	SecurityRoles    SecurityMode = "ROLES"
)

var securityModes = []SecurityMode{SecurityEveryone, SecurityOwner, SecurityCreator, SecurityUsers, SecurityRoles}

// ParseSecurityMode resolves a mode name case-insensitively.
func ParseSecurityMode(s string) (SecurityMode, error) {
	for _, m := range securityModes {
		if strings.EqualFold(string(m), s) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown security mode %q", s)
}

// IsValid reports whether the security mode is one of the defined modes.
func (m SecurityMode) IsValid() bool {
	_, err := ParseSecurityMode(string(m))
	return err == nil
}

// HasMembers reports whether the mode is restricted to an explicit member list.
func (m SecurityMode) HasMembers() bool {
	return m == SecurityUsers || m == SecurityRoles
}

type Security struct {
	Mode    SecurityMode `json:"mode"`
	Members []string     `json:"members,omitempty"`
}

func (s Security) Clone() Security {
	out := s
	out.Members = append([]string(nil), s.Members...)
	return out
}
