package access

import "strings"

// ScopeKind identifies the audience restriction of an artifact.
type ScopeKind string

const (
	ScopeGlobal      ScopeKind = "global"
	ScopeInstitution ScopeKind = "institution"
	ScopeCommittee   ScopeKind = "committee"
)

// Scope is the visibility scope of an artifact. Only the reference matching Kind is meaningful.
type Scope struct {
	Kind          ScopeKind `json:"kind"`
	InstitutionID string    `json:"institution_id,omitempty"`
	CommitteeID   uint      `json:"committee_id,omitempty"`
}

// Global returns the organisation-wide scope.
func Global() Scope {
	return Scope{Kind: ScopeGlobal}
}

// Institution returns a scope targeting members of one institution.
func Institution(id string) Scope {
	return Scope{Kind: ScopeInstitution, InstitutionID: normalizeInstitution(id)}
}

// Committee returns a scope private to one committee.
func Committee(id uint) Scope {
	return Scope{Kind: ScopeCommittee, CommitteeID: id}
}

// Audience returns the predicate selecting the principals a scope admits.
// Scopes of unknown kind, or missing their reference, admit nobody.
func Audience(scope Scope) func(Principal) bool {
	switch scope.Kind {
	case ScopeGlobal:
		return func(Principal) bool { return true }
	case ScopeInstitution:
		target := normalizeInstitution(scope.InstitutionID)
		if target == "" {
			return func(Principal) bool { return false }
		}
		return func(p Principal) bool {
			return normalizeInstitution(p.Institution) == target
		}
	case ScopeCommittee:
		if scope.CommitteeID == 0 {
			return func(Principal) bool { return false }
		}
		return func(p Principal) bool {
			return p.InCommittee(scope.CommitteeID)
		}
	default:
		return func(Principal) bool { return false }
	}
}

func normalizeInstitution(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
