// Package access decides whether a principal may view a tier-gated artifact.
//
// Verification and tier are independent axes: a principal must be verified to see
// anything above Public, must rank at or above the artifact's required tier, and
// must fall inside the artifact's audience scope. Every denial carries a reason so
// callers can render distinct guidance.
package access

import "github.com/noah-isme/naa-portal-api/internal/tier"

// Reason explains why an artifact was denied.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonUnverified       Reason = "unverified"
	ReasonTierInsufficient Reason = "tier_insufficient"
	ReasonScopeMismatch    Reason = "scope_mismatch"
)

// Principal is the already-authenticated viewer.
type Principal struct {
	ID          uint
	Tier        tier.Tier
	Verified    bool
	Institution string
	Committees  map[uint]struct{}
}

// InCommittee reports whether the principal belongs to the committee.
func (p Principal) InCommittee(id uint) bool {
	_, ok := p.Committees[id]
	return ok
}

// Artifact is anything gated by tier and scope: resources, announcements.
type Artifact struct {
	ID           uint
	RequiredTier tier.Tier
	Scope        Scope
}

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason Reason) Decision { return Decision{Reason: reason} }

// CanView evaluates the gate. An artifact gated on a tier outside the hierarchy is
// denied to everyone. It has no side effects and is safe for concurrent use.
func CanView(p Principal, a Artifact) Decision {
	if !a.RequiredTier.Valid() {
		return deny(ReasonTierInsufficient)
	}
	if a.RequiredTier != tier.Public {
		if !p.Verified {
			return deny(ReasonUnverified)
		}
		if !tier.IsAtLeast(p.Tier, a.RequiredTier) {
			return deny(ReasonTierInsufficient)
		}
	}

	if !Audience(a.Scope)(p) {
		return deny(ReasonScopeMismatch)
	}

	return allow()
}

// Visible returns the artifacts p may view, preserving input order.
func Visible(p Principal, artifacts []Artifact) []Artifact {
	visible := make([]Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if CanView(p, a).Allowed {
			visible = append(visible, a)
		}
	}
	return visible
}
