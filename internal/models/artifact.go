package models

import (
	"time"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

// Artifact kinds.
const (
	ArtifactKindResource     = "resource"
	ArtifactKindAnnouncement = "announcement"
)

// Artifact is a tier-gated resource or announcement.
type Artifact struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	Kind             string           `gorm:"size:32;not null;index" json:"kind"`
	Title            string           `gorm:"size:200;not null" json:"title"`
	Body             string           `gorm:"type:text" json:"body"`
	Category         string           `gorm:"size:32" json:"category"`
	FileReference    string           `gorm:"size:512" json:"file_reference"`
	RequiredTier     tier.Tier        `gorm:"size:20;not null" json:"required_tier"`
	ScopeKind        access.ScopeKind `gorm:"size:20;not null" json:"scope_kind"`
	ScopeInstitution string           `gorm:"size:32" json:"scope_institution"`
	ScopeCommitteeID uint             `json:"scope_committee_id"`
	CreatedBy        uint             `json:"created_by"`
	PublishedAt      time.Time        `gorm:"index" json:"published_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Scope returns the artifact's visibility scope.
func (a Artifact) Scope() access.Scope {
	switch a.ScopeKind {
	case access.ScopeInstitution:
		return access.Institution(a.ScopeInstitution)
	case access.ScopeCommittee:
		return access.Committee(a.ScopeCommitteeID)
	case access.ScopeGlobal:
		return access.Global()
	default:
		return access.Scope{Kind: a.ScopeKind}
	}
}

// Gate converts the artifact into the view evaluated by the access gate.
func (a Artifact) Gate() access.Artifact {
	return access.Artifact{
		ID:           a.ID,
		RequiredTier: a.RequiredTier,
		Scope:        a.Scope(),
	}
}
