package dto

import (
	"time"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

// ArtifactCreateRequest publishes a gated resource or announcement.
type ArtifactCreateRequest struct {
	Kind             string `json:"kind" validate:"required,oneof=resource announcement"`
	Title            string `json:"title" validate:"required,min=2,max=200"`
	Body             string `json:"body" validate:"max=20000"`
	Category         string `json:"category" validate:"omitempty,oneof=student clinical research admin"`
	FileReference    string `json:"file_reference" validate:"omitempty,max=512"`
	RequiredTier     string `json:"required_tier" validate:"required,oneof=public student associate full fellow"`
	ScopeKind        string `json:"scope_kind" validate:"required,oneof=global institution committee"`
	ScopeInstitution string `json:"scope_institution" validate:"required_if=ScopeKind institution,max=32"`
	ScopeCommitteeID uint   `json:"scope_committee_id" validate:"required_if=ScopeKind committee"`
}

// ArtifactListRequest filters the member feed.
type ArtifactListRequest struct {
	Kind     string
	Page     int
	PageSize int
}

// ArtifactResponse serialises an artifact.
type ArtifactResponse struct {
	ID            uint         `json:"id"`
	Kind          string       `json:"kind"`
	Title         string       `json:"title"`
	Body          string       `json:"body"`
	Category      string       `json:"category,omitempty"`
	FileReference string       `json:"file_reference,omitempty"`
	RequiredTier  tier.Tier    `json:"required_tier"`
	Scope         access.Scope `json:"scope"`
	PublishedAt   time.Time    `json:"published_at"`
}

// ArtifactListResponse wraps the visible artifacts for a member.
type ArtifactListResponse struct {
	Items      []ArtifactResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}

// AccessDecisionResponse reports a gate decision with its reason code.
type AccessDecisionResponse struct {
	ArtifactID uint          `json:"artifact_id"`
	MemberID   uint          `json:"member_id"`
	Allowed    bool          `json:"allowed"`
	Reason     access.Reason `json:"reason,omitempty"`
}

// NewArtifactResponse converts an artifact model into its DTO.
func NewArtifactResponse(artifact models.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:            artifact.ID,
		Kind:          artifact.Kind,
		Title:         artifact.Title,
		Body:          artifact.Body,
		Category:      artifact.Category,
		FileReference: artifact.FileReference,
		RequiredTier:  artifact.RequiredTier,
		Scope:         artifact.Scope(),
		PublishedAt:   artifact.PublishedAt,
	}
}
