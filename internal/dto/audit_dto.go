package dto

import (
	"time"

	"github.com/noah-isme/naa-portal-api/internal/models"
)

// AuditListRequest filters the staff audit trail. Zero values match everything.
type AuditListRequest struct {
	Page       int
	PageSize   int
	ActorID    uint
	EntityID   uint
	Action     string
	EntityType string
}

// AuditEntryResponse is one audit trail entry, with contact details already masked.
type AuditEntryResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

type AuditListResponse struct {
	Items      []AuditEntryResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

func NewAuditEntryResponse(entry models.ActivityLog) AuditEntryResponse {
	metadata := map[string]interface{}{}
	for key, value := range entry.Metadata {
		metadata[key] = value
	}
	return AuditEntryResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
		CreatedAt:  entry.CreatedAt,
	}
}
