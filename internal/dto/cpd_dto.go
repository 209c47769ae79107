package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

// CPDRecordSubmitRequest is the payload a member sends to claim CPD points.
// ProofReference is the opaque handle returned by the upload collaborator.
type CPDRecordSubmitRequest struct {
	ActivityName   string          `json:"activity_name" validate:"required,min=5,max=255"`
	Category       string          `json:"category" validate:"required,oneof=conference research training online_course peer_review"`
	ClaimedPoints  decimal.Decimal `json:"claimed_points"`
	CompletedOn    time.Time       `json:"completed_on" validate:"required"`
	ProofReference string          `json:"proof_reference" validate:"required,max=512"`
}

// CPDRecordResubmitRequest replaces the proof and optionally the points of a record
// returned for revision.
type CPDRecordResubmitRequest struct {
	ProofReference string           `json:"proof_reference" validate:"omitempty,max=512"`
	ClaimedPoints  *decimal.Decimal `json:"claimed_points"`
}

// CPDReviewRequest carries the reviewer comment for a review action.
type CPDReviewRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// CPDBulkApproveRequest lists records approved together.
type CPDBulkApproveRequest struct {
	RecordIDs []uint `json:"record_ids" validate:"required,min=1,max=200,dive,gt=0"`
}

// CPDRecordListRequest filters record listings.
type CPDRecordListRequest struct {
	Page     int
	PageSize int
	MemberID uint
	PeriodID uint
	Status   string
}

// CPDTransitionResponse serialises one entry of the transition log.
type CPDTransitionResponse struct {
	Action     workflow.Action `json:"action"`
	FromStatus workflow.Status `json:"from_status"`
	ToStatus   workflow.Status `json:"to_status"`
	ActorID    uint            `json:"actor_id"`
	ActorRole  string          `json:"actor_role"`
	Comment    string          `json:"comment,omitempty"`
	Points     decimal.Decimal `json:"points"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// CPDRecordResponse serialises an accrual record.
type CPDRecordResponse struct {
	ID              uint                    `json:"id"`
	MemberID        uint                    `json:"member_id"`
	PeriodID        uint                    `json:"period_id"`
	ActivityName    string                  `json:"activity_name"`
	Category        string                  `json:"category"`
	ClaimedPoints   decimal.Decimal         `json:"claimed_points"`
	CompletedOn     time.Time               `json:"completed_on"`
	ProofReference  string                  `json:"proof_reference"`
	Status          workflow.Status         `json:"status"`
	ReviewerComment string                  `json:"reviewer_comment,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	History         []CPDTransitionResponse `json:"history,omitempty"`
}

// CPDRecordListResponse wraps a paginated record listing.
type CPDRecordListResponse struct {
	Items      []CPDRecordResponse `json:"items"`
	Pagination PaginationMeta      `json:"pagination"`
}

// CPDProgressResponse is the dashboard view of a member's progress in one period.
type CPDProgressResponse struct {
	MemberID     uint            `json:"member_id"`
	PeriodID     uint            `json:"period_id"`
	PeriodName   string          `json:"period_name"`
	TotalPoints  decimal.Decimal `json:"total_points"`
	TargetPoints decimal.Decimal `json:"target_points"`
	Ratio        decimal.Decimal `json:"ratio"`
	Completed    bool            `json:"completed"`
	CacheHit     bool            `json:"cache_hit"`
}

// CPDTransitionResult reports the record state and ledger total after a review action.
type CPDTransitionResult struct {
	Record      CPDRecordResponse `json:"record"`
	TotalPoints decimal.Decimal   `json:"total_points"`
}

// CPDBulkItemResult is the outcome of one record in a bulk approval.
type CPDBulkItemResult struct {
	RecordID uint               `json:"record_id"`
	Success  bool               `json:"success"`
	Status   workflow.Status    `json:"status,omitempty"`
	Error    string             `json:"error,omitempty"`
	Record   *CPDRecordResponse `json:"record,omitempty"`
}

// CPDBulkApproveResponse aggregates per-record outcomes.
type CPDBulkApproveResponse struct {
	Results   []CPDBulkItemResult `json:"results"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// LedgerReconcileResponse reports the stored and recomputed totals of a member's period.
type LedgerReconcileResponse struct {
	MemberID  uint            `json:"member_id"`
	PeriodID  uint            `json:"period_id"`
	Stored    decimal.Decimal `json:"stored"`
	Computed  decimal.Decimal `json:"computed"`
	Drift     decimal.Decimal `json:"drift"`
	Corrected bool            `json:"corrected"`
}

// NewCPDRecordResponse converts a record model into its DTO.
func NewCPDRecordResponse(record models.AccrualRecord) CPDRecordResponse {
	history := make([]CPDTransitionResponse, 0, len(record.Transitions))
	for _, transition := range record.Transitions {
		history = append(history, CPDTransitionResponse{
			Action:     transition.Action,
			FromStatus: transition.FromStatus,
			ToStatus:   transition.ToStatus,
			ActorID:    transition.ActorID,
			ActorRole:  transition.ActorRole,
			Comment:    transition.Comment,
			Points:     transition.Points,
			OccurredAt: transition.OccurredAt,
		})
	}

	return CPDRecordResponse{
		ID:              record.ID,
		MemberID:        record.MemberID,
		PeriodID:        record.PeriodID,
		ActivityName:    record.ActivityName,
		Category:        record.Category,
		ClaimedPoints:   record.ClaimedPoints,
		CompletedOn:     record.CompletedOn,
		ProofReference:  record.ProofReference,
		Status:          record.Status,
		ReviewerComment: record.ReviewerComment,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
		History:         history,
	}
}
