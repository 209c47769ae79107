package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

// ErrImmutableTransition is returned when code attempts to rewrite the transition log.
var ErrImmutableTransition = errors.New("record transitions are append-only")

// Activity categories accepted for CPD records.
const (
	CategoryConference   = "conference"
	CategoryResearch     = "research"
	CategoryTraining     = "training"
	CategoryOnlineCourse = "online_course"
	CategoryPeerReview   = "peer_review"
)

// AccrualPeriod is a window over which CPD points accumulate toward a target.
// The window is half-open: StartsOn is included, EndsOn is not.
type AccrualPeriod struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"size:100;not null" json:"name"`
	StartsOn     time.Time       `gorm:"not null;index" json:"starts_on"`
	EndsOn       time.Time       `gorm:"not null" json:"ends_on"`
	TargetPoints decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"target_points"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Contains reports whether t falls inside the period.
func (p AccrualPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartsOn) && t.Before(p.EndsOn)
}

// Overlaps reports whether two periods share any instant.
func (p AccrualPeriod) Overlaps(other AccrualPeriod) bool {
	return p.StartsOn.Before(other.EndsOn) && other.StartsOn.Before(p.EndsOn)
}

// AccrualRecord is one point-bearing CPD activity submitted by a member.
type AccrualRecord struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	MemberID        uint               `gorm:"not null;index" json:"member_id"`
	PeriodID        uint               `gorm:"not null;index" json:"period_id"`
	ActivityName    string             `gorm:"size:255;not null" json:"activity_name"`
	Category        string             `gorm:"size:32;not null" json:"category"`
	ClaimedPoints   decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"claimed_points"`
	CompletedOn     time.Time          `gorm:"not null" json:"completed_on"`
	ProofReference  string             `gorm:"size:512;not null" json:"proof_reference"`
	Status          workflow.Status    `gorm:"size:32;not null;index" json:"status"`
	ReviewerComment string             `gorm:"type:text" json:"reviewer_comment"`
	Version         uint               `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Transitions     []RecordTransition `gorm:"foreignKey:RecordID" json:"transitions,omitempty"`
}

// RecordTransition is one entry of a record's append-only status history.
type RecordTransition struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	RecordID   uint              `gorm:"not null;index" json:"record_id"`
	Action     workflow.Action   `gorm:"size:32;not null" json:"action"`
	FromStatus workflow.Status   `gorm:"size:32" json:"from_status"`
	ToStatus   workflow.Status   `gorm:"size:32;not null" json:"to_status"`
	ActorID    uint              `gorm:"not null" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Comment    string            `gorm:"type:text" json:"comment"`
	Points     decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"points"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	OccurredAt time.Time         `gorm:"not null;index" json:"occurred_at"`
}

// BeforeUpdate keeps the log append-only.
func (t *RecordTransition) BeforeUpdate(tx *gorm.DB) error {
	return ErrImmutableTransition
}

// BeforeDelete keeps the log append-only.
func (t *RecordTransition) BeforeDelete(tx *gorm.DB) error {
	return ErrImmutableTransition
}

// LedgerBalance is the running CPD total of one member for one period.
// Version increases on every adjustment and guards concurrent writers.
type LedgerBalance struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	MemberID  uint            `gorm:"not null;uniqueIndex:idx_ledger_member_period" json:"member_id"`
	PeriodID  uint            `gorm:"not null;uniqueIndex:idx_ledger_member_period" json:"period_id"`
	Points    decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"points"`
	Version   uint            `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}
