package models

import (
	"time"

	"github.com/noah-isme/naa-portal-api/internal/access"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

// Member is a registered principal of the association.
type Member struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Username    string     `gorm:"size:150;uniqueIndex;not null" json:"username"`
	Email       string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Phone       string     `gorm:"size:15" json:"phone"`
	Tier        tier.Tier  `gorm:"size:20;not null;index" json:"tier"`
	Verified    bool       `gorm:"not null;default:false;index" json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at"`
	VerifiedBy  *uint      `json:"verified_by"`
	Institution string     `gorm:"size:32;index" json:"institution"`
	// MatricNumber is nil until a student profile is filed; NULLs do not collide on the unique index.
	MatricNumber *string               `gorm:"size:30;uniqueIndex" json:"matric_number"`
	StudyLevel   int                   `gorm:"not null;default:0" json:"study_level"`
	Committees   []CommitteeMembership `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE" json:"committees"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// HasStudentProfile reports whether the member filed their university details.
func (m Member) HasStudentProfile() bool {
	return m.MatricNumber != nil && m.Institution != ""
}

// CommitteeMembership links a member to a committee.
type CommitteeMembership struct {
	MemberID    uint      `gorm:"primaryKey" json:"member_id"`
	CommitteeID uint      `gorm:"primaryKey" json:"committee_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// CommitteeIDs returns the committees the member belongs to.
func (m Member) CommitteeIDs() []uint {
	ids := make([]uint, 0, len(m.Committees))
	for _, membership := range m.Committees {
		ids = append(ids, membership.CommitteeID)
	}
	return ids
}

// Principal converts the member into the view evaluated by the access gate.
func (m Member) Principal() access.Principal {
	committees := make(map[uint]struct{}, len(m.Committees))
	for _, membership := range m.Committees {
		committees[membership.CommitteeID] = struct{}{}
	}

	return access.Principal{
		ID:          m.ID,
		Tier:        m.Tier,
		Verified:    m.Verified,
		Institution: m.Institution,
		Committees:  committees,
	}
}
