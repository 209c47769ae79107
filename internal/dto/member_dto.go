package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

// MemberRegisterRequest captures the self-service registration payload.
type MemberRegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=150,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"omitempty,max=15"`
	Tier        string `json:"tier" validate:"omitempty,oneof=public student"`
	Institution string `json:"institution" validate:"omitempty,max=32"`
}

// StudentProfileRequest files or replaces a member's university details.
type StudentProfileRequest struct {
	Institution  string `json:"institution" validate:"required,max=32"`
	MatricNumber string `json:"matric_number" validate:"required,max=40"`
	Level        int    `json:"level" validate:"required,oneof=100 200 300 400 500"`
}

// MemberTierRequest promotes or demotes a member.
type MemberTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=public student associate full fellow"`
}

// MemberResponse serialises a member with the current period accrual total.
type MemberResponse struct {
	ID                  uint            `json:"id"`
	Username            string          `json:"username"`
	Email               string          `json:"email"`
	Phone               string          `json:"phone,omitempty"`
	Tier                tier.Tier       `json:"tier"`
	Verified            bool            `json:"verified"`
	VerifiedAt          *time.Time      `json:"verified_at,omitempty"`
	Institution         string          `json:"institution,omitempty"`
	MatricNumber        string          `json:"matric_number,omitempty"`
	StudyLevel          int             `json:"study_level,omitempty"`
	Committees          []uint          `json:"committees"`
	AccrualPeriodPoints decimal.Decimal `json:"accrual_period_points"`
	CreatedAt           time.Time       `json:"created_at"`
}

// NewMemberResponse converts a member model into its DTO.
func NewMemberResponse(member models.Member, points decimal.Decimal) MemberResponse {
	matric := ""
	if member.MatricNumber != nil {
		matric = *member.MatricNumber
	}
	return MemberResponse{
		ID:                  member.ID,
		Username:            member.Username,
		Email:               member.Email,
		Phone:               member.Phone,
		Tier:                member.Tier,
		Verified:            member.Verified,
		VerifiedAt:          member.VerifiedAt,
		Institution:         member.Institution,
		MatricNumber:        matric,
		StudyLevel:          member.StudyLevel,
		Committees:          member.CommitteeIDs(),
		AccrualPeriodPoints: points,
		CreatedAt:           member.CreatedAt,
	}
}
