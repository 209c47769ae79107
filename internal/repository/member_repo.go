package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

// StudentProfile holds the university details a member files after registration.
type StudentProfile struct {
	Institution  string
	MatricNumber string
	Level        int
}

// MemberRepository persists members and their committee memberships.
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id uint) (models.Member, error)
	MarkVerified(ctx context.Context, id uint, at time.Time, by uint) (bool, error)
	SetTier(ctx context.Context, id uint, level tier.Tier) error
	SetStudentProfile(ctx context.Context, id uint, profile StudentProfile) error
	AddCommittee(ctx context.Context, memberID, committeeID uint) error
	RemoveCommittee(ctx context.Context, memberID, committeeID uint) error
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository constructs the member repository.
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(member).Error
}

func (r *memberRepository) GetByID(ctx context.Context, id uint) (models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).
		Preload("Committees", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("committee_id ASC")
		}).
		First(&member, id).Error; err != nil {
		return models.Member{}, err
	}
	return member, nil
}

// MarkVerified flips the verification axis once. It reports false, without writing,
// when the member was already verified. Other columns are left as stored.
func (r *memberRepository) MarkVerified(ctx context.Context, id uint, at time.Time, by uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_at": at,
			"verified_by": by,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetTier writes only the tier column.
func (r *memberRepository) SetTier(ctx context.Context, id uint, level tier.Tier) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", id).
		Update("tier", level).Error
}

// SetStudentProfile writes only the student profile columns. A matric number held by
// another member surfaces as gorm.ErrDuplicatedKey.
func (r *memberRepository) SetStudentProfile(ctx context.Context, id uint, profile StudentProfile) error {
	return r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"institution":   profile.Institution,
			"matric_number": profile.MatricNumber,
			"study_level":   profile.Level,
		}).Error
}

func (r *memberRepository) AddCommittee(ctx context.Context, memberID, committeeID uint) error {
	membership := models.CommitteeMembership{MemberID: memberID, CommitteeID: committeeID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&membership).Error
}

func (r *memberRepository) RemoveCommittee(ctx context.Context, memberID, committeeID uint) error {
	return r.db.WithContext(ctx).
		Where("member_id = ? AND committee_id = ?", memberID, committeeID).
		Delete(&models.CommitteeMembership{}).Error
}
