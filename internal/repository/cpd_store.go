package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

var (
	// ErrStaleRecord indicates the record left the expected status or version before the update landed.
	ErrStaleRecord = errors.New("record changed concurrently")
	// ErrBalanceConflict indicates another writer adjusted the same ledger balance first.
	ErrBalanceConflict = errors.New("ledger balance changed concurrently")
)

// RecordFilter narrows accrual record queries.
type RecordFilter struct {
	Page     int
	PageSize int
	MemberID uint
	PeriodID uint
	Status   workflow.Status
}

// CPDStore persists accrual periods, records, their transition log and ledger balances.
// Every method runs on the store's connection, so a store handed to a Transaction
// callback scopes all work to that unit of work.
type CPDStore interface {
	Transaction(ctx context.Context, fn func(store CPDStore) error) error

	LockPeriods(ctx context.Context) error
	CreatePeriod(ctx context.Context, period *models.AccrualPeriod) error
	GetPeriod(ctx context.Context, id uint) (models.AccrualPeriod, error)
	ListPeriods(ctx context.Context) ([]models.AccrualPeriod, error)

	CreateRecord(ctx context.Context, record *models.AccrualRecord) error
	GetRecord(ctx context.Context, id uint) (models.AccrualRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]models.AccrualRecord, int64, error)
	ListVerified(ctx context.Context, memberID, periodID uint) ([]models.AccrualRecord, error)
	UpdateRecord(ctx context.Context, record *models.AccrualRecord, expected workflow.Status, expectedVersion uint) error
	AppendTransition(ctx context.Context, transition *models.RecordTransition) error

	GetBalance(ctx context.Context, memberID, periodID uint) (models.LedgerBalance, error)
	SaveBalance(ctx context.Context, balance *models.LedgerBalance, points decimal.Decimal) error
}

type cpdStore struct {
	db *gorm.DB
}

// NewCPDStore constructs the CPD store.
func NewCPDStore(db *gorm.DB) CPDStore {
	return &cpdStore{db: db}
}

// Transaction runs fn in one unit of work. Nested calls become savepoints.
func (s *cpdStore) Transaction(ctx context.Context, fn func(store CPDStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&cpdStore{db: tx})
	})
}

// periodLockKey names the advisory lock serialising period creation.
const periodLockKey = 0x4e4141_0001

// LockPeriods serialises period writers until the surrounding transaction ends, so an
// overlap check followed by an insert cannot race another writer. Only PostgreSQL needs
// it; SQLite already admits one writer at a time.
func (s *cpdStore) LockPeriods(ctx context.Context) error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}
	return s.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", periodLockKey).Error
}

func (s *cpdStore) CreatePeriod(ctx context.Context, period *models.AccrualPeriod) error {
	return s.db.WithContext(ctx).Create(period).Error
}

func (s *cpdStore) GetPeriod(ctx context.Context, id uint) (models.AccrualPeriod, error) {
	var period models.AccrualPeriod
	if err := s.db.WithContext(ctx).First(&period, id).Error; err != nil {
		return models.AccrualPeriod{}, err
	}
	return period, nil
}

func (s *cpdStore) ListPeriods(ctx context.Context) ([]models.AccrualPeriod, error) {
	var periods []models.AccrualPeriod
	if err := s.db.WithContext(ctx).Order("starts_on ASC").Order("id ASC").Find(&periods).Error; err != nil {
		return nil, err
	}
	return periods, nil
}

func (s *cpdStore) CreateRecord(ctx context.Context, record *models.AccrualRecord) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error
}

func (s *cpdStore) GetRecord(ctx context.Context, id uint) (models.AccrualRecord, error) {
	var record models.AccrualRecord
	if err := s.db.WithContext(ctx).
		Preload("Transitions", orderTransitions).
		First(&record, id).Error; err != nil {
		return models.AccrualRecord{}, err
	}
	return record, nil
}

func (s *cpdStore) ListRecords(ctx context.Context, filter RecordFilter) ([]models.AccrualRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AccrualRecord{})
	if filter.MemberID > 0 {
		query = query.Where("member_id = ?", filter.MemberID)
	}
	if filter.PeriodID > 0 {
		query = query.Where("period_id = ?", filter.PeriodID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []models.AccrualRecord
	if err := query.
		Scopes(paginate(filter.Page, filter.PageSize), newestFirst).
		Preload("Transitions", orderTransitions).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *cpdStore) ListVerified(ctx context.Context, memberID, periodID uint) ([]models.AccrualRecord, error) {
	var records []models.AccrualRecord
	if err := s.db.WithContext(ctx).
		Where("member_id = ? AND period_id = ? AND status = ?", memberID, periodID, workflow.StatusVerified).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateRecord writes the mutable fields of record only if it is still in expected
// status at expectedVersion. On success the record's version is advanced.
func (s *cpdStore) UpdateRecord(ctx context.Context, record *models.AccrualRecord, expected workflow.Status, expectedVersion uint) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.AccrualRecord{}).
		Where("id = ? AND status = ? AND version = ?", record.ID, expected, expectedVersion).
		Updates(map[string]interface{}{
			"status":           record.Status,
			"reviewer_comment": record.ReviewerComment,
			"claimed_points":   record.ClaimedPoints,
			"proof_reference":  record.ProofReference,
			"version":          expectedVersion + 1,
			"updated_at":       now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleRecord
	}

	record.Version = expectedVersion + 1
	record.UpdatedAt = now
	return nil
}

func (s *cpdStore) AppendTransition(ctx context.Context, transition *models.RecordTransition) error {
	return s.db.WithContext(ctx).Create(transition).Error
}

// GetBalance returns the stored balance, or an unsaved zero balance when none exists yet.
func (s *cpdStore) GetBalance(ctx context.Context, memberID, periodID uint) (models.LedgerBalance, error) {
	var balance models.LedgerBalance
	err := s.db.WithContext(ctx).
		Where("member_id = ? AND period_id = ?", memberID, periodID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.LedgerBalance{MemberID: memberID, PeriodID: periodID, Points: decimal.Zero}, nil
	}
	if err != nil {
		return models.LedgerBalance{}, err
	}
	return balance, nil
}

// SaveBalance stores points as the new balance if nobody else wrote it since balance was read.
func (s *cpdStore) SaveBalance(ctx context.Context, balance *models.LedgerBalance, points decimal.Decimal) error {
	now := time.Now().UTC()

	if balance.ID == 0 {
		created := models.LedgerBalance{
			MemberID:  balance.MemberID,
			PeriodID:  balance.PeriodID,
			Points:    points,
			Version:   1,
			UpdatedAt: now,
		}
		if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrBalanceConflict
			}
			return err
		}
		*balance = created
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.LedgerBalance{}).
		Where("id = ? AND version = ?", balance.ID, balance.Version).
		Updates(map[string]interface{}{
			"points":     points,
			"version":    balance.Version + 1,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceConflict
	}

	balance.Points = points
	balance.Version++
	balance.UpdatedAt = now
	return nil
}

func orderTransitions(tx *gorm.DB) *gorm.DB {
	return tx.Order("occurred_at ASC").Order("id ASC")
}
