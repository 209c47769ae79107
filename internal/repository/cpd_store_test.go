package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/database"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedRecord(t *testing.T, store CPDStore, memberID, periodID uint, points int64) models.AccrualRecord {
	t.Helper()
	record := models.AccrualRecord{
		MemberID:       memberID,
		PeriodID:       periodID,
		ActivityName:   "Annual Conference",
		Category:       models.CategoryConference,
		ClaimedPoints:  decimal.NewFromInt(points),
		CompletedOn:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ProofReference: "uploads/cert.pdf",
		Status:         workflow.StatusSubmitted,
	}
	require.NoError(t, store.CreateRecord(context.Background(), &record))
	return record
}

func TestCPDStoreUpdateRecordRejectsStaleStatus(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()
	record := seedRecord(t, store, 1, 1, 10)

	record.Status = workflow.StatusUnderReview
	require.NoError(t, store.UpdateRecord(ctx, &record, workflow.StatusSubmitted, 0))
	require.Equal(t, uint(1), record.Version)

	second := record
	second.Status = workflow.StatusUnderReview
	err := store.UpdateRecord(ctx, &second, workflow.StatusSubmitted, 0)
	require.ErrorIs(t, err, ErrStaleRecord)

	stored, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, stored.Status)
	require.True(t, decimal.NewFromInt(10).Equal(stored.ClaimedPoints))
}

func TestCPDStoreBalanceCompareAndSwap(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()

	balance, err := store.GetBalance(ctx, 4, 2)
	require.NoError(t, err)
	require.Zero(t, balance.ID)
	require.True(t, balance.Points.IsZero())

	require.NoError(t, store.SaveBalance(ctx, &balance, decimal.NewFromInt(10)))
	require.NotZero(t, balance.ID)

	stale := balance
	require.NoError(t, store.SaveBalance(ctx, &balance, decimal.NewFromInt(15)))
	require.ErrorIs(t, store.SaveBalance(ctx, &stale, decimal.NewFromInt(99)), ErrBalanceConflict)

	fresh, err := store.GetBalance(ctx, 4, 2)
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(15).Equal(fresh.Points))
	require.Equal(t, uint(2), fresh.Version)
}

func TestCPDStoreDuplicateBalanceCreateConflicts(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()

	first, err := store.GetBalance(ctx, 1, 1)
	require.NoError(t, err)
	second := first

	require.NoError(t, store.SaveBalance(ctx, &first, decimal.NewFromInt(5)))
	require.ErrorIs(t, store.SaveBalance(ctx, &second, decimal.NewFromInt(7)), ErrBalanceConflict)
}

func TestCPDStoreTransitionsAreAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	store := NewCPDStore(db)
	ctx := context.Background()
	record := seedRecord(t, store, 1, 1, 5)

	transition := models.RecordTransition{
		RecordID:   record.ID,
		Action:     workflow.ActionResubmit,
		ToStatus:   workflow.StatusSubmitted,
		ActorID:    1,
		ActorRole:  "member",
		Points:     record.ClaimedPoints,
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, store.AppendTransition(ctx, &transition))

	transition.Comment = "rewritten"
	err := db.Save(&transition).Error
	require.ErrorIs(t, err, models.ErrImmutableTransition)
	require.ErrorIs(t, db.Delete(&transition).Error, models.ErrImmutableTransition)

	stored, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, stored.Transitions, 1)
	require.Empty(t, stored.Transitions[0].Comment)
}

func TestCPDStoreTransactionRollsBack(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()
	record := seedRecord(t, store, 2, 3, 8)
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx CPDStore) error {
		record.Status = workflow.StatusUnderReview
		if err := tx.UpdateRecord(ctx, &record, workflow.StatusSubmitted, 0); err != nil {
			return err
		}
		balance, err := tx.GetBalance(ctx, 2, 3)
		if err != nil {
			return err
		}
		if err := tx.SaveBalance(ctx, &balance, decimal.NewFromInt(8)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSubmitted, stored.Status)

	balance, err := store.GetBalance(ctx, 2, 3)
	require.NoError(t, err)
	require.Zero(t, balance.ID)
}

func TestCPDStoreNestedTransactionUsesSavepoint(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()
	kept := seedRecord(t, store, 1, 1, 3)
	dropped := seedRecord(t, store, 1, 1, 4)

	err := store.Transaction(ctx, func(tx CPDStore) error {
		require.NoError(t, tx.Transaction(ctx, func(inner CPDStore) error {
			kept.Status = workflow.StatusUnderReview
			return inner.UpdateRecord(ctx, &kept, workflow.StatusSubmitted, 0)
		}))
		innerErr := tx.Transaction(ctx, func(inner CPDStore) error {
			dropped.Status = workflow.StatusUnderReview
			if err := inner.UpdateRecord(ctx, &dropped, workflow.StatusSubmitted, 0); err != nil {
				return err
			}
			return errors.New("abort item")
		})
		require.Error(t, innerErr)
		return nil
	})
	require.NoError(t, err)

	first, err := store.GetRecord(ctx, kept.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, first.Status)

	second, err := store.GetRecord(ctx, dropped.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSubmitted, second.Status)
}

func TestCPDStoreListRecordsFiltersAndPaginates(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		seedRecord(t, store, 1, 1, int64(i+1))
	}
	seedRecord(t, store, 2, 1, 9)

	records, total, err := store.ListRecords(ctx, RecordFilter{MemberID: 1, PageSize: 2, Page: 1})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, records, 2)

	verified, err := store.ListVerified(ctx, 1, 1)
	require.NoError(t, err)
	require.Empty(t, verified)
}

func TestCPDStorePeriodsOrderedByStart(t *testing.T) {
	store := NewCPDStore(setupTestDB(t))
	ctx := context.Background()

	later := models.AccrualPeriod{Name: "2027", StartsOn: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), EndsOn: time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), TargetPoints: decimal.NewFromInt(30)}
	earlier := models.AccrualPeriod{Name: "2026", StartsOn: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), EndsOn: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), TargetPoints: decimal.NewFromInt(30)}
	require.NoError(t, store.CreatePeriod(ctx, &later))
	require.NoError(t, store.CreatePeriod(ctx, &earlier))

	periods, err := store.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	require.Equal(t, "2026", periods[0].Name)
	require.True(t, decimal.NewFromInt(30).Equal(periods[1].TargetPoints))
}
