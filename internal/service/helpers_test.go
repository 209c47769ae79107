package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/config"
	"github.com/noah-isme/naa-portal-api/internal/database"
	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/events"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/repository"
	"github.com/noah-isme/naa-portal-api/internal/tier"
)

var fixtureNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func testPolicy() config.CPDPolicy {
	return config.CPDPolicy{
		DefaultTargetPoints: decimal.NewFromInt(30),
		MaxPointsPerRecord:  decimal.NewFromInt(50),
		RetryAttempts:       3,
		BulkLimit:           200,
	}
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(ctx context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

type cpdFixture struct {
	db           *gorm.DB
	store        repository.CPDStore
	members      repository.MemberRepository
	activity     ActivityService
	ledger       CPDLedgerService
	verification VerificationService
	emitter      *recordingEmitter
	period       models.AccrualPeriod
	member       models.Member
	reviewer     ActivityActor
}

func newCPDFixture(t *testing.T, cache *redis.Client) *cpdFixture {
	t.Helper()
	db := setupServiceDB(t)
	store := repository.NewCPDStore(db)
	members := repository.NewMemberRepository(db)
	activity := NewActivityService(repository.NewActivityLogRepository(db), testLogger())
	emitter := &recordingEmitter{}

	ledger := NewCPDLedgerService(store, cache, time.Minute, activity, testLogger())
	ledger.(*cpdLedgerService).now = func() time.Time { return fixtureNow }

	verification := NewVerificationService(store, members, ledger, emitter, testValidator(), testPolicy(), activity, testLogger())
	verification.(*verificationService).now = func() time.Time { return fixtureNow }

	period := models.AccrualPeriod{
		Name:         "2026",
		StartsOn:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndsOn:       time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		TargetPoints: decimal.NewFromInt(30),
	}
	require.NoError(t, store.CreatePeriod(context.Background(), &period))

	f := &cpdFixture{
		db:           db,
		store:        store,
		members:      members,
		activity:     activity,
		ledger:       ledger,
		verification: verification,
		emitter:      emitter,
		period:       period,
		reviewer:     ActivityActor{ID: 900, Role: "reviewer"},
	}
	f.member = f.addMember(t, "adaeze")
	return f
}

func (f *cpdFixture) addMember(t *testing.T, username string) models.Member {
	t.Helper()
	member := models.Member{
		Username: username,
		Email:    username + "@example.org",
		Tier:     tier.Associate,
		Verified: true,
	}
	require.NoError(t, f.members.Create(context.Background(), &member))
	return member
}

func (f *cpdFixture) submit(t *testing.T, memberID uint, points int64) dto.CPDRecordResponse {
	t.Helper()
	record, err := f.verification.Submit(context.Background(), memberID, dto.CPDRecordSubmitRequest{
		ActivityName:   "Anaesthesia Update Course",
		Category:       "training",
		ClaimedPoints:  decimal.NewFromInt(points),
		CompletedOn:    time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		ProofReference: "proofs/certificate.pdf",
	})
	require.NoError(t, err)
	return record
}

func (f *cpdFixture) open(t *testing.T, recordID uint) {
	t.Helper()
	_, err := f.verification.Open(context.Background(), recordID, f.reviewer)
	require.NoError(t, err)
}

func (f *cpdFixture) approve(t *testing.T, recordID uint) dto.CPDTransitionResult {
	t.Helper()
	f.open(t, recordID)
	result, err := f.verification.Approve(context.Background(), recordID, f.reviewer)
	require.NoError(t, err)
	return result
}

func (f *cpdFixture) total(t *testing.T, memberID uint) decimal.Decimal {
	t.Helper()
	total, err := f.ledger.CurrentTotal(context.Background(), memberID, f.period.ID)
	require.NoError(t, err)
	return total
}
