package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

func TestVerificationProgressThenCorrectionBackToZero(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 10)
	require.Equal(t, workflow.StatusSubmitted, record.Status)

	result := f.approve(t, record.ID)
	require.Equal(t, workflow.StatusVerified, result.Record.Status)
	require.True(t, decimal.NewFromInt(10).Equal(result.TotalPoints))

	ratio, err := f.ledger.ProgressRatio(ctx, f.member.ID, f.period.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.333").Equal(ratio.Round(3)), "ratio was %s", ratio)

	corrected, err := f.verification.Correct(ctx, record.ID, dto.CPDReviewRequest{Comment: "Certificate belongs to another attendee"}, f.reviewer)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRejected, corrected.Record.Status)
	require.True(t, corrected.TotalPoints.IsZero())

	ratio, err = f.ledger.ProgressRatio(ctx, f.member.ID, f.period.ID)
	require.NoError(t, err)
	require.True(t, ratio.IsZero())

	require.Equal(t, []string{workflow.EventRecordVerified, workflow.EventRecordRejected}, f.emitter.types())
	require.Equal(t, "10", f.emitter.events[0].Points)
	require.Equal(t, "Certificate belongs to another attendee", f.emitter.events[1].Comment)
}

func TestVerificationTransitionLogIsComplete(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 4)
	f.approve(t, record.ID)

	stored, err := f.store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, stored.Transitions, 3)

	actions := []workflow.Action{}
	for _, transition := range stored.Transitions {
		actions = append(actions, transition.Action)
		require.False(t, transition.OccurredAt.IsZero())
	}
	require.Equal(t, []workflow.Action{workflow.ActionSubmit, workflow.ActionOpen, workflow.ActionApprove}, actions)
	require.Equal(t, f.member.ID, stored.Transitions[0].ActorID)
	require.Equal(t, f.reviewer.ID, stored.Transitions[2].ActorID)
	require.Equal(t, workflow.StatusUnderReview, stored.Transitions[2].FromStatus)
}

func TestVerificationRejectsSkippedStates(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 6)

	_, err := f.verification.Approve(ctx, record.ID, f.reviewer)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.verification.RequestRevision(ctx, record.ID, dto.CPDReviewRequest{Comment: "Upload the certificate"}, f.reviewer)
	require.ErrorIs(t, err, ErrInvalidTransition)

	require.True(t, f.total(t, f.member.ID).IsZero())
	require.Empty(t, f.emitter.types())
}

func TestVerificationDoubleApproveCountsOnce(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 8)
	f.approve(t, record.ID)

	_, err := f.verification.Approve(ctx, record.ID, f.reviewer)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.True(t, decimal.NewFromInt(8).Equal(f.total(t, f.member.ID)))
	require.Len(t, f.emitter.types(), 1)
}

func TestVerificationCommentRequiredBeforeMutation(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 5)
	f.open(t, record.ID)

	_, err := f.verification.Reject(ctx, record.ID, dto.CPDReviewRequest{Comment: "   "}, f.reviewer)
	require.ErrorIs(t, err, ErrCommentRequired)

	_, err = f.verification.RequestRevision(ctx, record.ID, dto.CPDReviewRequest{Comment: "<b></b>"}, f.reviewer)
	require.ErrorIs(t, err, ErrCommentRequired)

	stored, err := f.store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, stored.Status)
	require.Len(t, stored.Transitions, 2)
}

func TestVerificationRevisionAndResubmission(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()
	other := f.addMember(t, "tunde")

	record := f.submit(t, f.member.ID, 5)
	f.open(t, record.ID)

	revised, err := f.verification.RequestRevision(ctx, record.ID, dto.CPDReviewRequest{Comment: "Missing <script>x</script>certificate"}, f.reviewer)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusRevisionRequested, revised.Record.Status)
	require.Equal(t, "Missing certificate", revised.Record.ReviewerComment)
	require.Equal(t, []string{workflow.EventRevisionRequested}, f.emitter.types())

	newPoints := decimal.NewFromInt(12)
	_, err = f.verification.Resubmit(ctx, other.ID, record.ID, dto.CPDRecordResubmitRequest{ClaimedPoints: &newPoints})
	require.ErrorIs(t, err, ErrNotRecordOwner)

	resubmitted, err := f.verification.Resubmit(ctx, f.member.ID, record.ID, dto.CPDRecordResubmitRequest{
		ProofReference: "proofs/certificate-v2.pdf",
		ClaimedPoints:  &newPoints,
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSubmitted, resubmitted.Status)
	require.Empty(t, resubmitted.ReviewerComment)
	require.Equal(t, "proofs/certificate-v2.pdf", resubmitted.ProofReference)
	require.True(t, newPoints.Equal(resubmitted.ClaimedPoints))

	stored, err := f.store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Empty(t, stored.ReviewerComment)
	require.Len(t, stored.Transitions, 4)

	revision := stored.Transitions[2]
	require.Equal(t, workflow.ActionRequestRevision, revision.Action)
	require.Equal(t, "Missing certificate", revision.Comment)

	last := stored.Transitions[3]
	require.Equal(t, workflow.ActionResubmit, last.Action)
	require.Equal(t, "Missing certificate", last.Metadata["prior_comment"])

	approved := f.approve(t, record.ID)
	require.True(t, newPoints.Equal(approved.TotalPoints))
}

func TestVerificationBulkApproveReportsPerRecordOutcomes(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	ids := make([]uint, 0, 4)
	for _, points := range []int64{3, 4, 5, 6} {
		record := f.submit(t, f.member.ID, points)
		ids = append(ids, record.ID)
	}
	for _, id := range ids[:3] {
		f.open(t, id)
	}

	response, err := f.verification.BulkApprove(ctx, dto.CPDBulkApproveRequest{RecordIDs: ids}, f.reviewer)
	require.NoError(t, err)
	require.Equal(t, 3, response.Succeeded)
	require.Equal(t, 1, response.Failed)
	require.Len(t, response.Results, 4)

	failed := response.Results[3]
	require.Equal(t, ids[3], failed.RecordID)
	require.False(t, failed.Success)
	require.NotEmpty(t, failed.Error)

	require.True(t, decimal.NewFromInt(12).Equal(f.total(t, f.member.ID)))
	require.Len(t, f.emitter.types(), 3)

	untouched, err := f.store.GetRecord(ctx, ids[3])
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSubmitted, untouched.Status)
	require.Len(t, untouched.Transitions, 1)
}

func TestVerificationBulkApproveDuplicateCountsOnce(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 7)
	f.open(t, record.ID)

	response, err := f.verification.BulkApprove(ctx, dto.CPDBulkApproveRequest{RecordIDs: []uint{record.ID, record.ID}}, f.reviewer)
	require.NoError(t, err)
	require.Equal(t, 1, response.Succeeded)
	require.Equal(t, 1, response.Failed)
	require.True(t, decimal.NewFromInt(7).Equal(f.total(t, f.member.ID)))
}

func TestVerificationLedgerIsOrderIndependent(t *testing.T) {
	f := newCPDFixture(t, nil)
	other := f.addMember(t, "chiamaka")
	points := []int64{2, 9, 4}

	forward := make([]uint, 0, len(points))
	backward := make([]uint, 0, len(points))
	for _, p := range points {
		forward = append(forward, f.submit(t, f.member.ID, p).ID)
		backward = append(backward, f.submit(t, other.ID, p).ID)
	}

	for _, id := range forward {
		f.approve(t, id)
	}
	for i := len(backward) - 1; i >= 0; i-- {
		f.approve(t, backward[i])
	}

	require.True(t, f.total(t, f.member.ID).Equal(f.total(t, other.ID)))
	require.True(t, decimal.NewFromInt(15).Equal(f.total(t, f.member.ID)))

	result, err := f.ledger.Reconcile(context.Background(), other.ID, f.period.ID, f.reviewer)
	require.NoError(t, err)
	require.True(t, result.Drift.IsZero())
	require.False(t, result.Corrected)
}

func TestVerificationNegativeBalanceIsIntegrityError(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 10)
	f.approve(t, record.ID)

	require.NoError(t, f.db.Model(&models.LedgerBalance{}).
		Where("member_id = ? AND period_id = ?", f.member.ID, f.period.ID).
		Update("points", decimal.NewFromInt(4)).Error)

	_, err := f.verification.Correct(ctx, record.ID, dto.CPDReviewRequest{Comment: "Duplicate claim"}, f.reviewer)
	require.ErrorIs(t, err, ErrLedgerIntegrity)

	stored, err := f.store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusVerified, stored.Status)
	require.True(t, decimal.NewFromInt(4).Equal(f.total(t, f.member.ID)))

	reconciled, err := f.ledger.Reconcile(ctx, f.member.ID, f.period.ID, f.reviewer)
	require.NoError(t, err)
	require.True(t, reconciled.Corrected)
	require.True(t, decimal.NewFromInt(-6).Equal(reconciled.Drift))

	corrected, err := f.verification.Correct(ctx, record.ID, dto.CPDReviewRequest{Comment: "Duplicate claim"}, f.reviewer)
	require.NoError(t, err)
	require.True(t, corrected.TotalPoints.IsZero())
}

func TestVerificationSubmitValidation(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	base := dto.CPDRecordSubmitRequest{
		ActivityName:   "Regional Airway Workshop",
		Category:       "conference",
		ClaimedPoints:  decimal.NewFromInt(5),
		CompletedOn:    time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		ProofReference: "proofs/airway.pdf",
	}

	tooMany := base
	tooMany.ClaimedPoints = decimal.NewFromInt(51)
	_, err := f.verification.Submit(ctx, f.member.ID, tooMany)
	require.ErrorIs(t, err, ErrInvalidPoints)

	zero := base
	zero.ClaimedPoints = decimal.Zero
	_, err = f.verification.Submit(ctx, f.member.ID, zero)
	require.ErrorIs(t, err, ErrInvalidPoints)

	future := base
	future.CompletedOn = fixtureNow.AddDate(0, 0, 1)
	_, err = f.verification.Submit(ctx, f.member.ID, future)
	require.ErrorIs(t, err, ErrCompletedInFuture)

	outside := base
	outside.CompletedOn = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err = f.verification.Submit(ctx, f.member.ID, outside)
	require.ErrorIs(t, err, ErrNoOpenPeriod)

	markup := base
	markup.ActivityName = "<i>CPD</i>"
	_, err = f.verification.Submit(ctx, f.member.ID, markup)
	require.ErrorIs(t, err, ErrInvalidActivityName)

	badCategory := base
	badCategory.Category = "golf"
	_, err = f.verification.Submit(ctx, f.member.ID, badCategory)
	require.Error(t, err)

	_, err = f.verification.Submit(ctx, 4242, base)
	require.ErrorIs(t, err, ErrMemberNotFound)

	record, err := f.verification.Submit(ctx, f.member.ID, base)
	require.NoError(t, err)
	require.Equal(t, f.period.ID, record.PeriodID)
}

func TestVerificationListMineScopesToOwner(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()
	other := f.addMember(t, "bola")

	f.submit(t, f.member.ID, 1)
	f.submit(t, f.member.ID, 2)
	f.submit(t, other.ID, 3)

	mine, err := f.verification.ListMine(ctx, f.member.ID, dto.CPDRecordListRequest{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, mine.Items, 2)
	require.Equal(t, int64(2), mine.Pagination.TotalItems)
	for _, item := range mine.Items {
		require.Equal(t, f.member.ID, item.MemberID)
		require.NotEmpty(t, item.History)
	}

	submitted, err := f.verification.List(ctx, dto.CPDRecordListRequest{Status: "submitted"})
	require.NoError(t, err)
	require.Len(t, submitted.Items, 3)

	_, err = f.verification.List(ctx, dto.CPDRecordListRequest{Status: "archived"})
	require.Error(t, err)
}

func TestVerificationRecordsAuditTrail(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 3)
	f.approve(t, record.ID)

	entries, err := f.activity.List(ctx, dto.AuditListRequest{EntityType: "cpd_record", EntityID: record.ID})
	require.NoError(t, err)
	require.Len(t, entries.Items, 2)
	require.Equal(t, "cpd.record.approve", entries.Items[0].Action)
	require.Equal(t, "verified", entries.Items[0].Metadata["to_status"])
}

func TestVerificationConcurrentApprovalsCreditOnce(t *testing.T) {
	f := newCPDFixture(t, nil)
	ctx := context.Background()

	record := f.submit(t, f.member.ID, 12)
	f.open(t, record.ID)

	second := ActivityActor{ID: 901, Role: "reviewer"}
	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
	)
	for i, actor := range []ActivityActor{f.reviewer, second} {
		wg.Add(1)
		go func(i int, actor ActivityActor) {
			defer wg.Done()
			_, results[i] = f.verification.Approve(ctx, record.ID, actor)
		}(i, actor)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrRecordConflict), "unexpected error: %v", err)
	}
	require.Equal(t, 1, succeeded)
	require.True(t, decimal.NewFromInt(12).Equal(f.total(t, f.member.ID)))

	stored, err := f.store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusVerified, stored.Status)

	approvals := 0
	for _, transition := range stored.Transitions {
		if transition.Action == workflow.ActionApprove {
			approvals++
		}
	}
	require.Equal(t, 1, approvals)
}
