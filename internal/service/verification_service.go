package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/naa-portal-api/internal/config"
	"github.com/noah-isme/naa-portal-api/internal/dto"
	"github.com/noah-isme/naa-portal-api/internal/events"
	"github.com/noah-isme/naa-portal-api/internal/models"
	"github.com/noah-isme/naa-portal-api/internal/observability"
	"github.com/noah-isme/naa-portal-api/internal/repository"
	"github.com/noah-isme/naa-portal-api/internal/workflow"
)

var (
	// ErrRecordNotFound indicates the accrual record does not exist.
	ErrRecordNotFound = errors.New("cpd record not found")
	// ErrInvalidTransition indicates the action is not allowed from the record's status.
	ErrInvalidTransition = workflow.ErrInvalidTransition
	// ErrCommentRequired indicates a review action that needs a reviewer comment was sent without one.
	ErrCommentRequired = errors.New("reviewer comment is required")
	// ErrNotRecordOwner indicates a member acted on another member's record.
	ErrNotRecordOwner = errors.New("record belongs to another member")
	// ErrRecordConflict indicates the record kept changing underneath every retry.
	ErrRecordConflict = errors.New("record changed concurrently")
	// ErrInvalidPoints indicates claimed points outside the accepted range.
	ErrInvalidPoints = errors.New("claimed points out of range")
	// ErrCompletedInFuture indicates an activity completion date after today.
	ErrCompletedInFuture = errors.New("activity completion date is in the future")
	// ErrInvalidActivityName indicates an activity name that is too short once sanitised.
	ErrInvalidActivityName = errors.New("activity name is too short")
	// ErrBulkTooLarge indicates a bulk request above the configured limit.
	ErrBulkTooLarge = errors.New("too many records in bulk request")
)

const minActivityNameLength = 5

// VerificationService drives accrual records through the review workflow and keeps
// the ledger in step with every transition.
type VerificationService interface {
	Submit(ctx context.Context, memberID uint, payload dto.CPDRecordSubmitRequest) (dto.CPDRecordResponse, error)
	Resubmit(ctx context.Context, memberID, recordID uint, payload dto.CPDRecordResubmitRequest) (dto.CPDRecordResponse, error)
	Open(ctx context.Context, recordID uint, actor ActivityActor) (dto.CPDTransitionResult, error)
	Approve(ctx context.Context, recordID uint, actor ActivityActor) (dto.CPDTransitionResult, error)
	Reject(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error)
	RequestRevision(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error)
	Correct(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error)
	BulkApprove(ctx context.Context, payload dto.CPDBulkApproveRequest, actor ActivityActor) (dto.CPDBulkApproveResponse, error)
	List(ctx context.Context, req dto.CPDRecordListRequest) (dto.CPDRecordListResponse, error)
	ListMine(ctx context.Context, memberID uint, req dto.CPDRecordListRequest) (dto.CPDRecordListResponse, error)
}

type verificationService struct {
	store     repository.CPDStore
	members   repository.MemberRepository
	ledger    CPDLedgerService
	emitter   events.Emitter
	validator *validator.Validate
	policy    config.CPDPolicy
	activity  ActivityRecorder
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// transitionOutcome is what a committed transition hands to the post-commit steps.
type transitionOutcome struct {
	record models.AccrualRecord
	from   workflow.Status
	total  decimal.Decimal
	delta  int
}

// NewVerificationService constructs the verification workflow service.
func NewVerificationService(
	store repository.CPDStore,
	members repository.MemberRepository,
	ledger CPDLedgerService,
	emitter events.Emitter,
	validate *validator.Validate,
	policy config.CPDPolicy,
	activity ActivityRecorder,
	logger zerolog.Logger,
) VerificationService {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if policy.RetryAttempts <= 0 {
		policy.RetryAttempts = 1
	}

	return &verificationService{
		store:     store,
		members:   members,
		ledger:    ledger,
		emitter:   emitter,
		validator: validate,
		policy:    policy,
		activity:  activity,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "verification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/naa-portal-api/internal/service/verification"),
		now:       time.Now,
	}
}

func (s *verificationService) Submit(ctx context.Context, memberID uint, payload dto.CPDRecordSubmitRequest) (dto.CPDRecordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cpd.submit", trace.WithAttributes(attribute.Int64("cpd.member_id", int64(memberID))))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.CPDRecordResponse{}, err
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(payload.ActivityName))
	if len([]rune(name)) < minActivityNameLength {
		span.SetStatus(codes.Error, "activity_name_too_short")
		return dto.CPDRecordResponse{}, ErrInvalidActivityName
	}
	if err := s.checkPoints(payload.ClaimedPoints); err != nil {
		span.SetStatus(codes.Error, "invalid_points")
		return dto.CPDRecordResponse{}, err
	}
	completedOn := payload.CompletedOn.UTC()
	if completedOn.After(s.now().UTC()) {
		span.SetStatus(codes.Error, "completed_in_future")
		return dto.CPDRecordResponse{}, ErrCompletedInFuture
	}

	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		span.RecordError(err)
		if isNotFound(err) {
			return dto.CPDRecordResponse{}, ErrMemberNotFound
		}
		return dto.CPDRecordResponse{}, err
	}

	var record models.AccrualRecord
	err := s.store.Transaction(ctx, func(store repository.CPDStore) error {
		period, err := periodAt(ctx, store, completedOn)
		if err != nil {
			return err
		}

		record = models.AccrualRecord{
			MemberID:       memberID,
			PeriodID:       period.ID,
			ActivityName:   name,
			Category:       payload.Category,
			ClaimedPoints:  payload.ClaimedPoints,
			CompletedOn:    completedOn,
			ProofReference: strings.TrimSpace(payload.ProofReference),
			Status:         workflow.StatusSubmitted,
		}
		if err := store.CreateRecord(ctx, &record); err != nil {
			return err
		}

		entry := models.RecordTransition{
			RecordID:   record.ID,
			Action:     workflow.ActionSubmit,
			ToStatus:   workflow.StatusSubmitted,
			ActorID:    memberID,
			ActorRole:  "member",
			Points:     record.ClaimedPoints,
			Metadata:   datatypes.JSONMap{"proof_reference": record.ProofReference},
			OccurredAt: s.now().UTC(),
		}
		if err := store.AppendTransition(ctx, &entry); err != nil {
			return err
		}
		record.Transitions = []models.RecordTransition{entry}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
		return dto.CPDRecordResponse{}, err
	}

	observability.WorkflowTransitions().WithLabelValues(string(workflow.ActionSubmit), "success").Inc()
	span.SetAttributes(attribute.Int64("cpd.record_id", int64(record.ID)))
	s.logger.Info().Uint("record_id", record.ID).Uint("member_id", memberID).Msg("cpd record submitted")

	return dto.NewCPDRecordResponse(record), nil
}

func (s *verificationService) Resubmit(ctx context.Context, memberID, recordID uint, payload dto.CPDRecordResubmitRequest) (dto.CPDRecordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cpd.resubmit", trace.WithAttributes(
		attribute.Int64("cpd.member_id", int64(memberID)),
		attribute.Int64("cpd.record_id", int64(recordID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.CPDRecordResponse{}, err
	}
	if payload.ClaimedPoints != nil {
		if err := s.checkPoints(*payload.ClaimedPoints); err != nil {
			span.SetStatus(codes.Error, "invalid_points")
			return dto.CPDRecordResponse{}, err
		}
	}

	var record models.AccrualRecord
	err := s.withRetry(ctx, func(store repository.CPDStore) error {
		current, err := store.GetRecord(ctx, recordID)
		if err != nil {
			if isNotFound(err) {
				return ErrRecordNotFound
			}
			return err
		}
		if current.MemberID != memberID {
			return ErrNotRecordOwner
		}

		from := current.Status
		to, err := workflow.Next(from, workflow.ActionResubmit)
		if err != nil {
			return err
		}

		priorComment := current.ReviewerComment
		updated := current
		updated.Status = to
		if proof := strings.TrimSpace(payload.ProofReference); proof != "" {
			updated.ProofReference = proof
		}
		if payload.ClaimedPoints != nil {
			updated.ClaimedPoints = *payload.ClaimedPoints
		}

		entry := models.RecordTransition{
			RecordID:   current.ID,
			Action:     workflow.ActionResubmit,
			FromStatus: from,
			ToStatus:   to,
			ActorID:    memberID,
			ActorRole:  "member",
			Points:     updated.ClaimedPoints,
			Metadata: datatypes.JSONMap{
				"prior_comment":   priorComment,
				"proof_reference": updated.ProofReference,
				"prior_points":    current.ClaimedPoints.String(),
			},
			OccurredAt: s.now().UTC(),
		}
		if err := store.AppendTransition(ctx, &entry); err != nil {
			return err
		}

		// The revision comment is cleared only once the resubmission is on the log.
		updated.ReviewerComment = ""
		if err := store.UpdateRecord(ctx, &updated, from, current.Version); err != nil {
			return err
		}

		updated.Transitions = append(updated.Transitions, entry)
		record = updated
		return nil
	})
	if err != nil {
		s.countTransition(workflow.ActionResubmit, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "resubmit_failed")
		return dto.CPDRecordResponse{}, err
	}

	s.countTransition(workflow.ActionResubmit, nil)
	return dto.NewCPDRecordResponse(record), nil
}

func (s *verificationService) Open(ctx context.Context, recordID uint, actor ActivityActor) (dto.CPDTransitionResult, error) {
	return s.review(ctx, recordID, workflow.ActionOpen, "", actor)
}

func (s *verificationService) Approve(ctx context.Context, recordID uint, actor ActivityActor) (dto.CPDTransitionResult, error) {
	return s.review(ctx, recordID, workflow.ActionApprove, "", actor)
}

func (s *verificationService) Reject(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error) {
	return s.reviewWithComment(ctx, recordID, workflow.ActionReject, payload, actor)
}

func (s *verificationService) RequestRevision(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error) {
	return s.reviewWithComment(ctx, recordID, workflow.ActionRequestRevision, payload, actor)
}

// Correct withdraws an already verified record and its points.
func (s *verificationService) Correct(ctx context.Context, recordID uint, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error) {
	return s.reviewWithComment(ctx, recordID, workflow.ActionCorrect, payload, actor)
}

func (s *verificationService) reviewWithComment(ctx context.Context, recordID uint, action workflow.Action, payload dto.CPDReviewRequest, actor ActivityActor) (dto.CPDTransitionResult, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CPDTransitionResult{}, err
	}
	return s.review(ctx, recordID, action, payload.Comment, actor)
}

func (s *verificationService) review(ctx context.Context, recordID uint, action workflow.Action, comment string, actor ActivityActor) (dto.CPDTransitionResult, error) {
	ctx, span := s.tracer.Start(ctx, "cpd.review", trace.WithAttributes(
		attribute.Int64("cpd.record_id", int64(recordID)),
		attribute.String("cpd.action", string(action)),
		attribute.Int64("cpd.actor_id", int64(actor.ID)),
	))
	defer span.End()

	comment, err := s.cleanComment(action, comment)
	if err != nil {
		s.countTransition(action, err)
		span.SetStatus(codes.Error, "comment_required")
		return dto.CPDTransitionResult{}, err
	}

	var outcome transitionOutcome
	err = s.withRetry(ctx, func(store repository.CPDStore) error {
		var txErr error
		outcome, txErr = s.transition(ctx, store, recordID, action, comment, actor)
		return txErr
	})
	if err != nil {
		s.countTransition(action, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition_failed")
		return dto.CPDTransitionResult{}, err
	}

	s.countTransition(action, nil)
	s.afterCommit(ctx, action, outcome, actor)
	span.SetAttributes(attribute.String("cpd.status", string(outcome.record.Status)))

	return dto.CPDTransitionResult{
		Record:      dto.NewCPDRecordResponse(outcome.record),
		TotalPoints: outcome.total,
	}, nil
}

// BulkApprove approves every listed record in one unit of work. Each record runs in its
// own savepoint, so a record that cannot be approved is reported and rolled back alone.
func (s *verificationService) BulkApprove(ctx context.Context, payload dto.CPDBulkApproveRequest, actor ActivityActor) (dto.CPDBulkApproveResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cpd.bulk_approve", trace.WithAttributes(
		attribute.Int("cpd.bulk_size", len(payload.RecordIDs)),
		attribute.Int64("cpd.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.CPDBulkApproveResponse{}, err
	}
	if s.policy.BulkLimit > 0 && len(payload.RecordIDs) > s.policy.BulkLimit {
		span.SetStatus(codes.Error, "bulk_too_large")
		return dto.CPDBulkApproveResponse{}, ErrBulkTooLarge
	}

	var (
		results  []dto.CPDBulkItemResult
		outcomes []transitionOutcome
	)
	err := s.store.Transaction(ctx, func(tx repository.CPDStore) error {
		results = make([]dto.CPDBulkItemResult, 0, len(payload.RecordIDs))
		outcomes = outcomes[:0]

		for _, recordID := range payload.RecordIDs {
			var outcome transitionOutcome
			itemErr := tx.Transaction(ctx, func(item repository.CPDStore) error {
				var err error
				outcome, err = s.transition(ctx, item, recordID, workflow.ActionApprove, "", actor)
				return err
			})

			if itemErr != nil {
				s.countTransition(workflow.ActionApprove, itemErr)
				if !isItemFailure(itemErr) {
					return itemErr
				}
				results = append(results, dto.CPDBulkItemResult{RecordID: recordID, Error: itemErr.Error()})
				continue
			}

			response := dto.NewCPDRecordResponse(outcome.record)
			results = append(results, dto.CPDBulkItemResult{
				RecordID: recordID,
				Success:  true,
				Status:   outcome.record.Status,
				Record:   &response,
			})
			outcomes = append(outcomes, outcome)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk_approve_failed")
		return dto.CPDBulkApproveResponse{}, err
	}

	response := dto.CPDBulkApproveResponse{Results: results}
	for _, result := range results {
		if result.Success {
			response.Succeeded++
		} else {
			response.Failed++
		}
	}

	for _, outcome := range outcomes {
		s.countTransition(workflow.ActionApprove, nil)
		s.afterCommit(ctx, workflow.ActionApprove, outcome, actor)
	}

	span.SetAttributes(
		attribute.Int("cpd.bulk_succeeded", response.Succeeded),
		attribute.Int("cpd.bulk_failed", response.Failed),
	)
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "cpd.records.bulk_approved",
		EntityType: "cpd_record",
		Metadata: map[string]interface{}{
			"requested": len(payload.RecordIDs),
			"succeeded": response.Succeeded,
			"failed":    response.Failed,
		},
	})

	return response, nil
}

// transition applies one review action on store: status change, log entry and ledger
// delta land together or not at all.
func (s *verificationService) transition(ctx context.Context, store repository.CPDStore, recordID uint, action workflow.Action, comment string, actor ActivityActor) (transitionOutcome, error) {
	record, err := store.GetRecord(ctx, recordID)
	if err != nil {
		if isNotFound(err) {
			return transitionOutcome{}, ErrRecordNotFound
		}
		return transitionOutcome{}, err
	}

	from := record.Status
	to, err := workflow.Next(from, action)
	if err != nil {
		return transitionOutcome{}, err
	}

	record.Status = to
	if workflow.RequiresComment(action) {
		record.ReviewerComment = comment
	}
	if err := store.UpdateRecord(ctx, &record, from, record.Version); err != nil {
		return transitionOutcome{}, err
	}

	entry := models.RecordTransition{
		RecordID:   record.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorRole:  normalizeRole(actor.Role),
		Comment:    comment,
		Points:     record.ClaimedPoints,
		Metadata:   datatypes.JSONMap{"version": record.Version},
		OccurredAt: s.now().UTC(),
	}
	if err := store.AppendTransition(ctx, &entry); err != nil {
		return transitionOutcome{}, err
	}
	record.Transitions = append(record.Transitions, entry)

	outcome := transitionOutcome{record: record, from: from, delta: workflow.LedgerDirection(from, to)}
	switch outcome.delta {
	case 1:
		outcome.total, err = s.ledger.RecordPoints(ctx, store, record)
	case -1:
		outcome.total, err = s.ledger.WithdrawPoints(ctx, store, record)
	default:
		var balance models.LedgerBalance
		balance, err = store.GetBalance(ctx, record.MemberID, record.PeriodID)
		outcome.total = balance.Points
	}
	if err != nil {
		return transitionOutcome{}, err
	}

	return outcome, nil
}

// afterCommit runs the side effects that must not happen for rolled back work.
func (s *verificationService) afterCommit(ctx context.Context, action workflow.Action, outcome transitionOutcome, actor ActivityActor) {
	record := outcome.record
	if outcome.delta != 0 {
		s.ledger.Invalidate(ctx, record.MemberID, record.PeriodID)
	}

	if eventType, ok := workflow.EventFor(record.Status); ok {
		event := events.Event{
			Type:     eventType,
			MemberID: record.MemberID,
			RecordID: record.ID,
			ActorID:  actor.ID,
			Comment:  record.ReviewerComment,
		}
		if record.Status == workflow.StatusVerified {
			event.Points = record.ClaimedPoints.String()
		}
		if err := s.emitter.Emit(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("type", eventType).Uint("record_id", record.ID).Msg("failed to emit workflow event")
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "cpd.record." + string(action),
		EntityType: "cpd_record",
		EntityID:   uintPtr(record.ID),
		Metadata: map[string]interface{}{
			"member_id":   record.MemberID,
			"period_id":   record.PeriodID,
			"from_status": string(outcome.from),
			"to_status":   string(record.Status),
			"total":       outcome.total.String(),
		},
	})

	s.logger.Info().
		Uint("record_id", record.ID).
		Str("action", string(action)).
		Str("status", string(record.Status)).
		Str("total", outcome.total.String()).
		Msg("cpd record transitioned")
}

func (s *verificationService) List(ctx context.Context, req dto.CPDRecordListRequest) (dto.CPDRecordListResponse, error) {
	filter := repository.RecordFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		MemberID: req.MemberID,
		PeriodID: req.PeriodID,
	}
	if status := workflow.Status(strings.TrimSpace(req.Status)); status != "" {
		if !status.Valid() {
			return dto.CPDRecordListResponse{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
		}
		filter.Status = status
	}

	records, total, err := s.store.ListRecords(ctx, filter)
	if err != nil {
		return dto.CPDRecordListResponse{}, err
	}

	items := make([]dto.CPDRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.NewCPDRecordResponse(record))
	}

	return dto.CPDRecordListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *verificationService) ListMine(ctx context.Context, memberID uint, req dto.CPDRecordListRequest) (dto.CPDRecordListResponse, error) {
	req.MemberID = memberID
	return s.List(ctx, req)
}

// withRetry reruns fn in a fresh transaction when a concurrent writer won the race. The
// rerun rereads the record, so a lost race surfaces as the correct domain error.
func (s *verificationService) withRetry(ctx context.Context, fn func(store repository.CPDStore) error) error {
	var err error
	for attempt := 1; attempt <= s.policy.RetryAttempts; attempt++ {
		err = s.store.Transaction(ctx, fn)
		if !errors.Is(err, repository.ErrStaleRecord) && !errors.Is(err, ErrLedgerConflict) {
			return err
		}
		s.logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying transition after concurrent write")
	}

	if errors.Is(err, repository.ErrStaleRecord) {
		return ErrRecordConflict
	}
	return err
}

func (s *verificationService) cleanComment(action workflow.Action, comment string) (string, error) {
	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(comment))
	if workflow.RequiresComment(action) && cleaned == "" {
		return "", ErrCommentRequired
	}
	return cleaned, nil
}

func (s *verificationService) checkPoints(points decimal.Decimal) error {
	if points.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: must be at least 1", ErrInvalidPoints)
	}
	if s.policy.MaxPointsPerRecord.IsPositive() && points.GreaterThan(s.policy.MaxPointsPerRecord) {
		return fmt.Errorf("%w: must not exceed %s", ErrInvalidPoints, s.policy.MaxPointsPerRecord)
	}
	return nil
}

func (s *verificationService) countTransition(action workflow.Action, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidTransition):
		outcome = "invalid"
	case errors.Is(err, ErrCommentRequired):
		outcome = "rejected"
	case errors.Is(err, ErrRecordConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	observability.WorkflowTransitions().WithLabelValues(string(action), outcome).Inc()
}

// isItemFailure reports whether a bulk item error is a per-record outcome rather
// than a failure of the whole unit of work.
func isItemFailure(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrLedgerIntegrity) ||
		errors.Is(err, ErrLedgerConflict) ||
		errors.Is(err, repository.ErrStaleRecord)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
