// Package workflow defines the review state machine for CPD accrual records.
package workflow

import (
	"errors"
	"fmt"
)

// Status is the review state of an accrual record.
type Status string

const (
	StatusSubmitted         Status = "submitted"
	StatusUnderReview       Status = "under_review"
	StatusVerified          Status = "verified"
	StatusRejected          Status = "rejected"
	StatusRevisionRequested Status = "revision_requested"
)

// Action is a review operation applied to a record.
type Action string

const (
	ActionOpen            Action = "open"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestRevision Action = "request_revision"
	ActionResubmit        Action = "resubmit"
	// ActionCorrect is the administrative correction that withdraws a verified record.
	ActionCorrect Action = "correct"
	// ActionSubmit labels the creation entry of the transition log. No edge leads to it.
	ActionSubmit Action = "submit"
)

// ErrInvalidTransition indicates the action is not defined for the record's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

type edge struct {
	from Status
	to   Status
}

var edges = map[Action]edge{
	ActionOpen:            {from: StatusSubmitted, to: StatusUnderReview},
	ActionApprove:         {from: StatusUnderReview, to: StatusVerified},
	ActionReject:          {from: StatusUnderReview, to: StatusRejected},
	ActionRequestRevision: {from: StatusUnderReview, to: StatusRevisionRequested},
	ActionResubmit:        {from: StatusRevisionRequested, to: StatusSubmitted},
	ActionCorrect:         {from: StatusVerified, to: StatusRejected},
}

// Next returns the status reached by applying action to from.
func Next(from Status, action Action) (Status, error) {
	e, ok := edges[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	if e.from != from {
		return "", fmt.Errorf("%w: cannot %s a %s record", ErrInvalidTransition, action, from)
	}
	return e.to, nil
}

// RequiresComment reports whether action must carry a reviewer comment.
func RequiresComment(action Action) bool {
	switch action {
	case ActionReject, ActionRequestRevision, ActionCorrect:
		return true
	default:
		return false
	}
}

// StaffOnly reports whether only reviewers may apply action. Submission and resubmission belong to the owner.
func StaffOnly(action Action) bool {
	return action != ActionResubmit && action != ActionSubmit
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusVerified, StatusRejected, StatusRevisionRequested:
		return true
	default:
		return false
	}
}

// Terminal reports whether no review action is defined from s. Verified records can
// still be withdrawn by an administrative correction.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// Counts reports whether a record in s contributes to the ledger.
func (s Status) Counts() bool {
	return s == StatusVerified
}

// LedgerDirection returns +1 when a transition enters Verified, -1 when it leaves
// Verified and 0 otherwise.
func LedgerDirection(from, to Status) int {
	switch {
	case !from.Counts() && to.Counts():
		return 1
	case from.Counts() && !to.Counts():
		return -1
	default:
		return 0
	}
}

// Event names emitted to the notification collaborator.
const (
	EventRecordVerified    = "record_verified"
	EventRecordRejected    = "record_rejected"
	EventRevisionRequested = "revision_requested"
	EventPrincipalVerified = "principal_verified"
)

// EventFor returns the notification emitted when a record reaches to, if any.
func EventFor(to Status) (string, bool) {
	switch to {
	case StatusVerified:
		return EventRecordVerified, true
	case StatusRejected:
		return EventRecordRejected, true
	case StatusRevisionRequested:
		return EventRevisionRequested, true
	default:
		return "", false
	}
}
