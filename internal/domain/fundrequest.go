package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundRequestType distinguishes borrowing from withdrawing an own share
type FundRequestType string

const (
	FundRequestLoan   FundRequestType = "LOAN"
	FundRequestPayout FundRequestType = "PAYOUT"
)

// Valid reports whether t is a known request type.
func (t FundRequestType) Valid() bool {
	return t == FundRequestLoan || t == FundRequestPayout
}

// FundRequestStatus is the state of a fund request
type FundRequestStatus string

const (
	FundRequestPending   FundRequestStatus = "PENDING"
	FundRequestApproved  FundRequestStatus = "APPROVED"
	FundRequestRejected  FundRequestStatus = "REJECTED"
	FundRequestCompleted FundRequestStatus = "COMPLETED"
)

var fundRequestTransitions = transitionTable[FundRequestStatus]{
	FundRequestPending:  {FundRequestApproved, FundRequestRejected},
	FundRequestApproved: {FundRequestCompleted},
}

// TransitionTo validates the move from s to next.
func (s FundRequestStatus) TransitionTo(next FundRequestStatus) error {
	return fundRequestTransitions.check("fund request", s, next)
}

// MinReasonLength is the shortest accepted justification for a request.
const MinReasonLength = 10

// FundRequest is a member's ask for money from the group pool
type FundRequest struct {
	ID           uuid.UUID         `json:"id"`
	Type         FundRequestType   `json:"type"`
	Amount       decimal.Decimal   `json:"amount"`
	Reason       string            `json:"reason"`
	Status       FundRequestStatus `json:"status"`
	MemberID     uuid.UUID         `json:"member_id"`
	GroupID      uuid.UUID         `json:"group_id"`
	LoanDuration LoanDuration      `json:"loan_duration,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RequestApproval is one member's vote on a request. A member has at most one
// vote per request; voting again replaces it.
type RequestApproval struct {
	ID        uuid.UUID `json:"id"`
	Approved  bool      `json:"approved"`
	RequestID uuid.UUID `json:"request_id"`
	MemberID  uuid.UUID `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequiredApprovals is the quorum for a group with n active members: half of
// them, rounded up. A group never needs fewer than one approval.
func RequiredApprovals(activeMembers int) int {
	if activeMembers <= 0 {
		return 1
	}
	return (activeMembers + 1) / 2
}

// VotingStatus summarizes the votes on a request.
type VotingStatus struct {
	TotalMembers       int     `json:"total_members"`
	RequiredApprovals  int     `json:"required_approvals"`
	CurrentApprovals   int     `json:"current_approvals"`
	CurrentRejections  int     `json:"current_rejections"`
	ApprovalPercentage float64 `json:"approval_percentage"`
	HasVoted           bool    `json:"has_voted"`
	Approved           *bool   `json:"approved,omitempty"`
}

// Tally counts votes for the given viewer. The percentage is informational;
// Outcome decides on counts only.
func Tally(activeMembers int, votes []RequestApproval, viewer uuid.UUID) VotingStatus {
	vs := VotingStatus{
		TotalMembers:      activeMembers,
		RequiredApprovals: RequiredApprovals(activeMembers),
	}
	for _, v := range votes {
		if v.Approved {
			vs.CurrentApprovals++
		} else {
			vs.CurrentRejections++
		}
		if v.MemberID == viewer {
			approved := v.Approved
			vs.HasVoted = true
			vs.Approved = &approved
		}
	}
	if activeMembers > 0 {
		pct := float64(vs.CurrentApprovals) / float64(activeMembers) * 100
		vs.ApprovalPercentage = math.Round(pct*100) / 100
	}
	return vs
}

// Outcome returns the status a pending request should move to. Rejection
// happens once enough members voted no that quorum can no longer be reached.
func (vs VotingStatus) Outcome() FundRequestStatus {
	switch {
	case vs.CurrentApprovals >= vs.RequiredApprovals:
		return FundRequestApproved
	case vs.CurrentRejections > vs.TotalMembers-vs.RequiredApprovals:
		return FundRequestRejected
	default:
		return FundRequestPending
	}
}
