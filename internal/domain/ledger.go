package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind names the operation behind a balance change
type EntryKind string

const (
	EntryContribution       EntryKind = "CONTRIBUTION"
	EntryLoanDisbursement   EntryKind = "LOAN_DISBURSEMENT"
	EntryPayoutDisbursement EntryKind = "PAYOUT_DISBURSEMENT"
	EntryScheduledPayout    EntryKind = "SCHEDULED_PAYOUT"
	EntryLoanRepayment      EntryKind = "LOAN_REPAYMENT"
)

// LedgerEntry journals one balance change. Deltas are signed.
type LedgerEntry struct {
	ID          uuid.UUID       `json:"id"`
	GroupID     uuid.UUID       `json:"group_id"`
	MemberID    *uuid.UUID      `json:"member_id,omitempty"`
	Kind        EntryKind       `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	GroupDelta  decimal.Decimal `json:"group_delta"`
	MemberDelta decimal.Decimal `json:"member_delta"`
	ReferenceID uuid.UUID       `json:"reference_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ContributionStatus is the settlement state of a deposit
type ContributionStatus string

const (
	ContributionCompleted ContributionStatus = "COMPLETED"
	ContributionPending   ContributionStatus = "PENDING"
	ContributionFailed    ContributionStatus = "FAILED"
)

// Contribution is a deposit into the group pool
type Contribution struct {
	ID       uuid.UUID          `json:"id"`
	Amount   decimal.Decimal    `json:"amount"`
	Date     time.Time          `json:"date"`
	Status   ContributionStatus `json:"status"`
	MemberID uuid.UUID          `json:"member_id"`
	GroupID  uuid.UUID          `json:"group_id"`
	Notes    string             `json:"notes,omitempty"`
}

// PaymentEvent records a processed payment-provider callback so redelivery
// has no effect.
type PaymentEvent struct {
	EventID     string          `json:"event_id"`
	Kind        string          `json:"kind"`
	GroupID     uuid.UUID       `json:"group_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	ProcessedAt time.Time       `json:"processed_at"`
}
