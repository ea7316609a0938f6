// Package store defines the transactional persistence contract used by the
// banking services. Implementations live in the postgres and memory
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
	// ErrSerialization is returned when the database aborted the transaction
	// because of a concurrent update. The whole operation may be retried.
	ErrSerialization = apperror.New(apperror.KindRetryable, "The request collided with a concurrent update, please retry")
)

// Store runs units of work atomically.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls back
	// every write made through tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Lock selects whether a read takes a row lock held until commit.
type Lock bool

const (
	NoLock    Lock = false
	ForUpdate Lock = true
)

// Tx is the set of reads and writes available inside a transaction. Getters
// return (nil, nil) when the row does not exist.
type Tx interface {
	CreateGroup(ctx context.Context, g *domain.Group) error
	GetGroup(ctx context.Context, id uuid.UUID, lock Lock) (*domain.Group, error)
	ListFundedGroupIDs(ctx context.Context) ([]uuid.UUID, error)
	AddGroupSavings(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error

	CreateMember(ctx context.Context, m *domain.Member) error
	GetMember(ctx context.Context, groupID uuid.UUID, userID string, lock Lock) (*domain.Member, error)
	GetMemberByID(ctx context.Context, id uuid.UUID, lock Lock) (*domain.Member, error)
	ListMembers(ctx context.Context, groupID uuid.UUID, status domain.MemberStatus) ([]*domain.Member, error)
	CountMembers(ctx context.Context, groupID uuid.UUID) (int, error)
	// AddMemberSavings applies delta and, when lastPayment is set, records it.
	AddMemberSavings(ctx context.Context, id uuid.UUID, delta decimal.Decimal, lastPayment *time.Time) error

	CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error
	GetJoinRequest(ctx context.Context, id uuid.UUID, lock Lock) (*domain.JoinRequest, error)
	FindPendingJoinRequest(ctx context.Context, groupID uuid.UUID, userID string) (*domain.JoinRequest, error)
	SetJoinRequestStatus(ctx context.Context, id uuid.UUID, from, to domain.JoinRequestStatus) (bool, error)

	CreateContribution(ctx context.Context, c *domain.Contribution) error
	CountCompletedContributions(ctx context.Context, memberID uuid.UUID) (int, error)

	CreateFundRequest(ctx context.Context, fr *domain.FundRequest) error
	GetFundRequest(ctx context.Context, id uuid.UUID, lock Lock) (*domain.FundRequest, error)
	// SetFundRequestStatus moves the request only if it is still in from and
	// reports whether a row changed.
	SetFundRequestStatus(ctx context.Context, id uuid.UUID, from, to domain.FundRequestStatus, at time.Time) (bool, error)
	UpsertApproval(ctx context.Context, a *domain.RequestApproval) error
	ListApprovals(ctx context.Context, requestID uuid.UUID) ([]domain.RequestApproval, error)

	CreateLoan(ctx context.Context, l *domain.Loan) error
	GetLoan(ctx context.Context, id uuid.UUID, lock Lock) (*domain.Loan, error)
	GetLoanByRequest(ctx context.Context, requestID uuid.UUID) (*domain.Loan, error)
	// ListDueLoans returns ACTIVE loans due before now, locked and skipping
	// rows another transaction already holds.
	ListDueLoans(ctx context.Context, now time.Time) ([]*domain.Loan, error)
	RecordLoanPayment(ctx context.Context, p *domain.LoanPayment, paidAmount decimal.Decimal, status domain.LoanStatus) error
	SetLoanStatus(ctx context.Context, id uuid.UUID, from, to domain.LoanStatus) (bool, error)

	CreatePayoutSchedule(ctx context.Context, s *domain.PayoutSchedule) error
	GetPayoutSchedule(ctx context.Context, id uuid.UUID, lock Lock) (*domain.PayoutSchedule, error)
	FindPayoutSchedule(ctx context.Context, groupID uuid.UUID, date time.Time) (*domain.PayoutSchedule, error)
	// CompletePayoutSchedule marks the schedule and all its payouts COMPLETED
	// if the schedule is still SCHEDULED.
	CompletePayoutSchedule(ctx context.Context, id uuid.UUID) (bool, error)

	InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, groupID uuid.UUID) ([]domain.LedgerEntry, error)

	InsertNotifications(ctx context.Context, ns []*domain.Notification) error
	// ClaimNotifications returns undelivered rows with fewer than maxAttempts
	// attempts, oldest first.
	ClaimNotifications(ctx context.Context, limit, maxAttempts int) ([]*domain.Notification, error)
	// ClaimNotification locks one pending row for delivery. It returns nil
	// when the row is no longer pending or another dispatcher holds it.
	ClaimNotification(ctx context.Context, id uuid.UUID, maxAttempts int) (*domain.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkNotificationFailed(ctx context.Context, id uuid.UUID, reason string) error

	// InsertPaymentEvent returns ErrDuplicate if the event was already recorded.
	InsertPaymentEvent(ctx context.Context, e *domain.PaymentEvent) error
}
