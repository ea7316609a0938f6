package loan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/notification"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

// Common errors
var (
	ErrLoanNotFound     = apperror.NotFound("Loan not found")
	ErrNotBorrower      = apperror.Forbidden("Only the borrower can repay this loan")
	ErrLoanPaid         = apperror.Conflict("Loan is already paid")
	ErrLoanDefaulted    = apperror.Conflict("Loan has defaulted and no longer accepts payments")
	ErrLoanStateChanged = apperror.Conflict("Loan was updated concurrently, please retry")
)

// OverdueRecorder counts loans moved to OVERDUE.
type OverdueRecorder interface {
	LoansMarkedOverdue(n int)
}

// PaymentInput is a repayment toward a loan
type PaymentInput struct {
	GroupID uuid.UUID
	UserID  string
	LoanID  uuid.UUID
	Amount  decimal.Decimal
}

// PaymentResult is the loan after a repayment
type PaymentResult struct {
	Loan    *domain.Loan
	Payment *domain.LoanPayment
}

// Service manages loan repayment and overdue detection
type Service struct {
	store    store.Store
	ledger   *ledger.Ledger
	logger   *slog.Logger
	recorder OverdueRecorder
	now      func() time.Time
}

// NewService creates a new loan service. recorder may be nil.
func NewService(st store.Store, l *ledger.Ledger, logger *slog.Logger, recorder OverdueRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, ledger: l, logger: logger, recorder: recorder, now: time.Now}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ApplyPayment records a repayment in its own transaction
func (s *Service) ApplyPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	var res *PaymentResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = s.ApplyPaymentTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "loan payment applied",
		"loan_id", res.Loan.ID,
		"amount", res.Payment.Amount.String(),
		"paid_amount", res.Loan.PaidAmount.String(),
		"status", res.Loan.Status,
	)
	return res, nil
}

// ApplyPaymentTx records a repayment inside an existing transaction. The
// repayment goes back into the group pool.
func (s *Service) ApplyPaymentTx(ctx context.Context, tx store.Tx, in PaymentInput) (*PaymentResult, error) {
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "Amount must be a positive amount in cents", err)
	}

	actor, err := access.Member(ctx, tx, in.GroupID, in.UserID, store.NoLock)
	if err != nil {
		return nil, err
	}
	loan, err := tx.GetLoan(ctx, in.LoanID, store.ForUpdate)
	if err != nil {
		return nil, err
	}
	if loan == nil || loan.GroupID != in.GroupID {
		return nil, ErrLoanNotFound
	}
	if loan.BorrowerID != actor.Member.ID {
		return nil, ErrNotBorrower
	}
	switch {
	case loan.Status == domain.LoanPaid:
		return nil, ErrLoanPaid
	case !loan.Status.AcceptsPayments():
		return nil, ErrLoanDefaulted
	}

	outstanding := loan.Outstanding()
	if in.Amount.GreaterThan(outstanding) {
		return nil, apperror.Validationf("Payment exceeds the outstanding balance of %s", outstanding.StringFixed(2))
	}

	now := s.now()
	paid := loan.PaidAmount.Add(in.Amount)
	status := loan.Status
	if paid.GreaterThanOrEqual(loan.TotalDue()) {
		if err := status.TransitionTo(domain.LoanPaid); err != nil {
			return nil, apperror.Wrap(apperror.KindConflict, ErrLoanStateChanged.Message, err)
		}
		status = domain.LoanPaid
	}

	payment := &domain.LoanPayment{
		ID:          uuid.New(),
		Amount:      in.Amount,
		LoanID:      loan.ID,
		PaymentDate: now,
	}
	if err := tx.RecordLoanPayment(ctx, payment, paid, status); err != nil {
		return nil, err
	}
	loan.PaidAmount = paid
	loan.Status = status

	if _, err := s.ledger.Post(ctx, tx, ledger.Posting{
		Kind:        domain.EntryLoanRepayment,
		GroupID:     loan.GroupID,
		MemberID:    loan.BorrowerID,
		Amount:      in.Amount,
		ReferenceID: payment.ID,
		At:          now,
	}); err != nil {
		return nil, err
	}

	batch := notification.NewBatch(now)
	batch.LoanPaymentReceived(actor.Member, loan, in.Amount)
	if err := batch.Flush(ctx, tx); err != nil {
		return nil, err
	}

	return &PaymentResult{Loan: loan, Payment: payment}, nil
}

// RunOverdueSweep moves every ACTIVE loan past its due date to OVERDUE and
// warns the borrower and the group admin. Loans already handled by an earlier
// or concurrent run are skipped.
func (s *Service) RunOverdueSweep(ctx context.Context) (int, error) {
	now := s.now()
	marked := 0
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		marked = 0
		due, err := tx.ListDueLoans(ctx, now)
		if err != nil {
			return err
		}

		batch := notification.NewBatch(now)
		for _, loan := range due {
			ok, err := tx.SetLoanStatus(ctx, loan.ID, domain.LoanActive, domain.LoanOverdue)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			loan.Status = domain.LoanOverdue

			borrower, err := tx.GetMemberByID(ctx, loan.BorrowerID, store.NoLock)
			if err != nil {
				return err
			}
			group, err := tx.GetGroup(ctx, loan.GroupID, store.NoLock)
			if err != nil {
				return err
			}
			if borrower == nil || group == nil {
				return fmt.Errorf("overdue loan %s references a missing borrower or group", loan.ID)
			}
			batch.LoanOverdue(borrower.UserID, group.AdminID, loan)
			marked++
		}
		return batch.Flush(ctx, tx)
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		s.logger.InfoContext(ctx, "loans marked overdue", "count", marked)
	}
	if s.recorder != nil {
		s.recorder.LoansMarkedOverdue(marked)
	}
	return marked, nil
}
