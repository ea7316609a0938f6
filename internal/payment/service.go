// Package payment applies settled payments reported by the payment provider.
// Each provider event is recorded once; redelivery is acknowledged and
// ignored.
package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/contribution"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/loan"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

// EventCompleted is the only event type that moves money.
const EventCompleted = "payment.completed"

// Event kinds recorded on the payment event row.
const (
	KindContribution  = "CONTRIBUTION"
	KindLoanRepayment = "LOAN_REPAYMENT"
)

// Common errors
var (
	ErrMissingEventID = apperror.Validation("Event id is required")
	ErrInvalidGroupID = apperror.Validation("Event metadata has an invalid groupId")
	ErrMissingUserID  = apperror.Validation("Event metadata is missing userId")
	ErrInvalidLoanID  = apperror.Validation("Event metadata has an invalid loanId")
	ErrInvalidAmount  = apperror.Validation("Event amount must be positive")
)

// Metadata is attached to the checkout session when it is created.
type Metadata struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
	Notes   string `json:"notes,omitempty"`
	LoanID  string `json:"loanId,omitempty"`
}

// Event is the provider callback body. AmountTotal is in minor units.
type Event struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	AmountTotal int64    `json:"amount_total"`
	Metadata    Metadata `json:"metadata"`
}

// Contributor records a contribution inside a caller's transaction.
type Contributor interface {
	ContributeTx(ctx context.Context, tx store.Tx, in contribution.Input) (*contribution.Result, error)
}

// Repayer applies a loan payment inside a caller's transaction.
type Repayer interface {
	ApplyPaymentTx(ctx context.Context, tx store.Tx, in loan.PaymentInput) (*loan.PaymentResult, error)
}

// Outcome describes what an event did
type Outcome struct {
	Ignored      bool
	Duplicate    bool
	Kind         string
	Contribution *contribution.Result
	Repayment    *loan.PaymentResult
}

// Service routes settled payments
type Service struct {
	store         store.Store
	contributions Contributor
	loans         Repayer
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a new payment service
func NewService(st store.Store, contributions Contributor, loans Repayer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         st,
		contributions: contributions,
		loans:         loans,
		logger:        logger,
		now:           time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

type parsedEvent struct {
	groupID uuid.UUID
	loanID  uuid.UUID
	amount  decimal.Decimal
}

func parse(ev *Event) (*parsedEvent, error) {
	if strings.TrimSpace(ev.ID) == "" {
		return nil, ErrMissingEventID
	}
	groupID, err := uuid.Parse(ev.Metadata.GroupID)
	if err != nil {
		return nil, ErrInvalidGroupID
	}
	if strings.TrimSpace(ev.Metadata.UserID) == "" {
		return nil, ErrMissingUserID
	}
	if ev.AmountTotal <= 0 {
		return nil, ErrInvalidAmount
	}
	p := &parsedEvent{groupID: groupID, amount: decimal.New(ev.AmountTotal, -2)}
	if ev.Metadata.LoanID != "" {
		if p.loanID, err = uuid.Parse(ev.Metadata.LoanID); err != nil {
			return nil, ErrInvalidLoanID
		}
	}
	return p, nil
}

// HandleEvent applies a completed payment as a loan repayment when it names a
// loan and as a contribution otherwise. The event row and its effect commit
// together, so a failed application can be redelivered.
func (s *Service) HandleEvent(ctx context.Context, ev *Event) (*Outcome, error) {
	if ev.Type != EventCompleted {
		s.logger.DebugContext(ctx, "payment event ignored", "event_id", ev.ID, "type", ev.Type)
		return &Outcome{Ignored: true}, nil
	}
	p, err := parse(ev)
	if err != nil {
		return nil, err
	}

	kind := KindContribution
	if p.loanID != uuid.Nil {
		kind = KindLoanRepayment
	}

	out := &Outcome{Kind: kind}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		err := tx.InsertPaymentEvent(ctx, &domain.PaymentEvent{
			EventID:     ev.ID,
			Kind:        kind,
			GroupID:     p.groupID,
			UserID:      ev.Metadata.UserID,
			Amount:      p.amount,
			ProcessedAt: s.now(),
		})
		if errors.Is(err, store.ErrDuplicate) {
			out.Duplicate = true
			return nil
		}
		if err != nil {
			return err
		}

		if kind == KindLoanRepayment {
			out.Repayment, err = s.loans.ApplyPaymentTx(ctx, tx, loan.PaymentInput{
				GroupID: p.groupID,
				UserID:  ev.Metadata.UserID,
				LoanID:  p.loanID,
				Amount:  p.amount,
			})
			return err
		}
		out.Contribution, err = s.contributions.ContributeTx(ctx, tx, contribution.Input{
			GroupID: p.groupID,
			UserID:  ev.Metadata.UserID,
			Amount:  p.amount,
			Notes:   ev.Metadata.Notes,
		})
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "payment event rejected", "event_id", ev.ID, "error", err)
		return nil, err
	}

	if out.Duplicate {
		s.logger.InfoContext(ctx, "payment event already processed", "event_id", ev.ID)
	} else {
		s.logger.InfoContext(ctx, "payment event applied",
			"event_id", ev.ID,
			"kind", kind,
			"group_id", p.groupID,
			"amount", p.amount.String(),
		)
	}
	return out, nil
}
