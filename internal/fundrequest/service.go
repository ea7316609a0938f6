package fundrequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
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

// PayoutWaitDays is how long a member must wait after their last
// contribution before asking for a payout.
const PayoutWaitDays = 30

// Common errors
var (
	ErrInvalidType           = apperror.Validation("Request type must be LOAN or PAYOUT")
	ErrReasonTooShort        = apperror.Validationf("Reason must be at least %d characters", domain.MinReasonLength)
	ErrInvalidDuration       = apperror.Validation("Loan duration must be week, twoWeeks or month")
	ErrLoanExceedsTwice      = apperror.Validation("Loan amount cannot exceed twice your total contributions")
	ErrRequestExceedsTwice   = apperror.Validation("Request amount cannot exceed twice your total contributions")
	ErrExceedsGroupSavings   = apperror.Validation("Request amount cannot exceed the group's total savings")
	ErrNoContributions       = apperror.Validation("You need to have made contributions first")
	ErrNoPaymentHistory      = apperror.Validation("No payment history found")
	ErrPayoutExceedsHalf     = apperror.Validation("Payout amount cannot exceed 50% of your total contributions")
	ErrRequestNotFound       = apperror.NotFound("Request not found")
	ErrVotingClosed          = apperror.Conflict("Request is no longer open for voting")
	ErrRequestNotApproved    = apperror.Conflict("Request must be approved first")
	ErrRequesterNotFound     = apperror.NotFound("Requesting member not found")
	ErrLoanAlreadyRegistered = apperror.Conflict("A loan already exists for this request")
)

// TransitionRecorder is told about every committed status change.
type TransitionRecorder interface {
	FundRequestTransitioned(status domain.FundRequestStatus)
}

// CreateInput is a member's request for funds
type CreateInput struct {
	GroupID  uuid.UUID
	UserID   string
	Type     domain.FundRequestType
	Amount   decimal.Decimal
	Reason   string
	Duration string
}

// VoteInput is one member's vote on a request
type VoteInput struct {
	GroupID   uuid.UUID
	UserID    string
	RequestID uuid.UUID
	Approved  bool
}

// Detail is a request as seen by one member
type Detail struct {
	Request *domain.FundRequest
	Voting  domain.VotingStatus
	Loan    *domain.Loan
}

// Service runs the fund request workflow
type Service struct {
	store        store.Store
	ledger       *ledger.Ledger
	interestRate decimal.Decimal
	logger       *slog.Logger
	recorder     TransitionRecorder
	now          func() time.Time
}

// NewService creates a new fund request service. A zero interestRate uses
// domain.DefaultInterestRate; recorder may be nil.
func NewService(st store.Store, l *ledger.Ledger, interestRate decimal.Decimal, logger *slog.Logger, recorder TransitionRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if interestRate.IsZero() {
		interestRate = domain.DefaultInterestRate
	}
	return &Service{
		store:        st,
		ledger:       l,
		interestRate: interestRate,
		logger:       logger,
		recorder:     recorder,
		now:          time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) transitioned(status domain.FundRequestStatus) {
	if s.recorder != nil {
		s.recorder.FundRequestTransitioned(status)
	}
}

func validateCreate(in *CreateInput) (domain.LoanDuration, error) {
	if !in.Type.Valid() {
		return "", ErrInvalidType
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return "", apperror.Wrap(apperror.KindValidation, "Amount must be a positive amount in cents", err)
	}
	if len(strings.TrimSpace(in.Reason)) < domain.MinReasonLength {
		return "", ErrReasonTooShort
	}
	if in.Type != domain.FundRequestLoan {
		return "", nil
	}
	d, err := domain.ParseLoanDuration(in.Duration)
	if err != nil {
		return "", apperror.Wrap(apperror.KindValidation, ErrInvalidDuration.Message, err)
	}
	return d, nil
}

// checkEligibility applies the amount bounds for the requester.
func (s *Service) checkEligibility(ctx context.Context, tx store.Tx, actor *access.Actor, in *CreateInput, now time.Time) error {
	member := actor.Member

	if in.Type == domain.FundRequestPayout {
		count, err := tx.CountCompletedContributions(ctx, member.ID)
		if err != nil {
			return err
		}
		if count == 0 || !member.TotalSavings.IsPositive() {
			return ErrNoContributions
		}
		if member.LastPayment == nil {
			return ErrNoPaymentHistory
		}
		days := int(now.Sub(*member.LastPayment).Hours() / 24)
		if days < PayoutWaitDays {
			return apperror.Validationf("You need to wait %d more days before requesting a payout", PayoutWaitDays-days)
		}
		if in.Amount.GreaterThan(member.TotalSavings.Div(decimal.NewFromInt(2))) {
			return ErrPayoutExceedsHalf
		}
	}

	if in.Amount.GreaterThan(member.TotalSavings.Mul(decimal.NewFromInt(2))) {
		if in.Type == domain.FundRequestLoan {
			return ErrLoanExceedsTwice
		}
		return ErrRequestExceedsTwice
	}
	if in.Amount.GreaterThan(actor.Group.TotalSavings) {
		return ErrExceedsGroupSavings
	}
	return nil
}

// Create validates and records a PENDING request, then tells the group
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.FundRequest, error) {
	duration, err := validateCreate(&in)
	if err != nil {
		return nil, err
	}

	var created *domain.FundRequest
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		actor, err := access.Member(ctx, tx, in.GroupID, in.UserID, store.NoLock)
		if err != nil {
			return err
		}
		now := s.now()
		if err := s.checkEligibility(ctx, tx, actor, &in, now); err != nil {
			return err
		}

		fr := &domain.FundRequest{
			ID:           uuid.New(),
			Type:         in.Type,
			Amount:       in.Amount,
			Reason:       strings.TrimSpace(in.Reason),
			Status:       domain.FundRequestPending,
			MemberID:     actor.Member.ID,
			GroupID:      in.GroupID,
			LoanDuration: duration,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateFundRequest(ctx, fr); err != nil {
			return err
		}

		members, err := tx.ListMembers(ctx, in.GroupID, domain.MemberStatusActive)
		if err != nil {
			return err
		}
		batch := notification.NewBatch(now)
		batch.FundRequestCreated(members, fr, actor.Group.Name)
		if err := batch.Flush(ctx, tx); err != nil {
			return err
		}

		created = fr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(domain.FundRequestPending)
	s.logger.InfoContext(ctx, "fund request created",
		"request_id", created.ID,
		"group_id", created.GroupID,
		"type", created.Type,
		"amount", created.Amount.String(),
	)
	return created, nil
}

// loadRequest returns the request if it belongs to groupID.
func loadRequest(ctx context.Context, tx store.Tx, groupID, requestID uuid.UUID, lock store.Lock) (*domain.FundRequest, error) {
	fr, err := tx.GetFundRequest(ctx, requestID, lock)
	if err != nil {
		return nil, err
	}
	if fr == nil || fr.GroupID != groupID {
		return nil, ErrRequestNotFound
	}
	return fr, nil
}

func tally(ctx context.Context, tx store.Tx, fr *domain.FundRequest, viewer uuid.UUID) (domain.VotingStatus, error) {
	members, err := tx.ListMembers(ctx, fr.GroupID, domain.MemberStatusActive)
	if err != nil {
		return domain.VotingStatus{}, err
	}
	votes, err := tx.ListApprovals(ctx, fr.ID)
	if err != nil {
		return domain.VotingStatus{}, err
	}
	return domain.Tally(len(members), votes, viewer), nil
}

// Vote records the caller's vote and moves the request once the outcome is
// decided. Voting again replaces the caller's earlier vote.
func (s *Service) Vote(ctx context.Context, in VoteInput) (*Detail, error) {
	var (
		detail *Detail
		moved  domain.FundRequestStatus
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		actor, err := access.Member(ctx, tx, in.GroupID, in.UserID, store.NoLock)
		if err != nil {
			return err
		}
		fr, err := loadRequest(ctx, tx, in.GroupID, in.RequestID, store.ForUpdate)
		if err != nil {
			return err
		}
		if fr.Status != domain.FundRequestPending {
			return ErrVotingClosed
		}

		now := s.now()
		if err := tx.UpsertApproval(ctx, &domain.RequestApproval{
			ID:        uuid.New(),
			Approved:  in.Approved,
			RequestID: fr.ID,
			MemberID:  actor.Member.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		vs, err := tally(ctx, tx, fr, actor.Member.ID)
		if err != nil {
			return err
		}
		detail = &Detail{Request: fr, Voting: vs}

		next := vs.Outcome()
		if next == domain.FundRequestPending {
			return nil
		}
		if err := fr.Status.TransitionTo(next); err != nil {
			return apperror.Wrap(apperror.KindConflict, ErrVotingClosed.Message, err)
		}
		ok, err := tx.SetFundRequestStatus(ctx, fr.ID, domain.FundRequestPending, next, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrVotingClosed
		}
		fr.Status = next
		fr.UpdatedAt = now
		moved = next

		requester, err := tx.GetMemberByID(ctx, fr.MemberID, store.NoLock)
		if err != nil {
			return err
		}
		if requester == nil {
			return ErrRequesterNotFound
		}

		batch := notification.NewBatch(now)
		if next == domain.FundRequestRejected {
			batch.RequestRejected(requester, fr)
			return batch.Flush(ctx, tx)
		}

		if fr.Type == domain.FundRequestLoan {
			loan := domain.NewLoan(fr, s.interestRate, now)
			if err := tx.CreateLoan(ctx, loan); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return ErrLoanAlreadyRegistered
				}
				return err
			}
			detail.Loan = loan
		}

		admins, err := access.Admins(ctx, tx, fr.GroupID)
		if err != nil {
			return err
		}
		batch.RequestApproved(requester, fr)
		batch.AdminActionRequired(admins, fr)
		return batch.Flush(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	if moved != "" {
		s.transitioned(moved)
		s.logger.InfoContext(ctx, "fund request decided",
			"request_id", detail.Request.ID,
			"status", moved,
			"approvals", detail.Voting.CurrentApprovals,
			"required", detail.Voting.RequiredApprovals,
		)
	}
	return detail, nil
}

// Process disburses an approved request. Only group admins may do this.
func (s *Service) Process(ctx context.Context, groupID uuid.UUID, adminUserID string, requestID uuid.UUID) (*domain.FundRequest, error) {
	var processed *domain.FundRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := access.Admin(ctx, tx, groupID, adminUserID); err != nil {
			return err
		}
		fr, err := loadRequest(ctx, tx, groupID, requestID, store.ForUpdate)
		if err != nil {
			return err
		}
		if fr.Status != domain.FundRequestApproved {
			return ErrRequestNotApproved
		}
		if err := fr.Status.TransitionTo(domain.FundRequestCompleted); err != nil {
			return apperror.Wrap(apperror.KindConflict, ErrRequestNotApproved.Message, err)
		}

		now := s.now()
		ok, err := tx.SetFundRequestStatus(ctx, fr.ID, domain.FundRequestApproved, domain.FundRequestCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrRequestNotApproved
		}
		fr.Status = domain.FundRequestCompleted
		fr.UpdatedAt = now

		kind := domain.EntryLoanDisbursement
		if fr.Type == domain.FundRequestPayout {
			kind = domain.EntryPayoutDisbursement
		}
		if _, err := s.ledger.Post(ctx, tx, ledger.Posting{
			Kind:        kind,
			GroupID:     fr.GroupID,
			MemberID:    fr.MemberID,
			Amount:      fr.Amount,
			ReferenceID: fr.ID,
			At:          now,
		}); err != nil {
			return err
		}

		requester, err := tx.GetMemberByID(ctx, fr.MemberID, store.NoLock)
		if err != nil {
			return err
		}
		if requester == nil {
			return ErrRequesterNotFound
		}
		batch := notification.NewBatch(now)
		batch.RequestCompleted(requester, fr)
		if err := batch.Flush(ctx, tx); err != nil {
			return err
		}

		processed = fr
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitioned(domain.FundRequestCompleted)
	s.logger.InfoContext(ctx, "fund request processed",
		"request_id", processed.ID,
		"group_id", processed.GroupID,
		"amount", processed.Amount.String(),
	)
	return processed, nil
}

// Get returns a request with the caller's view of the vote
func (s *Service) Get(ctx context.Context, groupID uuid.UUID, userID string, requestID uuid.UUID) (*Detail, error) {
	var detail *Detail
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		actor, err := access.Member(ctx, tx, groupID, userID, store.NoLock)
		if err != nil {
			return err
		}
		fr, err := loadRequest(ctx, tx, groupID, requestID, store.NoLock)
		if err != nil {
			return err
		}
		vs, err := tally(ctx, tx, fr, actor.Member.ID)
		if err != nil {
			return err
		}
		detail = &Detail{Request: fr, Voting: vs}
		if fr.Type != domain.FundRequestLoan {
			return nil
		}
		loan, err := tx.GetLoanByRequest(ctx, fr.ID)
		if err != nil {
			return fmt.Errorf("load loan for request %s: %w", fr.ID, err)
		}
		detail.Loan = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}
