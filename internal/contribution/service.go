package contribution

import (
	"context"
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

// Input identifies who contributes what to which group
type Input struct {
	GroupID uuid.UUID
	UserID  string
	Amount  decimal.Decimal
	Notes   string
}

// Result is a committed contribution with the balances it produced
type Result struct {
	Contribution       *domain.Contribution
	MemberTotalSavings decimal.Decimal
	GroupTotalSavings  decimal.Decimal
}

// Service records contributions
type Service struct {
	store  store.Store
	ledger *ledger.Ledger
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new contribution service
func NewService(st store.Store, l *ledger.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, ledger: l, logger: logger, now: time.Now}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Contribute records a completed contribution in its own transaction
func (s *Service) Contribute(ctx context.Context, in Input) (*Result, error) {
	var res *Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		res, err = s.ContributeTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "contribution recorded",
		"group_id", in.GroupID,
		"member_id", res.Contribution.MemberID,
		"amount", res.Contribution.Amount.String(),
	)
	return res, nil
}

// ContributeTx records a contribution inside an existing transaction
func (s *Service) ContributeTx(ctx context.Context, tx store.Tx, in Input) (*Result, error) {
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "Amount must be a positive amount in cents", err)
	}

	// The ledger locks the group and then the member.
	actor, err := access.Member(ctx, tx, in.GroupID, in.UserID, store.NoLock)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &domain.Contribution{
		ID:       uuid.New(),
		Amount:   in.Amount,
		Date:     now,
		Status:   domain.ContributionCompleted,
		MemberID: actor.Member.ID,
		GroupID:  in.GroupID,
		Notes:    strings.TrimSpace(in.Notes),
	}
	if err := tx.CreateContribution(ctx, c); err != nil {
		return nil, err
	}

	if _, err := s.ledger.Post(ctx, tx, ledger.Posting{
		Kind:        domain.EntryContribution,
		GroupID:     in.GroupID,
		MemberID:    actor.Member.ID,
		Amount:      in.Amount,
		ReferenceID: c.ID,
		At:          now,
	}); err != nil {
		return nil, err
	}

	batch := notification.NewBatch(now)
	batch.ContributionReceived(actor.Member, c, actor.Group.Name)
	if err := batch.Flush(ctx, tx); err != nil {
		return nil, err
	}

	// The ledger holds both row locks, so these reads are current.
	group, err := tx.GetGroup(ctx, in.GroupID, store.NoLock)
	if err != nil {
		return nil, err
	}
	member, err := tx.GetMemberByID(ctx, actor.Member.ID, store.NoLock)
	if err != nil {
		return nil, err
	}
	return &Result{
		Contribution:       c,
		MemberTotalSavings: member.TotalSavings,
		GroupTotalSavings:  group.TotalSavings,
	}, nil
}
