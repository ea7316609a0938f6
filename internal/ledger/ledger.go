// Package ledger is the only place group and member balances change. Each
// posting locks the affected rows, refuses to overdraw, applies the signed
// deltas for its entry kind and journals a ledger entry, all inside the
// caller's transaction.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

var (
	ErrInsufficientGroupFunds  = apperror.Conflict("Insufficient group funds")
	ErrInsufficientMemberFunds = apperror.Conflict("Insufficient member savings")
	ErrMemberRequired          = apperror.Validation("A member is required for this ledger entry")
)

// effect is the sign applied to each balance for one unit of amount.
type effect struct {
	member int64
	group  int64
}

var effects = map[domain.EntryKind]effect{
	domain.EntryContribution:       {member: 1, group: 1},
	domain.EntryLoanDisbursement:   {member: 0, group: -1},
	domain.EntryPayoutDisbursement: {member: -1, group: -1},
	domain.EntryScheduledPayout:    {member: -1, group: -1},
	domain.EntryLoanRepayment:      {member: 0, group: 1},
}

// Posting describes one balance change.
type Posting struct {
	Kind        domain.EntryKind
	GroupID     uuid.UUID
	MemberID    uuid.UUID
	Amount      decimal.Decimal
	ReferenceID uuid.UUID
	// At stamps the entry; zero means now.
	At time.Time
}

// Recorder is told about every posting, including ones later rolled back.
type Recorder interface {
	LedgerPosted(kind domain.EntryKind, amount decimal.Decimal)
}

// Ledger applies postings
type Ledger struct {
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
}

// New creates a ledger. recorder may be nil.
func New(logger *slog.Logger, recorder Recorder) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{logger: logger, recorder: recorder, now: time.Now}
}

// Post applies p within tx and returns the journal entry it wrote.
func (l *Ledger) Post(ctx context.Context, tx store.Tx, p Posting) (*domain.LedgerEntry, error) {
	eff, ok := effects[p.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown ledger entry kind %q", p.Kind)
	}
	if err := domain.ValidateAmount(p.Amount); err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "Ledger amount must be a positive amount in cents", err)
	}

	groupDelta := p.Amount.Mul(decimal.NewFromInt(eff.group))
	memberDelta := p.Amount.Mul(decimal.NewFromInt(eff.member))

	group, err := tx.GetGroup(ctx, p.GroupID, store.ForUpdate)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("ledger posting for missing group %s", p.GroupID)
	}
	if group.TotalSavings.Add(groupDelta).IsNegative() {
		return nil, ErrInsufficientGroupFunds
	}

	var member *domain.Member
	if eff.member != 0 || p.MemberID != uuid.Nil {
		if p.MemberID == uuid.Nil {
			return nil, ErrMemberRequired
		}
		member, err = tx.GetMemberByID(ctx, p.MemberID, store.ForUpdate)
		if err != nil {
			return nil, err
		}
		if member == nil || member.GroupID != p.GroupID {
			return nil, fmt.Errorf("ledger posting for member %s outside group %s", p.MemberID, p.GroupID)
		}
		if member.TotalSavings.Add(memberDelta).IsNegative() {
			return nil, ErrInsufficientMemberFunds
		}
	}

	now := p.At
	if now.IsZero() {
		now = l.now()
	}
	if !groupDelta.IsZero() {
		if err := tx.AddGroupSavings(ctx, group.ID, groupDelta); err != nil {
			return nil, err
		}
	}
	if member != nil && eff.member != 0 {
		var lastPayment *time.Time
		if p.Kind == domain.EntryContribution {
			lastPayment = &now
		}
		if err := tx.AddMemberSavings(ctx, member.ID, memberDelta, lastPayment); err != nil {
			return nil, err
		}
	}

	entry := &domain.LedgerEntry{
		ID:          uuid.New(),
		GroupID:     group.ID,
		Kind:        p.Kind,
		Amount:      p.Amount,
		GroupDelta:  groupDelta,
		MemberDelta: memberDelta,
		ReferenceID: p.ReferenceID,
		CreatedAt:   now,
	}
	if member != nil {
		id := member.ID
		entry.MemberID = &id
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}

	l.logger.DebugContext(ctx, "ledger posting",
		"kind", p.Kind,
		"group_id", group.ID,
		"amount", p.Amount.String(),
		"group_delta", groupDelta.String(),
	)
	if l.recorder != nil {
		l.recorder.LedgerPosted(p.Kind, p.Amount)
	}
	return entry, nil
}
