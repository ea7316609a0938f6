package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayoutStatus is shared by schedules and the member payouts they contain
type PayoutStatus string

const (
	PayoutScheduled PayoutStatus = "SCHEDULED"
	PayoutCompleted PayoutStatus = "COMPLETED"
)

var payoutTransitions = transitionTable[PayoutStatus]{
	PayoutScheduled: {PayoutCompleted},
}

// TransitionTo validates the move from s to next.
func (s PayoutStatus) TransitionTo(next PayoutStatus) error {
	return payoutTransitions.check("payout schedule", s, next)
}

// PayoutSchedule is a monthly distribution of the group pool
type PayoutSchedule struct {
	ID          uuid.UUID       `json:"id"`
	Date        time.Time       `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	GroupID     uuid.UUID       `json:"group_id"`
	Status      PayoutStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Payouts     []MemberPayout  `json:"payouts"`
}

// MemberPayout is one member's share in a schedule
type MemberPayout struct {
	ID         uuid.UUID       `json:"id"`
	ScheduleID uuid.UUID       `json:"schedule_id"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
	MemberID   uuid.UUID       `json:"member_id"`
	Status     PayoutStatus    `json:"status"`
}

// Payouts are paid on the 20th at noon UTC.
const (
	payoutDay  = 20
	payoutHour = 12
)

// NextPayoutDate returns the payout date for the month of now, or for the
// following month once the 20th has passed.
func NextPayoutDate(now time.Time) time.Time {
	now = now.UTC()
	month := now.Month()
	if now.Day() > payoutDay {
		month++
	}
	return time.Date(now.Year(), month, payoutDay, payoutHour, 0, 0, 0, time.UTC)
}

// PayoutShare is the member's percentage of base, kept for reporting.
func PayoutShare(memberSavings, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return memberSavings.Div(base).Mul(decimal.NewFromInt(100)).Round(2)
}

// PayoutAmounts returns what each member is paid from pool. Members get their
// own savings unless together those exceed the pool (money out on loan), in
// which case the pool is split in proportion to savings. Amounts are whole
// cents and never sum past the pool.
func PayoutAmounts(savings []decimal.Decimal, pool decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(savings))
	total := decimal.Zero
	for _, s := range savings {
		total = total.Add(s)
	}
	if total.LessThanOrEqual(pool) {
		copy(out, savings)
		return out
	}
	if !pool.IsPositive() {
		for i := range out {
			out[i] = decimal.Zero
		}
		return out
	}

	paid := decimal.Zero
	largest := 0
	for i, s := range savings {
		out[i] = s.Mul(pool).Div(total).RoundDown(2)
		paid = paid.Add(out[i])
		if s.GreaterThan(savings[largest]) {
			largest = i
		}
	}
	// Rounding leaves less than a cent per member; the largest saver takes it.
	if rest := pool.Sub(paid); rest.IsPositive() {
		out[largest] = decimal.Min(out[largest].Add(rest), savings[largest])
	}
	return out
}

// PayoutBase is the amount payout percentages are reported against: the pool,
// or the members' combined savings when those exceed it.
func PayoutBase(savings []decimal.Decimal, pool decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, s := range savings {
		total = total.Add(s)
	}
	return decimal.Max(total, pool)
}
