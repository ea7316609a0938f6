package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanDuration is the repayment window chosen when requesting a loan
type LoanDuration string

const (
	LoanDurationWeek     LoanDuration = "week"
	LoanDurationTwoWeeks LoanDuration = "twoWeeks"
	LoanDurationMonth    LoanDuration = "month"
)

var loanDurationDays = map[LoanDuration]int{
	LoanDurationWeek:     7,
	LoanDurationTwoWeeks: 14,
	LoanDurationMonth:    30,
}

// ParseLoanDuration accepts the known durations. Empty means one week.
func ParseLoanDuration(s string) (LoanDuration, error) {
	if s == "" {
		return LoanDurationWeek, nil
	}
	d := LoanDuration(s)
	if _, ok := loanDurationDays[d]; !ok {
		return "", fmt.Errorf("unknown loan duration %q", s)
	}
	return d, nil
}

// Days returns the length of the repayment window.
func (d LoanDuration) Days() int {
	if days, ok := loanDurationDays[d]; ok {
		return days
	}
	return loanDurationDays[LoanDurationWeek]
}

// LoanStatus is the state of a disbursed loan
type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanPaid      LoanStatus = "PAID"
	LoanOverdue   LoanStatus = "OVERDUE"
	LoanDefaulted LoanStatus = "DEFAULTED"
)

// DEFAULTED has edges in the table, but no operation currently takes them.
var loanTransitions = transitionTable[LoanStatus]{
	LoanActive:  {LoanPaid, LoanOverdue, LoanDefaulted},
	LoanOverdue: {LoanPaid, LoanDefaulted},
}

// TransitionTo validates the move from s to next.
func (s LoanStatus) TransitionTo(next LoanStatus) error {
	return loanTransitions.check("loan", s, next)
}

// AcceptsPayments reports whether repayments can still be applied.
func (s LoanStatus) AcceptsPayments() bool {
	return s == LoanActive || s == LoanOverdue
}

// DefaultInterestRate applies when no rate is configured.
var DefaultInterestRate = decimal.NewFromFloat(0.05)

// Loan is created when a LOAN request reaches quorum
type Loan struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Interest   decimal.Decimal `json:"interest"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	DueDate    time.Time       `json:"due_date"`
	Status     LoanStatus      `json:"status"`
	BorrowerID uuid.UUID       `json:"borrower_id"`
	GroupID    uuid.UUID       `json:"group_id"`
	RequestID  uuid.UUID       `json:"request_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TotalDue is principal plus interest.
func (l *Loan) TotalDue() decimal.Decimal {
	return l.Amount.Add(l.Interest)
}

// Outstanding is what remains to be repaid, never below zero.
func (l *Loan) Outstanding() decimal.Decimal {
	rest := l.TotalDue().Sub(l.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// NewLoan builds the loan for an approved request.
func NewLoan(req *FundRequest, rate decimal.Decimal, now time.Time) *Loan {
	return &Loan{
		ID:         uuid.New(),
		Amount:     req.Amount,
		Interest:   req.Amount.Mul(rate).Round(2),
		PaidAmount: decimal.Zero,
		DueDate:    now.AddDate(0, 0, req.LoanDuration.Days()),
		Status:     LoanActive,
		BorrowerID: req.MemberID,
		GroupID:    req.GroupID,
		RequestID:  req.ID,
		CreatedAt:  now,
	}
}

// LoanPayment is one repayment toward a loan
type LoanPayment struct {
	ID          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	LoanID      uuid.UUID       `json:"loan_id"`
	PaymentDate time.Time       `json:"payment_date"`
}
