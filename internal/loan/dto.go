package loan

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

// PaymentRequest represents a loan repayment
type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// LoanResponse represents a loan after a repayment
type LoanResponse struct {
	ID              string            `json:"id"`
	Amount          decimal.Decimal   `json:"amount"`
	Interest        decimal.Decimal   `json:"interest"`
	PaidAmount      decimal.Decimal   `json:"paidAmount"`
	RemainingAmount decimal.Decimal   `json:"remainingAmount"`
	DueDate         string            `json:"dueDate"`
	Status          domain.LoanStatus `json:"status"`
	PaymentID       string            `json:"paymentId"`
}

// SweepResponse reports the outcome of an overdue sweep
type SweepResponse struct {
	MarkedOverdue int `json:"markedOverdue"`
}

func toLoanResponse(r *PaymentResult) *LoanResponse {
	l := r.Loan
	return &LoanResponse{
		ID:              l.ID.String(),
		Amount:          l.Amount,
		Interest:        l.Interest,
		PaidAmount:      l.PaidAmount,
		RemainingAmount: l.Outstanding(),
		DueDate:         l.DueDate.Format("2006-01-02T15:04:05Z07:00"),
		Status:          l.Status,
		PaymentID:       r.Payment.ID.String(),
	}
}
