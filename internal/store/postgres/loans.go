package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

const loanColumns = `id, amount, interest, paid_amount, due_date, status, borrower_id, group_id, request_id, created_at`

func scanLoan(row interface{ Scan(...any) error }) (*domain.Loan, error) {
	l := &domain.Loan{}
	err := row.Scan(
		&l.ID,
		&l.Amount,
		&l.Interest,
		&l.PaidAmount,
		&l.DueDate,
		&l.Status,
		&l.BorrowerID,
		&l.GroupID,
		&l.RequestID,
		&l.CreatedAt,
	)
	return l, err
}

func (t *tx) CreateLoan(ctx context.Context, l *domain.Loan) error {
	query := `INSERT INTO loans (` + loanColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := t.tx.ExecContext(ctx, query,
		l.ID, l.Amount, l.Interest, l.PaidAmount, l.DueDate, l.Status, l.BorrowerID, l.GroupID, l.RequestID, l.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (t *tx) getLoan(ctx context.Context, query string, arg any) (*domain.Loan, error) {
	l, err := scanLoan(t.tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return l, nil
}

func (t *tx) GetLoan(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.Loan, error) {
	return t.getLoan(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`+lockClause(lock), id)
}

func (t *tx) GetLoanByRequest(ctx context.Context, requestID uuid.UUID) (*domain.Loan, error) {
	return t.getLoan(ctx, `SELECT `+loanColumns+` FROM loans WHERE request_id = $1`, requestID)
}

func (t *tx) ListDueLoans(ctx context.Context, now time.Time) ([]*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = 'ACTIVE' AND due_date < $1
		ORDER BY due_date
		FOR UPDATE SKIP LOCKED
	`
	rows, err := t.tx.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due loans: %w", err)
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func (t *tx) RecordLoanPayment(ctx context.Context, p *domain.LoanPayment, paidAmount decimal.Decimal, status domain.LoanStatus) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO loan_payments (id, amount, loan_id, payment_date) VALUES ($1, $2, $3, $4)`,
		p.ID, p.Amount, p.LoanID, p.PaymentDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan payment: %w", err)
	}

	ok, err := t.execAffected(ctx, `UPDATE loans SET paid_amount = $1, status = $2 WHERE id = $3`, paidAmount, status, p.LoanID)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to update loan: loan %s not found", p.LoanID)
	}
	return nil
}

func (t *tx) SetLoanStatus(ctx context.Context, id uuid.UUID, from, to domain.LoanStatus) (bool, error) {
	ok, err := t.execAffected(ctx, `UPDATE loans SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update loan status: %w", err)
	}
	return ok, nil
}
