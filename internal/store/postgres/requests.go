package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

func (t *tx) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	query := `
		INSERT INTO contributions (id, amount, date, status, member_id, group_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := t.tx.ExecContext(ctx, query, c.ID, c.Amount, c.Date, c.Status, c.MemberID, c.GroupID, c.Notes)
	if err != nil {
		return fmt.Errorf("failed to create contribution: %w", err)
	}
	return nil
}

func (t *tx) CountCompletedContributions(ctx context.Context, memberID uuid.UUID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM contributions WHERE member_id = $1 AND status = 'COMPLETED'`
	if err := t.tx.QueryRowContext(ctx, query, memberID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count contributions: %w", err)
	}
	return n, nil
}

func (t *tx) CreateFundRequest(ctx context.Context, fr *domain.FundRequest) error {
	query := `
		INSERT INTO fund_requests (id, type, amount, reason, status, member_id, group_id, loan_duration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var duration sql.NullString
	if fr.LoanDuration != "" {
		duration = sql.NullString{String: string(fr.LoanDuration), Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, query,
		fr.ID, fr.Type, fr.Amount, fr.Reason, fr.Status, fr.MemberID, fr.GroupID, duration, fr.CreatedAt, fr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fund request: %w", err)
	}
	return nil
}

func (t *tx) GetFundRequest(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.FundRequest, error) {
	query := `
		SELECT id, type, amount, reason, status, member_id, group_id, loan_duration, created_at, updated_at
		FROM fund_requests
		WHERE id = $1` + lockClause(lock)

	fr := &domain.FundRequest{}
	var duration sql.NullString
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&fr.ID,
		&fr.Type,
		&fr.Amount,
		&fr.Reason,
		&fr.Status,
		&fr.MemberID,
		&fr.GroupID,
		&duration,
		&fr.CreatedAt,
		&fr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get fund request: %w", err)
	}
	fr.LoanDuration = domain.LoanDuration(duration.String)
	return fr, nil
}

func (t *tx) SetFundRequestStatus(ctx context.Context, id uuid.UUID, from, to domain.FundRequestStatus, at time.Time) (bool, error) {
	query := `UPDATE fund_requests SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	ok, err := t.execAffected(ctx, query, to, at, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update fund request status: %w", err)
	}
	return ok, nil
}

func (t *tx) UpsertApproval(ctx context.Context, a *domain.RequestApproval) error {
	query := `
		INSERT INTO request_approvals (id, approved, request_id, member_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id, member_id)
		DO UPDATE SET approved = EXCLUDED.approved, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err := t.tx.QueryRowContext(ctx, query, a.ID, a.Approved, a.RequestID, a.MemberID, a.CreatedAt, a.UpdatedAt).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record vote: %w", err)
	}
	return nil
}

func (t *tx) ListApprovals(ctx context.Context, requestID uuid.UUID) ([]domain.RequestApproval, error) {
	query := `
		SELECT id, approved, request_id, member_id, created_at, updated_at
		FROM request_approvals
		WHERE request_id = $1
		ORDER BY created_at
	`
	rows, err := t.tx.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []domain.RequestApproval
	for rows.Next() {
		var a domain.RequestApproval
		if err := rows.Scan(&a.ID, &a.Approved, &a.RequestID, &a.MemberID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, a)
	}
	return votes, rows.Err()
}
