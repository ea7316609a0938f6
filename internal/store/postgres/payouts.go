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

func (t *tx) CreatePayoutSchedule(ctx context.Context, s *domain.PayoutSchedule) error {
	query := `
		INSERT INTO payout_schedules (id, date, total_amount, group_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := t.tx.ExecContext(ctx, query, s.ID, s.Date, s.TotalAmount, s.GroupID, s.Status, s.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create payout schedule: %w", err)
	}

	payoutQuery := `
		INSERT INTO member_payouts (id, schedule_id, amount, percentage, member_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, p := range s.Payouts {
		if _, err := t.tx.ExecContext(ctx, payoutQuery, p.ID, s.ID, p.Amount, p.Percentage, p.MemberID, p.Status); err != nil {
			return fmt.Errorf("failed to create member payout: %w", err)
		}
	}
	return nil
}

func (t *tx) loadSchedule(ctx context.Context, query string, args ...any) (*domain.PayoutSchedule, error) {
	s := &domain.PayoutSchedule{}
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.Date, &s.TotalAmount, &s.GroupID, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payout schedule: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, schedule_id, amount, percentage, member_id, status
		FROM member_payouts
		WHERE schedule_id = $1
		ORDER BY id
	`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list member payouts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.MemberPayout
		if err := rows.Scan(&p.ID, &p.ScheduleID, &p.Amount, &p.Percentage, &p.MemberID, &p.Status); err != nil {
			return nil, fmt.Errorf("failed to scan member payout: %w", err)
		}
		s.Payouts = append(s.Payouts, p)
	}
	return s, rows.Err()
}

func (t *tx) GetPayoutSchedule(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.PayoutSchedule, error) {
	query := `
		SELECT id, date, total_amount, group_id, status, created_at
		FROM payout_schedules
		WHERE id = $1` + lockClause(lock)
	return t.loadSchedule(ctx, query, id)
}

func (t *tx) FindPayoutSchedule(ctx context.Context, groupID uuid.UUID, date time.Time) (*domain.PayoutSchedule, error) {
	query := `
		SELECT id, date, total_amount, group_id, status, created_at
		FROM payout_schedules
		WHERE group_id = $1 AND date = $2
	`
	return t.loadSchedule(ctx, query, groupID, date)
}

func (t *tx) CompletePayoutSchedule(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := t.execAffected(ctx,
		`UPDATE payout_schedules SET status = 'COMPLETED' WHERE id = $1 AND status = 'SCHEDULED'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete payout schedule: %w", err)
	}
	if !ok {
		return false, nil
	}
	if _, err := t.tx.ExecContext(ctx, `UPDATE member_payouts SET status = 'COMPLETED' WHERE schedule_id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to complete member payouts: %w", err)
	}
	return true, nil
}
