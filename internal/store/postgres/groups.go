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

func (t *tx) CreateGroup(ctx context.Context, g *domain.Group) error {
	query := `
		INSERT INTO groups (id, name, description, max_members, contribution_amount, total_savings, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.tx.ExecContext(ctx, query,
		g.ID, g.Name, g.Description, g.MaxMembers, g.ContributionAmount, g.TotalSavings, g.AdminID, g.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (t *tx) GetGroup(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.Group, error) {
	query := `
		SELECT id, name, description, max_members, contribution_amount, total_savings, admin_id, created_at
		FROM groups
		WHERE id = $1` + lockClause(lock)

	g := &domain.Group{}
	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.Name,
		&g.Description,
		&g.MaxMembers,
		&g.ContributionAmount,
		&g.TotalSavings,
		&g.AdminID,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return g, nil
}

func (t *tx) ListFundedGroupIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM groups WHERE total_savings > 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list funded groups: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *tx) AddGroupSavings(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	ok, err := t.execAffected(ctx, `UPDATE groups SET total_savings = total_savings + $1 WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("failed to update group savings: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to update group savings: group %s not found", id)
	}
	return nil
}

const memberColumns = `id, user_id, group_id, is_admin, total_savings, last_payment, status, joined_at`

func scanMember(row interface{ Scan(...any) error }) (*domain.Member, error) {
	m := &domain.Member{}
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.GroupID,
		&m.IsAdmin,
		&m.TotalSavings,
		&m.LastPayment,
		&m.Status,
		&m.JoinedAt,
	)
	return m, err
}

func (t *tx) CreateMember(ctx context.Context, m *domain.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.tx.ExecContext(ctx, query,
		m.ID, m.UserID, m.GroupID, m.IsAdmin, m.TotalSavings, m.LastPayment, m.Status, m.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (t *tx) GetMember(ctx context.Context, groupID uuid.UUID, userID string, lock store.Lock) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE group_id = $1 AND user_id = $2` + lockClause(lock)
	m, err := scanMember(t.tx.QueryRowContext(ctx, query, groupID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (t *tx) GetMemberByID(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1` + lockClause(lock)
	m, err := scanMember(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (t *tx) ListMembers(ctx context.Context, groupID uuid.UUID, status domain.MemberStatus) ([]*domain.Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM members
		WHERE group_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY joined_at, id
	`
	rows, err := t.tx.QueryContext(ctx, query, groupID, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (t *tx) CountMembers(ctx context.Context, groupID uuid.UUID) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE group_id = $1`, groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

func (t *tx) AddMemberSavings(ctx context.Context, id uuid.UUID, delta decimal.Decimal, lastPayment *time.Time) error {
	query := `
		UPDATE members
		SET total_savings = total_savings + $1,
		    last_payment = COALESCE($2, last_payment)
		WHERE id = $3
	`
	ok, err := t.execAffected(ctx, query, delta, lastPayment, id)
	if err != nil {
		return fmt.Errorf("failed to update member savings: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to update member savings: member %s not found", id)
	}
	return nil
}

func (t *tx) CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	query := `
		INSERT INTO join_requests (id, user_id, group_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := t.tx.ExecContext(ctx, query, jr.ID, jr.UserID, jr.GroupID, jr.Message, jr.Status, jr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create join request: %w", err)
	}
	return nil
}

func (t *tx) scanJoinRequest(ctx context.Context, query string, args ...any) (*domain.JoinRequest, error) {
	jr := &domain.JoinRequest{}
	err := t.tx.QueryRowContext(ctx, query, args...).Scan(
		&jr.ID, &jr.UserID, &jr.GroupID, &jr.Message, &jr.Status, &jr.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return jr, nil
}

func (t *tx) GetJoinRequest(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.JoinRequest, error) {
	query := `
		SELECT id, user_id, group_id, message, status, created_at
		FROM join_requests
		WHERE id = $1` + lockClause(lock)
	return t.scanJoinRequest(ctx, query, id)
}

func (t *tx) FindPendingJoinRequest(ctx context.Context, groupID uuid.UUID, userID string) (*domain.JoinRequest, error) {
	query := `
		SELECT id, user_id, group_id, message, status, created_at
		FROM join_requests
		WHERE group_id = $1 AND user_id = $2 AND status = 'PENDING'
	`
	return t.scanJoinRequest(ctx, query, groupID, userID)
}

func (t *tx) SetJoinRequestStatus(ctx context.Context, id uuid.UUID, from, to domain.JoinRequestStatus) (bool, error) {
	ok, err := t.execAffected(ctx, `UPDATE join_requests SET status = $1 WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update join request: %w", err)
	}
	return ok, nil
}
