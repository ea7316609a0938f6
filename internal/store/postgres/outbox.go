package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

func (t *tx) InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, group_id, member_id, kind, amount, group_delta, member_delta, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var memberID uuid.NullUUID
	if e.MemberID != nil {
		memberID = uuid.NullUUID{UUID: *e.MemberID, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, query,
		e.ID, e.GroupID, memberID, e.Kind, e.Amount, e.GroupDelta, e.MemberDelta, e.ReferenceID, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (t *tx) ListLedgerEntries(ctx context.Context, groupID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, group_id, member_id, kind, amount, group_delta, member_delta, reference_id, created_at
		FROM ledger_entries
		WHERE group_id = $1
		ORDER BY created_at, id
	`
	rows, err := t.tx.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var memberID uuid.NullUUID
		if err := rows.Scan(&e.ID, &e.GroupID, &memberID, &e.Kind, &e.Amount, &e.GroupDelta, &e.MemberDelta, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if memberID.Valid {
			id := memberID.UUID
			e.MemberID = &id
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *tx) InsertNotifications(ctx context.Context, ns []*domain.Notification) error {
	query := `
		INSERT INTO notifications (id, type, user_id, title, message, metadata, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, n := range ns {
		meta, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		if n.Metadata == nil {
			meta = []byte("{}")
		}
		if _, err := t.tx.ExecContext(ctx, query, n.ID, n.Type, n.UserID, n.Title, n.Message, meta, n.Read, n.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}
	return nil
}

const notificationColumns = `id, type, user_id, title, message, metadata, read, created_at, attempts, last_error`

func (t *tx) ClaimNotifications(ctx context.Context, limit, maxAttempts int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE delivered_at IS NULL AND attempts < $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := t.tx.QueryContext(ctx, query, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (t *tx) ClaimNotification(ctx context.Context, id uuid.UUID, maxAttempts int) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND delivered_at IS NULL AND attempts < $2
		FOR UPDATE SKIP LOCKED
	`
	n, err := scanNotification(t.tx.QueryRowContext(ctx, query, id, maxAttempts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func scanNotification(row interface{ Scan(dest ...any) error }) (*domain.Notification, error) {
	n := &domain.Notification{}
	var meta []byte
	if err := row.Scan(&n.ID, &n.Type, &n.UserID, &n.Title, &n.Message, &meta, &n.Read, &n.CreatedAt, &n.Attempts, &n.LastError); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	if err := json.Unmarshal(meta, &n.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode notification metadata: %w", err)
	}
	return n, nil
}

func (t *tx) MarkNotificationDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE notifications SET delivered_at = $1, attempts = attempts + 1, last_error = '' WHERE id = $2`
	if _, err := t.tx.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}
	return nil
}

func (t *tx) MarkNotificationFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE notifications SET attempts = attempts + 1, last_error = $1 WHERE id = $2`
	if _, err := t.tx.ExecContext(ctx, query, reason, id); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}

func (t *tx) InsertPaymentEvent(ctx context.Context, e *domain.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (event_id, kind, group_id, user_id, amount, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`
	ok, err := t.execAffected(ctx, query, e.EventID, e.Kind, e.GroupID, e.UserID, e.Amount, e.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to record payment event: %w", err)
	}
	if !ok {
		return store.ErrDuplicate
	}
	return nil
}
