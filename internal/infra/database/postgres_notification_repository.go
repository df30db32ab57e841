package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"partner_tracker/internal/domain/notification"

	"github.com/google/uuid"
)

const notificationColumns = `id, recipient_id, type, message, related_id, read, metadata, created_at, delivered_at`

const insertNotification = `INSERT INTO notifications (id, recipient_id, type, message, related_id, metadata)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING created_at`

type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func scanNotification(row rowScanner, withAttempts bool) (*notification.Notification, error) {
	n := &notification.Notification{}
	var typ string
	dest := []any{&n.ID, &n.RecipientID, &typ, &n.Message, &n.RelatedID, &n.Read, &n.Metadata, &n.CreatedAt, &n.DeliveredAt}
	if withAttempts {
		dest = append(dest, &n.DeliveryAttempts)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	n.Type = notification.Type(typ)
	return n, nil
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, insertNotification, n.ID, n.RecipientID, string(n.Type), n.Message, n.RelatedID, n.Metadata).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) CreateBatch(ctx context.Context, ns []*notification.Notification) error {
	if len(ns) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for notification batch: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, insertNotification)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for notification batch: %w", err)
	}
	defer stmt.Close()

	for _, n := range ns {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		err := stmt.QueryRowContext(ctx, n.ID, n.RecipientID, string(n.Type), n.Message, n.RelatedID, n.Metadata).Scan(&n.CreatedAt)
		if err != nil {
			return fmt.Errorf("error inserting notification for recipient %s: %w", n.RecipientID, err)
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit notification batch: %w", err)
	}
	return nil
}

// Exists reports whether a notification matching f was created since f.Since.
func (r *PostgresNotificationRepository) Exists(ctx context.Context, f notification.Filter) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE type = $1 AND related_id = $2 AND created_at >= $3`
	args := []any{string(f.Type), f.RelatedID, f.Since}
	if f.RecipientID.Valid {
		args = append(args, f.RecipientID.UUID)
		query += fmt.Sprintf(" AND recipient_id = $%d", len(args))
	}
	if f.Trigger != "" {
		args = append(args, f.Trigger)
		query += fmt.Sprintf(" AND metadata ->> '%s' = $%d", notification.MetaTrigger, len(args))
	}
	query += ")"

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking for existing notification: %w", err)
	}
	return exists, nil
}

func (r *PostgresNotificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1 AND deleted_at IS NULL`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, false, query, recipientID, limit)
}

func (r *PostgresNotificationRepository) ListUndelivered(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	query := `SELECT ` + notificationColumns + `, delivery_attempts FROM notifications
               WHERE delivered_at IS NULL AND delivery_failed_at IS NULL AND deleted_at IS NULL
                 AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
               ORDER BY created_at LIMIT $2`
	return r.list(ctx, true, query, now, limit)
}

func (r *PostgresNotificationRepository) list(ctx context.Context, withAttempts bool, query string, args ...any) ([]*notification.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows, withAttempts)
		if err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return out, nil
}

func (r *PostgresNotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE AND deleted_at IS NULL`, recipientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting unread notifications: %w", err)
	}
	return n, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return r.execOwned(ctx, "marking notification read",
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2 AND deleted_at IS NULL`, id, recipientID)
}

func (r *PostgresNotificationRepository) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	return r.execOwned(ctx, "deleting notification",
		`UPDATE notifications SET deleted_at = NOW() WHERE id = $1 AND recipient_id = $2 AND deleted_at IS NULL`, id, recipientID)
}

// execOwned runs a statement scoped to the recipient and maps "no rows" to ErrNotFound,
// so another user's notification is indistinguishable from a missing one.
func (r *PostgresNotificationRepository) execOwned(ctx context.Context, what, query string, id, recipientID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return fmt.Errorf("error %s: %w", what, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected while %s: %w", what, err)
	}
	if affected == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET delivered_at = $2 WHERE id = $1 AND delivered_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("error marking notification delivered: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) DeferDelivery(ctx context.Context, id uuid.UUID, retryAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications
               SET delivery_attempts = delivery_attempts + 1, next_attempt_at = $2
               WHERE id = $1 AND delivered_at IS NULL`, id, retryAt)
	if err != nil {
		return fmt.Errorf("error deferring notification delivery: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) AbandonDelivery(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications
               SET delivery_attempts = delivery_attempts + 1, delivery_failed_at = $2
               WHERE id = $1 AND delivered_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("error abandoning notification delivery: %w", err)
	}
	return nil
}
