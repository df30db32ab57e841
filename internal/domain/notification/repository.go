package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

// Filter selects notifications for the dedup existence check.
// Zero-valued optional fields are not filtered on.
type Filter struct {
	Type        Type
	RelatedID   uuid.UUID
	Since       time.Time
	RecipientID uuid.NullUUID
	Trigger     string
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// CreateBatch inserts all notifications in one transaction.
	CreateBatch(ctx context.Context, ns []*Notification) error
	// Exists also sees rows the recipient deleted, so a delete never re-arms a trigger.
	Exists(ctx context.Context, f Filter) (bool, error)

	ListByRecipient(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	// Delete hides the notification from its recipient.
	Delete(ctx context.Context, id, recipientID uuid.UUID) error

	// ListUndelivered returns queued pushes that are due at now, oldest first.
	ListUndelivered(ctx context.Context, now time.Time, limit int) ([]*Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeferDelivery counts a failed push and holds the row back until retryAt.
	DeferDelivery(ctx context.Context, id uuid.UUID, retryAt time.Time) error
	// AbandonDelivery takes the row out of the push queue for good.
	AbandonDelivery(ctx context.Context, id uuid.UUID, at time.Time) error
}
