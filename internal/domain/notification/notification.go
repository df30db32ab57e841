package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Type tags what a notification is about.
type Type string

const (
	TypeTimerWarning         Type = "timer_warning"
	TypeGoalCompleted        Type = "goal_completed"
	TypeActivityStatusUpdate Type = "activity_status_update"
	TypePartnershipEnded     Type = "partnership_ended"

	// Request types are created by the invite and matchmaking flows.
	TypePartnerRequest  Type = "partner_request"
	TypeRequestAccepted Type = "request_accepted"
	TypeRequestDeclined Type = "request_declined"
)

func (t Type) Valid() bool {
	switch t {
	case TypeTimerWarning, TypeGoalCompleted, TypeActivityStatusUpdate, TypePartnershipEnded:
		return true
	}
	return t.IsRequest()
}

func (t Type) IsRequest() bool {
	return t == TypePartnerRequest || t == TypeRequestAccepted || t == TypeRequestDeclined
}

// Metadata keys of a timer warning.
const (
	MetaTrigger = "trigger"
	MetaLabel   = "label"
)

// Notification belongs to a single recipient. After insert only the read flag and
// the push bookkeeping change.
type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	Type        Type
	Message     string
	RelatedID   uuid.NullUUID
	Read        bool
	Metadata    Metadata
	CreatedAt   time.Time
	DeliveredAt sql.NullTime
	// DeliveryAttempts counts failed pushes. It is only loaded for the delivery queue.
	DeliveryAttempts int
}
