package verification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status is what a verifier recorded about their partner.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Verification is one entry of a team's log: LoggedBy recorded Verified's status for the cycle starting at CycleStart.
type Verification struct {
	ID         int64
	TeamID     uuid.UUID
	LoggedBy   uuid.UUID
	Verified   uuid.UUID
	Status     Status
	CreatedAt  time.Time
	CycleStart time.Time
	CycleEnd   sql.NullTime // Null while the cycle is open
}

func (v *Verification) IsOpen() bool {
	return !v.CycleEnd.Valid
}
