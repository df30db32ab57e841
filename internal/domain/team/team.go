package team

import (
	"database/sql"
	"time"

	"partner_tracker/internal/domain/schedule"

	"github.com/google/uuid"
)

// Team is an accountability partnership between exactly two users.
type Team struct {
	ID        uuid.UUID
	MemberA   uuid.UUID
	MemberB   uuid.UUID
	Category  string
	Frequency schedule.Frequency
	CreatedAt time.Time
	EndedAt   sql.NullTime  // Set once when either partner ends the partnership
	EndedBy   uuid.NullUUID
}

func (t *Team) Members() [2]uuid.UUID {
	return [2]uuid.UUID{t.MemberA, t.MemberB}
}

func (t *Team) HasMember(userID uuid.UUID) bool {
	return userID == t.MemberA || userID == t.MemberB
}

// PartnerOf returns the other member of the team.
func (t *Team) PartnerOf(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case t.MemberA:
		return t.MemberB, true
	case t.MemberB:
		return t.MemberA, true
	default:
		return uuid.Nil, false
	}
}

func (t *Team) IsEnded() bool {
	return t.EndedAt.Valid
}

// Member is the profile data the engine needs about a user.
type Member struct {
	UserID      uuid.UUID
	DisplayName string
	TelegramID  sql.NullInt64
}

// NameOr returns the display name, or fallback when the profile has none.
func (m *Member) NameOr(fallback string) string {
	if m == nil || m.DisplayName == "" {
		return fallback
	}
	return m.DisplayName
}
