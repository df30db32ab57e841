package goal

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("goal not found")
	ErrDuplicateLive = errors.New("user already has a live goal for this team")
)

// Goal is a user's free-text intention for one cycle of a team.
type Goal struct {
	ID         int64
	TeamID     uuid.UUID
	UserID     uuid.UUID
	Body       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	CycleStart time.Time
	CycleEnd   sql.NullTime
}

type Repository interface {
	GetLive(ctx context.Context, teamID, userID uuid.UUID) (*Goal, error)
	// Create fails with ErrDuplicateLive if the user already has a live goal.
	Create(ctx context.Context, g *Goal) error
	UpdateBody(ctx context.Context, id int64, body string) (time.Time, error)
	HasClosed(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
}
