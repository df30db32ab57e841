package team

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("team not found")
	ErrAlreadyEnded   = errors.New("team already ended")
	ErrMemberNotFound = errors.New("member not found")
)

// Repository persists teams and reads member profiles.
type Repository interface {
	Create(ctx context.Context, t *Team) error
	GetByID(ctx context.Context, id uuid.UUID) (*Team, error)
	ListActive(ctx context.Context) ([]*Team, error)
	ListByMember(ctx context.Context, userID uuid.UUID) ([]*Team, error)
	// End marks the team ended. It fails with ErrAlreadyEnded if it was ended before.
	End(ctx context.Context, id, by uuid.UUID, at time.Time) error

	GetMember(ctx context.Context, userID uuid.UUID) (*Member, error)
	GetMemberByTelegramID(ctx context.Context, telegramID int64) (*Member, error)
}
