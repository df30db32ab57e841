package verification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("verification not found")

// Repository is the append-mostly verification log.
type Repository interface {
	// Upsert inserts v or replaces the open row with the same (team, verified, cycle_start).
	// applied is false when that row exists but its cycle has already been closed.
	Upsert(ctx context.Context, v *Verification) (applied bool, err error)
	HasLive(ctx context.Context, teamID, verifierID, subjectID uuid.UUID) (bool, error)
	// LatestOpen returns the most recent open row about subjectID.
	LatestOpen(ctx context.Context, teamID, subjectID uuid.UUID) (*Verification, error)
	ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]*Verification, error)
}
