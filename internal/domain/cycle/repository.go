package cycle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository exposes the store-side cycle closure.
type Repository interface {
	// OldestOpenStart returns the earliest cycle_start among the team's open
	// verification and goal rows. ok is false when nothing is open.
	OldestOpenStart(ctx context.Context, teamID uuid.UUID) (start time.Time, ok bool, err error)
	// Close sets cycle_end = boundary on every open row that started before
	// boundary. The store refuses to close a boundary that is still in the future.
	Close(ctx context.Context, teamID uuid.UUID, boundary time.Time) (Closure, error)
	ListTeamsWithOpenCycles(ctx context.Context) ([]uuid.UUID, error)
}
