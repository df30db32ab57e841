package cycle

import (
	"time"

	"github.com/google/uuid"
)

// Closure is the outcome of closing a team's open cycle at Boundary.
type Closure struct {
	TeamID        uuid.UUID
	Boundary      time.Time
	Verifications int64
	Goals         int64
}

// Total is the number of rows the closure ended.
func (c Closure) Total() int64 {
	return c.Verifications + c.Goals
}
