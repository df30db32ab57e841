package cache

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	keyGoalCompletedClaim = "notify:goal_completed:%s"
	keyTimerWarningClaim  = "notify:timer_warning:%s:%s:%s"
)

// KeyBuilder prefixes keys with the environment so several deployments can share one Redis.
type KeyBuilder struct {
	prefix string
}

func NewKeyBuilder(environment string) *KeyBuilder {
	if environment == "" {
		environment = "development"
	}
	return &KeyBuilder{prefix: "partner_tracker:" + environment}
}

func (kb *KeyBuilder) Build(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GoalCompletedClaim is the claim key for a team's completion notification pair.
func GoalCompletedClaim(teamID uuid.UUID) string {
	return fmt.Sprintf(keyGoalCompletedClaim, teamID)
}

// TimerWarningClaim is the claim key for one trigger point of one member's warning.
func TimerWarningClaim(teamID, recipientID uuid.UUID, trigger string) string {
	return fmt.Sprintf(keyTimerWarningClaim, teamID, recipientID, trigger)
}
