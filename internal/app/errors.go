package app

import "errors"

// Validation errors returned by the engine services. Store failures are wrapped, never mapped to these.
var (
	ErrNotMember               = errors.New("user is not a member of this team")
	ErrSelfVerification        = errors.New("a member cannot verify themselves")
	ErrInvalidStatus           = errors.New("invalid verification status")
	ErrTeamEnded               = errors.New("team has ended")
	ErrEmptyGoal               = errors.New("goal text is empty")
	ErrInvalidMembers          = errors.New("a team needs two distinct members")
	ErrInvalidFrequency        = errors.New("invalid team frequency")
	ErrInvalidNotificationType = errors.New("invalid notification type")
	ErrEmptyMessage            = errors.New("notification message is empty")
)
