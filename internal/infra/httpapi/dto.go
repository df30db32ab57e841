package httpapi

import (
	"time"

	"partner_tracker/internal/app"
	"partner_tracker/internal/domain/goal"
	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
)

type frequencyDTO struct {
	Kind schedule.Kind `json:"kind"`
	Day  string        `json:"day,omitempty"`
}

type teamDTO struct {
	ID        uuid.UUID    `json:"id"`
	MemberA   uuid.UUID    `json:"member_a"`
	MemberB   uuid.UUID    `json:"member_b"`
	Category  string       `json:"category"`
	Frequency frequencyDTO `json:"frequency"`
	CreatedAt time.Time    `json:"created_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	EndedBy   *uuid.UUID   `json:"ended_by,omitempty"`
}

func toTeamDTO(t *team.Team) teamDTO {
	dto := teamDTO{
		ID:        t.ID,
		MemberA:   t.MemberA,
		MemberB:   t.MemberB,
		Category:  t.Category,
		Frequency: frequencyDTO{Kind: t.Frequency.Kind, Day: t.Frequency.Day},
		CreatedAt: t.CreatedAt,
	}
	if t.EndedAt.Valid {
		at := t.EndedAt.Time
		dto.EndedAt = &at
	}
	if t.EndedBy.Valid {
		by := t.EndedBy.UUID
		dto.EndedBy = &by
	}
	return dto
}

type countdownDTO struct {
	Label            string           `json:"label"`
	Urgency          schedule.Urgency `json:"urgency"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	ResetAt          *time.Time       `json:"reset_at,omitempty"`
}

func toCountdownDTO(cd schedule.Countdown) countdownDTO {
	dto := countdownDTO{
		Label:            cd.Label,
		Urgency:          cd.Urgency,
		RemainingSeconds: int64(cd.Remaining / time.Second),
	}
	if !cd.ResetAt.IsZero() {
		at := cd.ResetAt
		dto.ResetAt = &at
	}
	return dto
}

type goalDTO struct {
	ID         int64      `json:"id"`
	Body       string     `json:"body"`
	CycleStart time.Time  `json:"cycle_start"`
	CycleEnd   *time.Time `json:"cycle_end,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toGoalDTO(g *goal.Goal) *goalDTO {
	if g == nil {
		return nil
	}
	dto := &goalDTO{ID: g.ID, Body: g.Body, CycleStart: g.CycleStart, UpdatedAt: g.UpdatedAt}
	if g.CycleEnd.Valid {
		end := g.CycleEnd.Time
		dto.CycleEnd = &end
	}
	return dto
}

type statusDTO struct {
	Team               teamDTO             `json:"team"`
	Countdown          countdownDTO        `json:"countdown"`
	IsLoggingDay       bool                `json:"is_logging_day"`
	RefreshSeconds     int                 `json:"refresh_seconds"`
	MyName             string              `json:"my_name"`
	PartnerName        string              `json:"partner_name"`
	PartnerID          uuid.UUID           `json:"partner_id"`
	MyStatus           verification.Status `json:"my_status"`
	PartnerStatus      verification.Status `json:"partner_status"`
	HasVerifiedPartner bool                `json:"has_verified_partner"`
	MutualCompletion   bool                `json:"mutual_completion"`
	Goal               *goalDTO            `json:"goal"`
	NeedsNewGoal       bool                `json:"needs_new_goal"`
	Warnings           []string            `json:"warnings"`
}

func toStatusDTO(st *app.TeamStatus) statusDTO {
	return statusDTO{
		Team:               toTeamDTO(st.Team),
		Countdown:          toCountdownDTO(st.Countdown),
		IsLoggingDay:       st.IsLoggingDay,
		RefreshSeconds:     int(st.RefreshInterval / time.Second),
		MyName:             st.MyName,
		PartnerName:        st.PartnerName,
		PartnerID:          st.PartnerID,
		MyStatus:           st.MyStatus,
		PartnerStatus:      st.PartnerStatus,
		HasVerifiedPartner: st.HasVerifiedPartner,
		MutualCompletion:   st.MutualCompletion,
		Goal:               toGoalDTO(st.Goal),
		NeedsNewGoal:       st.NeedsNewGoal,
		Warnings:           warnings(st.Warnings...),
	}
}

type verificationDTO struct {
	ID         int64               `json:"id"`
	LoggedBy   uuid.UUID           `json:"logged_by"`
	Verified   uuid.UUID           `json:"verified"`
	Status     verification.Status `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	CycleStart time.Time           `json:"cycle_start"`
	CycleEnd   *time.Time          `json:"cycle_end,omitempty"`
}

func toVerificationDTO(v *verification.Verification) verificationDTO {
	dto := verificationDTO{
		ID:         v.ID,
		LoggedBy:   v.LoggedBy,
		Verified:   v.Verified,
		Status:     v.Status,
		CreatedAt:  v.CreatedAt,
		CycleStart: v.CycleStart,
	}
	if v.CycleEnd.Valid {
		end := v.CycleEnd.Time
		dto.CycleEnd = &end
	}
	return dto
}

type notificationDTO struct {
	ID        uuid.UUID             `json:"id"`
	Type      notification.Type     `json:"type"`
	Message   string                `json:"message"`
	RelatedID *uuid.UUID            `json:"related_id,omitempty"`
	Read      bool                  `json:"read"`
	Metadata  notification.Metadata `json:"metadata"`
	CreatedAt time.Time             `json:"created_at"`
}

func toNotificationDTO(n *notification.Notification) notificationDTO {
	dto := notificationDTO{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		Read:      n.Read,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	}
	if n.RelatedID.Valid {
		id := n.RelatedID.UUID
		dto.RelatedID = &id
	}
	if dto.Metadata == nil {
		dto.Metadata = notification.Metadata{}
	}
	return dto
}
