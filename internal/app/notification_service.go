package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"
	"partner_tracker/internal/infra/cache"
	"partner_tracker/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClaimStore is a cross-process SET-NX style lock used to narrow the dedup race.
type ClaimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NotificationService creates notifications and answers recipient queries.
// The Notify* methods that dedup return created=false when a duplicate was suppressed.
type NotificationService interface {
	NotifyGoalCompleted(ctx context.Context, t *team.Team) (created bool, err error)
	NotifyTimerWarning(ctx context.Context, t *team.Team, recipientID uuid.UUID, cd schedule.Countdown) (created bool, err error)
	NotifyStatusUpdate(ctx context.Context, t *team.Team, v *verification.Verification) error
	NotifyPartnershipEnded(ctx context.Context, t *team.Team, by uuid.UUID) error
	CreateRequestNotification(ctx context.Context, recipientID uuid.UUID, typ notification.Type, message string, relatedID uuid.NullUUID) (*notification.Notification, error)

	List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]*notification.Notification, error)
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error
	Delete(ctx context.Context, id, recipientID uuid.UUID) error
}

type NotificationServiceImpl struct {
	notifications notification.Repository
	teams         team.Repository
	claims        ClaimStore // nil disables claims
	window        time.Duration
	now           Clock
	log           *logrus.Entry
}

func NewNotificationService(notifications notification.Repository, teams team.Repository, claims ClaimStore, window time.Duration, now Clock, log *logrus.Entry) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		notifications: notifications,
		teams:         teams,
		claims:        claims,
		window:        window,
		now:           now,
		log:           log.WithField("service", "notification"),
	}
}

// emitDeduped inserts batch unless a notification matching f already exists inside the
// window or another process holds claimKey. The existence check and the insert are not
// atomic; the claim only narrows that race and is skipped when the claim store is down.
func (s *NotificationServiceImpl) emitDeduped(ctx context.Context, f notification.Filter, claimKey string, batch []*notification.Notification) (bool, error) {
	logCtx := s.log.WithFields(logrus.Fields{"type": f.Type, "team_id": f.RelatedID})

	exists, err := s.notifications.Exists(ctx, f)
	if err != nil {
		logCtx.WithError(err).Warn("Dedup check failed, not emitting")
		return false, err
	}
	if exists {
		metrics.NotificationsSuppressed.WithLabelValues(string(f.Type), "window").Inc()
		logCtx.Debug("Suppressed duplicate notification inside dedup window")
		return false, nil
	}

	claimed := false
	if s.claims != nil {
		ok, err := s.claims.Claim(ctx, claimKey, s.window)
		switch {
		case err != nil:
			logCtx.WithError(err).Warn("Dedup claim unavailable, relying on the window check alone")
		case !ok:
			metrics.NotificationsSuppressed.WithLabelValues(string(f.Type), "claim").Inc()
			logCtx.Debug("Suppressed notification claimed by another writer")
			return false, nil
		default:
			claimed = true
		}
	}

	if err := s.notifications.CreateBatch(ctx, batch); err != nil {
		if claimed {
			if rerr := s.claims.Release(ctx, claimKey); rerr != nil {
				logCtx.WithError(rerr).Warn("Failed to release dedup claim")
			}
		}
		logCtx.WithError(err).Error("Failed to create notifications")
		return false, err
	}

	metrics.NotificationsCreated.WithLabelValues(string(f.Type)).Add(float64(len(batch)))
	logCtx.WithField("count", len(batch)).Info("Notifications created")
	return true, nil
}

// NotifyGoalCompleted sends the completion pair, at most once per team per window.
func (s *NotificationServiceImpl) NotifyGoalCompleted(ctx context.Context, t *team.Team) (bool, error) {
	related := uuid.NullUUID{UUID: t.ID, Valid: true}
	batch := make([]*notification.Notification, 0, 2)
	for _, member := range t.Members() {
		partnerID, _ := t.PartnerOf(member)
		batch = append(batch, &notification.Notification{
			RecipientID: member,
			Type:        notification.TypeGoalCompleted,
			Message:     fmt.Sprintf("You and %s both completed this cycle. Nice work!", s.memberName(ctx, partnerID)),
			RelatedID:   related,
			Metadata:    notification.Metadata{},
		})
	}
	f := notification.Filter{
		Type:      notification.TypeGoalCompleted,
		RelatedID: t.ID,
		Since:     s.now().Add(-s.window),
	}
	return s.emitDeduped(ctx, f, cache.GoalCompletedClaim(t.ID), batch)
}

// NotifyTimerWarning warns recipientID once per trigger point per window.
func (s *NotificationServiceImpl) NotifyTimerWarning(ctx context.Context, t *team.Team, recipientID uuid.UUID, cd schedule.Countdown) (bool, error) {
	trigger := schedule.Trigger(t.Frequency.Kind, cd.Urgency)
	if trigger == "" {
		return false, nil
	}
	partnerID, ok := t.PartnerOf(recipientID)
	if !ok {
		return false, ErrNotMember
	}

	n := &notification.Notification{
		RecipientID: recipientID,
		Type:        notification.TypeTimerWarning,
		Message:     fmt.Sprintf("Time left to verify %s: %s", s.memberName(ctx, partnerID), cd.Label),
		RelatedID:   uuid.NullUUID{UUID: t.ID, Valid: true},
		Metadata: notification.Metadata{
			notification.MetaTrigger: trigger,
			notification.MetaLabel:   cd.Label,
		},
	}
	f := notification.Filter{
		Type:        notification.TypeTimerWarning,
		RelatedID:   t.ID,
		Since:       s.now().Add(-s.window),
		RecipientID: uuid.NullUUID{UUID: recipientID, Valid: true},
		Trigger:     trigger,
	}
	return s.emitDeduped(ctx, f, cache.TimerWarningClaim(t.ID, recipientID, trigger), []*notification.Notification{n})
}

// NotifyStatusUpdate tells the subject what their partner logged about them.
func (s *NotificationServiceImpl) NotifyStatusUpdate(ctx context.Context, t *team.Team, v *verification.Verification) error {
	word := "completed"
	if v.Status == verification.StatusPending {
		word = "not done yet"
	}
	return s.create(ctx, &notification.Notification{
		RecipientID: v.Verified,
		Type:        notification.TypeActivityStatusUpdate,
		Message:     fmt.Sprintf("%s marked your %s as %s.", s.memberName(ctx, v.LoggedBy), activityName(t), word),
		RelatedID:   uuid.NullUUID{UUID: t.ID, Valid: true},
		Metadata:    notification.Metadata{"status": string(v.Status)},
	})
}

func (s *NotificationServiceImpl) NotifyPartnershipEnded(ctx context.Context, t *team.Team, by uuid.UUID) error {
	partnerID, ok := t.PartnerOf(by)
	if !ok {
		return ErrNotMember
	}
	return s.create(ctx, &notification.Notification{
		RecipientID: partnerID,
		Type:        notification.TypePartnershipEnded,
		Message:     fmt.Sprintf("%s ended your %s partnership.", s.memberName(ctx, by), activityName(t)),
		RelatedID:   uuid.NullUUID{UUID: t.ID, Valid: true},
		Metadata:    notification.Metadata{},
	})
}

// CreateRequestNotification is the entry point for the invite and matchmaking flows.
func (s *NotificationServiceImpl) CreateRequestNotification(ctx context.Context, recipientID uuid.UUID, typ notification.Type, message string, relatedID uuid.NullUUID) (*notification.Notification, error) {
	if !typ.IsRequest() {
		return nil, ErrInvalidNotificationType
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	n := &notification.Notification{
		RecipientID: recipientID,
		Type:        typ,
		Message:     message,
		RelatedID:   relatedID,
		Metadata:    notification.Metadata{},
	}
	if err := s.create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NotificationServiceImpl) create(ctx context.Context, n *notification.Notification) error {
	if err := s.notifications.Create(ctx, n); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"type":      n.Type,
			"recipient": n.RecipientID,
		}).Error("Failed to create notification")
		return err
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	return nil
}

func (s *NotificationServiceImpl) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit int) ([]*notification.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := s.notifications.ListByRecipient(ctx, recipientID, unreadOnly, limit)
	if err != nil {
		s.log.WithError(err).WithField("user_id", recipientID).Warn("Failed to list notifications")
		return []*notification.Notification{}, err
	}
	return list, nil
}

func (s *NotificationServiceImpl) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	n, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", recipientID).Warn("Failed to count unread notifications")
		return 0, err
	}
	return n, nil
}

func (s *NotificationServiceImpl) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.notifications.MarkRead(ctx, id, recipientID)
}

func (s *NotificationServiceImpl) Delete(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.notifications.Delete(ctx, id, recipientID)
}

func (s *NotificationServiceImpl) memberName(ctx context.Context, userID uuid.UUID) string {
	m, err := s.teams.GetMember(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Debug("Member profile unavailable for message")
	}
	return m.NameOr(FallbackPartnerName)
}

func activityName(t *team.Team) string {
	if t.Category == "" {
		return string(t.Frequency.Kind)
	}
	return t.Category
}
