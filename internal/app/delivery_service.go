package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/team"
	domainTelegram "partner_tracker/internal/domain/telegram"
	"partner_tracker/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	deliveryBatchSize = 100

	// A push that fails this many times leaves the queue.
	maxDeliveryAttempts = 5
	deliveryRetryBase   = time.Minute
	deliveryRetryCap    = time.Hour
)

// DeliveryService pushes undelivered notifications to Telegram. Push is a convenience;
// recipients always see their notifications through the API.
type DeliveryService interface {
	// DeliverPending returns how many notifications were sent.
	DeliverPending(ctx context.Context) (int, error)
}

type DeliveryServiceImpl struct {
	notifications  notification.Repository
	teams          team.Repository
	telegramClient domainTelegram.Client
	now            Clock
	log            *logrus.Entry

	running sync.Mutex
}

func NewDeliveryService(notifications notification.Repository, teams team.Repository, tc domainTelegram.Client, now Clock, log *logrus.Entry) *DeliveryServiceImpl {
	return &DeliveryServiceImpl{
		notifications:  notifications,
		teams:          teams,
		telegramClient: tc,
		now:            now,
		log:            log.WithField("service", "delivery"),
	}
}

func (s *DeliveryServiceImpl) DeliverPending(ctx context.Context) (int, error) {
	// Cron and change-feed hints can overlap; one pass at a time is enough.
	if !s.running.TryLock() {
		s.log.Debug("Delivery pass already running, skipping")
		return 0, nil
	}
	defer s.running.Unlock()

	pending, err := s.notifications.ListUndelivered(ctx, s.now(), deliveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list undelivered notifications: %w", err)
	}

	sent := 0
	// Once a recipient fails, the rest of their rows in this pass share the outcome.
	failed := make(map[uuid.UUID]error)
	for _, n := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		logCtx := s.log.WithFields(logrus.Fields{
			"notification_id": n.ID,
			"type":            n.Type,
			"user_id":         n.RecipientID,
		})

		if err, ok := failed[n.RecipientID]; ok {
			s.handleFailure(ctx, logCtx, n, err)
			continue
		}

		member, err := s.teams.GetMember(ctx, n.RecipientID)
		if err != nil && !errors.Is(err, team.ErrMemberNotFound) {
			logCtx.WithError(err).Warn("Failed to read recipient profile")
			failed[n.RecipientID] = err
			s.handleFailure(ctx, logCtx, n, err)
			continue
		}
		if member == nil || !member.TelegramID.Valid || s.telegramClient == nil {
			s.markDelivered(ctx, logCtx, n)
			metrics.NotificationsDelivered.WithLabelValues("skipped").Inc()
			continue
		}

		if err := s.telegramClient.SendMessage(member.TelegramID.Int64, n.Message, s.sendOptions(n)); err != nil {
			logCtx.WithError(err).WithField("telegram_id", member.TelegramID.Int64).Error("Failed to push notification")
			failed[n.RecipientID] = err
			s.handleFailure(ctx, logCtx, n, err)
			continue
		}
		s.markDelivered(ctx, logCtx, n)
		metrics.NotificationsDelivered.WithLabelValues("sent").Inc()
		sent++
	}

	if len(pending) > 0 {
		s.log.WithFields(logrus.Fields{"pending": len(pending), "sent": sent, "failed_recipients": len(failed)}).Info("Delivery pass finished")
	}
	return sent, nil
}

func (s *DeliveryServiceImpl) markDelivered(ctx context.Context, logCtx *logrus.Entry, n *notification.Notification) {
	if err := s.notifications.MarkDelivered(ctx, n.ID, s.now()); err != nil {
		logCtx.WithError(err).Warn("Failed to mark notification delivered, it may be pushed again")
	}
}

// handleFailure backs the row off, or drops it from the queue when the recipient
// cannot be reached or the attempts are used up.
func (s *DeliveryServiceImpl) handleFailure(ctx context.Context, logCtx *logrus.Entry, n *notification.Notification, cause error) {
	attempts := n.DeliveryAttempts + 1
	logCtx = logCtx.WithField("attempts", attempts)

	if errors.Is(cause, domainTelegram.ErrRecipientUnreachable) || attempts >= maxDeliveryAttempts {
		if err := s.notifications.AbandonDelivery(ctx, n.ID, s.now()); err != nil {
			logCtx.WithError(err).Warn("Failed to abandon notification delivery")
			return
		}
		logCtx.WithError(cause).Warn("Giving up on pushing notification")
		metrics.NotificationsDelivered.WithLabelValues("abandoned").Inc()
		return
	}

	retryAt := s.now().Add(retryDelay(attempts))
	if err := s.notifications.DeferDelivery(ctx, n.ID, retryAt); err != nil {
		logCtx.WithError(err).Warn("Failed to defer notification delivery")
		return
	}
	logCtx.WithField("retry_at", retryAt).Debug("Notification push deferred")
	metrics.NotificationsDelivered.WithLabelValues("failed").Inc()
}

// retryDelay doubles from deliveryRetryBase per failed attempt, capped at deliveryRetryCap.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := deliveryRetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= deliveryRetryCap {
			return deliveryRetryCap
		}
	}
	return d
}

// sendOptions attaches the verification keyboard to timer warnings.
func (s *DeliveryServiceImpl) sendOptions(n *notification.Notification) *telebot.SendOptions {
	if n.Type != notification.TypeTimerWarning || !n.RelatedID.Valid {
		return nil
	}
	teamID := n.RelatedID.UUID.String()
	markup := &telebot.ReplyMarkup{}
	btnDone := markup.Data("Partner done ✅", domainTelegram.CallbackVerifyDone, teamID)
	btnPending := markup.Data("Not yet ⏳", domainTelegram.CallbackVerifyPending, teamID)
	markup.Inline(markup.Row(btnDone, btnPending))
	return &telebot.SendOptions{ReplyMarkup: markup}
}
