package httpapi

import (
	"net/http"
	"strconv"

	"partner_tracker/internal/domain/notification"

	"github.com/google/uuid"
)

type createNotificationRequest struct {
	RecipientID uuid.UUID         `json:"recipient_id"`
	Type        notification.Type `json:"type"`
	Message     string            `json:"message"`
	RelatedID   *uuid.UUID        `json:"related_id"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unreadOnly, _ := strconv.ParseBool(q.Get("unread"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	list, err := s.engine.Notifications.List(r.Context(), userFrom(r), unreadOnly, limit)
	var warn string
	if err != nil {
		warn = "notifications"
	}
	items := make([]notificationDTO, 0, len(list))
	for _, n := range list {
		items = append(items, toNotificationDTO(n))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"warnings":      warnings(warn),
	})
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Notifications.UnreadCount(r.Context(), userFrom(r))
	var warn string
	if err != nil {
		warn = "unread count"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"unread":   n,
		"warnings": warnings(warn),
	})
}

// handleCreateNotification is used by the request collaborators (invites, matchmaking).
// Only request types are accepted.
func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RecipientID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "recipient_id is required")
		return
	}
	var related uuid.NullUUID
	if req.RelatedID != nil {
		related = uuid.NullUUID{UUID: *req.RelatedID, Valid: true}
	}
	n, err := s.engine.Notifications.CreateRequestNotification(r.Context(), req.RecipientID, req.Type, req.Message, related)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toNotificationDTO(n))
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "notificationID")
	if !ok {
		return
	}
	if err := s.engine.Notifications.MarkRead(r.Context(), id, userFrom(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "notificationID")
	if !ok {
		return
	}
	if err := s.engine.Notifications.Delete(r.Context(), id, userFrom(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
