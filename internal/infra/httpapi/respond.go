package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"partner_tracker/internal/app"
	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/team"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{app.ErrNotMember, http.StatusForbidden, "not_member"},
	{team.ErrNotFound, http.StatusNotFound, "team_not_found"},
	{notification.ErrNotFound, http.StatusNotFound, "notification_not_found"},
	{app.ErrTeamEnded, http.StatusConflict, "team_ended"},
	{app.ErrSelfVerification, http.StatusBadRequest, "self_verification"},
	{app.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{app.ErrEmptyGoal, http.StatusBadRequest, "empty_goal"},
	{app.ErrInvalidMembers, http.StatusBadRequest, "invalid_members"},
	{app.ErrInvalidFrequency, http.StatusBadRequest, "invalid_frequency"},
	{app.ErrInvalidNotificationType, http.StatusBadRequest, "invalid_notification_type"},
	{app.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
}

// respondServiceError maps engine errors to the envelope. Anything unknown is a 500
// whose detail stays in the log.
func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			respondError(w, e.status, e.code, e.err.Error())
			return
		}
	}
	s.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error("Unhandled service error")
	respondError(w, http.StatusInternalServerError, "internal", "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", name+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// warnings is always encoded as an array so clients can check its length.
func warnings(ws ...string) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
