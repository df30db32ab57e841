package httpapi

import (
	"net/http"
	"strconv"

	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
)

type logVerificationRequest struct {
	SubjectID uuid.UUID           `json:"subject_id"`
	Status    verification.Status `json:"status"`
}

func (s *Server) handleLogVerification(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	var req logVerificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	v, err := s.engine.Verifications.LogVerification(r.Context(), teamID, userFrom(r), req.SubjectID, req.Status)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toVerificationDTO(v))
}

func (s *Server) handleVerificationHistory(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	viewer := userFrom(r)
	if _, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, viewer); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.engine.Verifications.History(r.Context(), teamID, viewer, limit)
	var warn string
	if err != nil {
		warn = "history"
	}
	items := make([]verificationDTO, 0, len(history))
	for _, v := range history {
		items = append(items, toVerificationDTO(v))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"verifications": items,
		"warnings":      warnings(warn),
	})
}

func (s *Server) handleLiveVerification(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	viewer := userFrom(r)
	t, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, viewer)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	subject, _ := t.PartnerOf(viewer)
	if raw := r.URL.Query().Get("subject"); raw != "" {
		if subject, err = uuid.Parse(raw); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_id", "subject must be a UUID")
			return
		}
	}

	live, err := s.engine.Verifications.HasLiveVerification(r.Context(), teamID, viewer, subject)
	var warn string
	if err != nil {
		warn = "live verification"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"has_live_verification": live,
		"warnings":              warnings(warn),
	})
}
