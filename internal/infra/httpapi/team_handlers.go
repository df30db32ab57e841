package httpapi

import (
	"net/http"

	"partner_tracker/internal/domain/schedule"

	"github.com/google/uuid"
)

type createTeamRequest struct {
	PartnerID uuid.UUID    `json:"partner_id"`
	Category  string       `json:"category"`
	Frequency frequencyDTO `json:"frequency"`
}

// handleCreateTeam pairs the caller with partner_id. Invitation and acceptance
// happen upstream; this call records the result.
func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	freq := schedule.Frequency{Kind: req.Frequency.Kind, Day: req.Frequency.Day}
	t, err := s.engine.Teams.CreateTeam(r.Context(), userFrom(r), req.PartnerID, req.Category, freq)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTeamDTO(t))
}

func (s *Server) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	t, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, userFrom(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTeamDTO(t))
}

func (s *Server) handleEndTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	t, err := s.engine.Teams.EndTeam(r.Context(), teamID, userFrom(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTeamDTO(t))
}

func (s *Server) handleTeamStatus(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	st, err := s.engine.Status.TeamStatus(r.Context(), teamID, userFrom(r))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStatusDTO(st))
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	if _, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, userFrom(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	mutual, err := s.engine.Completion.CheckMutualCompletion(r.Context(), teamID)
	var warn string
	if err != nil {
		warn = "mutual completion"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mutual_completion": mutual,
		"warnings":          warnings(warn),
	})
}

func (s *Server) handleCloseCycle(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	if _, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, userFrom(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	c, err := s.engine.Cycles.CloseExpiredCycle(r.Context(), teamID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{
		"verifications_closed": c.Verifications,
		"goals_closed":         c.Goals,
	})
}

func (s *Server) handleCloseAllExpired(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Cycles.CloseAllExpiredCycles(r.Context())
	if err != nil {
		// Per-team failures do not stop the sweep; report what was closed alongside them.
		s.logger.WithError(err).Warn("Sweep finished with failures")
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"rows_closed": n,
			"warnings":    warnings("some teams failed to close"),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rows_closed": n,
		"warnings":    warnings(),
	})
}

func (s *Server) handleEvaluateTimers(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	if _, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, userFrom(r)); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	n, err := s.engine.Timers.EvaluateTeam(r.Context(), teamID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"warnings_created": n})
}
