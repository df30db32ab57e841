package httpapi

import "net/http"

type setGoalRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	viewer := userFrom(r)
	if _, err := s.engine.Teams.GetTeamForMember(r.Context(), teamID, viewer); err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	gv, err := s.engine.Goals.FetchCurrentGoal(r.Context(), teamID, viewer)
	var warn string
	if err != nil {
		warn = "goal"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"goal":           toGoalDTO(gv.Goal),
		"needs_new_goal": gv.NeedsNewGoal,
		"warnings":       warnings(warn),
	})
}

func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	teamID, ok := uuidParam(w, r, "teamID")
	if !ok {
		return
	}
	var req setGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := s.engine.Goals.SetGoal(r.Context(), teamID, userFrom(r), req.Text)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toGoalDTO(g))
}
