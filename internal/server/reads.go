package server

import (
	"net/http"

	"permitflow/pkg/types"
)

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, ok("ok"))
}

func (s *Service) handleStages(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.StageTable())
}

func (s *Service) handleApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Gate.Application(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.NewApplicationView(app.Redacted()))
}

func (s *Service) handlePending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	role := types.ParseRole(query.Get("role"))
	if err := officerRole(r.Context(), role); err != nil {
		s.writeError(w, r, err)
		return
	}

	apps, err := s.deps.Gate.Pending(r.Context(), role, query.Get("positionType"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	views := make([]types.ApplicationView, 0, len(apps))
	for _, app := range apps {
		views = append(views, types.NewApplicationView(app))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	role := types.ParseRole(r.PathValue("role"))
	if err := officerRole(r.Context(), role); err != nil {
		s.writeError(w, r, err)
		return
	}

	stats, err := s.deps.Gate.Stats(r.Context(), role)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Gate.Application(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	verification, err := s.deps.Pipeline.Verify(r.Context(), app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, verification)
}

func (s *Service) handleJWKS(w http.ResponseWriter, r *http.Request) {
	set, err := s.deps.Signer.PublicKeys()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, set)
}
