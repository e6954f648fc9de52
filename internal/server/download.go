package server

import (
	"net/http"
	"strconv"
	"time"

	"permitflow/pkg/types"
)

type requestAccessRequest struct {
	ApplicationNumber string `json:"applicationNumber" form:"applicationNumber"`
	Email             string `json:"email" form:"email"`
}

func (s *Service) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	var req requestAccessRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.deps.Broker.RequestAccess(r.Context(), req.ApplicationNumber, req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ok("an OTP has been sent to the registered email"))
}

type verifyDownloadRequest struct {
	ApplicationNumber string `json:"applicationNumber" form:"applicationNumber"`
	Otp               string `json:"otp" form:"otp"`
}

type verifyDownloadResponse struct {
	result
	DownloadToken string     `json:"downloadToken,omitempty"`
	ApplicantName string     `json:"applicantName,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func (s *Service) handleVerifyDownloadOtp(w http.ResponseWriter, r *http.Request) {
	var req verifyDownloadRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	grant, err := s.deps.Broker.VerifyAccess(r.Context(), req.ApplicationNumber, req.Otp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, verifyDownloadResponse{
		result:        ok("verified"),
		DownloadToken: grant.Token,
		ApplicantName: grant.ApplicantName,
		ExpiresAt:     &grant.ExpiresAt,
	})
}

func (s *Service) handleFetchDocument(w http.ResponseWriter, r *http.Request) {
	kind := types.DocumentKind(r.PathValue("kind"))
	token := r.PathValue("token")

	doc, err := s.deps.Broker.FetchDocument(r.Context(), token, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Body); err != nil {
		s.logger.WithError(err).Warn("failed to write document")
	}
}
