package server

import (
	"net/http"
	"strings"
	"time"

	"permitflow/internal/workflow"
	"permitflow/pkg/types"
)

type generateOtpRequest struct {
	ApplicationID string `json:"applicationId" form:"applicationId"`
	ActorRole     string `json:"actorRole" form:"actorRole"`
}

type generateOtpResponse struct {
	result
	OtpReference string     `json:"otpReference,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

func (s *Service) handleGenerateOtp(w http.ResponseWriter, r *http.Request) {
	var req generateOtpRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	role := types.ParseRole(req.ActorRole)
	if err := officerRole(r.Context(), role); err != nil {
		s.writeError(w, r, err)
		return
	}

	issue, err := s.deps.Gate.GenerateSigningOtp(r.Context(), strings.TrimSpace(req.ApplicationID), role, "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, generateOtpResponse{
		result:       ok("OTP sent"),
		OtpReference: issue.Reference,
		ExpiresAt:    &issue.ExpiresAt,
	})
}

type signRequest struct {
	ApplicationID string `json:"applicationId" form:"applicationId"`
	ActorRole     string `json:"actorRole" form:"actorRole"`
	ActorName     string `json:"actorName" form:"actorName"`
	Otp           string `json:"otp" form:"otp"`
	Comments      string `json:"comments" form:"comments"`
}

type stageResponse struct {
	result
	Stage      *types.Stage `json:"stage,omitempty"`
	StageLabel string       `json:"stageLabel,omitempty"`
}

func stageResult(message string, app *types.Application) stageResponse {
	return stageResponse{result: ok(message), Stage: &app.Stage, StageLabel: app.Stage.Label()}
}

func (s *Service) handleVerifyAndSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	role := types.ParseRole(req.ActorRole)
	if err := officerRole(r.Context(), role); err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := s.deps.Gate.VerifyAndSign(r.Context(), workflow.SignRequest{
		ApplicationID: strings.TrimSpace(req.ApplicationID),
		Role:          role,
		ActorName:     officerName(r.Context(), req.ActorName),
		Otp:           req.Otp,
		Comments:      req.Comments,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stageResult("signed", app))
}

type rejectRequest struct {
	ApplicationID     string `json:"applicationId" form:"applicationId"`
	ActorRole         string `json:"actorRole" form:"actorRole"`
	ActorName         string `json:"actorName" form:"actorName"`
	RejectionComments string `json:"rejectionComments" form:"rejectionComments"`
}

func (s *Service) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	role := types.ParseRole(req.ActorRole)
	if err := officerRole(r.Context(), role); err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := s.deps.Rejections.Reject(r.Context(), workflow.RejectRequest{
		ApplicationID: strings.TrimSpace(req.ApplicationID),
		Role:          role,
		ActorName:     officerName(r.Context(), req.ActorName),
		Comments:      req.RejectionComments,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	message := "application returned to the applicant"
	if app.Rejection.Final {
		message = "application rejected"
	}
	s.writeJSON(w, http.StatusOK, stageResult(message, app))
}

type resubmitRequest struct {
	ApplicationID string `json:"applicationId" form:"applicationId"`
}

func (s *Service) handleResubmit(w http.ResponseWriter, r *http.Request) {
	var req resubmitRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := s.deps.Rejections.Resubmit(r.Context(), strings.TrimSpace(req.ApplicationID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stageResult("application resubmitted", app))
}
