package server

import (
	"net/http"
	"strings"

	"permitflow/pkg/types"
)

type checkoutRequest struct {
	ApplicationID string `json:"applicationId" form:"applicationId"`
}

type checkoutResponse struct {
	result
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	checkout, err := s.deps.Payments.Checkout(r.Context(), strings.TrimSpace(req.ApplicationID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, checkoutResponse{result: ok("checkout created"), CheckoutURL: checkout.URL})
}

type recordPaymentRequest struct {
	ApplicationID string `json:"applicationId" form:"applicationId"`
	ActorRole     string `json:"actorRole" form:"actorRole"`
	Amount        int64  `json:"amount" form:"amount"`
	Reference     string `json:"reference" form:"reference"`
}

// handleRecordPayment is the clerk's entry for fees paid at the counter.
func (s *Service) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	role := types.ParseRole(req.ActorRole)
	if role != types.RoleClerk {
		s.writeError(w, r, types.ErrUnauthorizedActor)
		return
	}
	if err := officerRole(r.Context(), role); err != nil {
		s.writeError(w, r, err)
		return
	}

	app, err := s.deps.Payments.RecordCounter(r.Context(), strings.TrimSpace(req.ApplicationID), req.Amount, req.Reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stageResult("payment recorded", app))
}

func (s *Service) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r, maxBodyBytes)
	if err != nil {
		s.writeError(w, r, types.NewValidationError("", "unreadable body"))
		return
	}

	if err := s.deps.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		s.logger.WithError(err).Warn("stripe webhook not processed")
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}
