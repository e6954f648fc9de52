package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"
)

const (
	ProviderStripe  = "stripe"
	ProviderCounter = "counter"
)

var (
	ErrProviderDisabled = errors.New("online payments are not configured")
	ErrInvalidWebhook   = errors.New("invalid webhook payload")
)

// Recorder is the workflow side of payment intake.
type Recorder interface {
	Application(ctx context.Context, applicationID string) (*types.Application, error)
	RecordPayment(ctx context.Context, applicationID string, payment types.Payment) (*types.Application, error)
}

// Sessions creates hosted checkout sessions. *session.Client satisfies it.
type Sessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Options struct {
	Fee           int64
	Currency      string
	SecretKey     string
	WebhookSecret string
	PublicBaseURL string
}

type Service struct {
	recorder Recorder
	sessions Sessions
	opts     Options
	logger   logrus.FieldLogger
}

// NewService builds the Stripe session client from opts.SecretKey. Without a
// key only counter payments are accepted.
func NewService(recorder Recorder, opts Options, logger logrus.FieldLogger) *Service {
	var sessions Sessions
	if opts.SecretKey != "" {
		sessions = &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: opts.SecretKey}
	}
	return NewServiceWithSessions(recorder, sessions, opts, logger)
}

func NewServiceWithSessions(recorder Recorder, sessions Sessions, opts Options, logger logrus.FieldLogger) *Service {
	if opts.Currency == "" {
		opts.Currency = "inr"
	}
	return &Service{recorder: recorder, sessions: sessions, opts: opts, logger: logger}
}

func (s *Service) Fee() int64 {
	return s.opts.Fee
}

type Checkout struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"checkoutUrl"`
}

// Checkout opens a hosted payment page for the permit fee.
func (s *Service) Checkout(ctx context.Context, applicationID string) (*Checkout, error) {
	if s.sessions == nil {
		return nil, ErrProviderDisabled
	}

	app, err := s.recorder.Application(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Terminal() {
		return nil, types.ErrTerminalState
	}
	if app.Stage != types.StagePaymentPending {
		return nil, types.ErrStageMismatch
	}

	base := strings.TrimRight(s.opts.PublicBaseURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(app.ID),
		CustomerEmail:     stripe.String(app.ApplicantEmail),
		SuccessURL:        stripe.String(base + "/applications/" + app.ID),
		CancelURL:         stripe.String(base + "/applications/" + app.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(s.opts.Currency),
					UnitAmount: stripe.Int64(s.opts.Fee * 100),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Building permit fee " + app.ApplicationNumber),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("application_number", app.ApplicationNumber)

	sess, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"session_id":     sess.ID,
	}).Info("checkout session created")

	return &Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// RecordCounter records a fee paid at the office counter.
func (s *Service) RecordCounter(ctx context.Context, applicationID string, amount int64, reference string) (*types.Application, error) {
	if amount < s.opts.Fee {
		return nil, types.NewValidationError("amount", fmt.Sprintf("amount must be at least %d", s.opts.Fee))
	}
	return s.recorder.RecordPayment(ctx, applicationID, types.Payment{
		Amount:    amount,
		Reference: strings.TrimSpace(reference),
		Provider:  ProviderCounter,
	})
}

// HandleWebhook verifies a Stripe event and records completed checkouts.
// Events of other types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.opts.WebhookSecret == "" {
		return ErrProviderDisabled
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.opts.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		s.logger.WithField("event_type", event.Type).Debug("ignoring stripe event")
		return nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWebhook, err)
	}
	if sess.ClientReferenceID == "" {
		return fmt.Errorf("%w: session %s has no client reference", ErrInvalidWebhook, sess.ID)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		s.logger.WithField("session_id", sess.ID).Info("checkout completed without payment")
		return nil
	}

	_, err = s.recorder.RecordPayment(ctx, sess.ClientReferenceID, types.Payment{
		Amount:    sess.AmountTotal / 100,
		Reference: sess.ID,
		Provider:  ProviderStripe,
		PaidAt:    time.Unix(event.Created, 0).UTC(),
	})
	return err
}
