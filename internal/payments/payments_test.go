package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"permitflow/internal/testutil"
	"permitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const whsec = "whsec_test_secret"

type fakeRecorder struct {
	app      *types.Application
	payments []types.Payment
}

func (r *fakeRecorder) Application(_ context.Context, id string) (*types.Application, error) {
	if r.app == nil || r.app.ID != id {
		return nil, types.ErrApplicationNotFound
	}
	return r.app, nil
}

func (r *fakeRecorder) RecordPayment(_ context.Context, id string, payment types.Payment) (*types.Application, error) {
	if r.app == nil || r.app.ID != id {
		return nil, types.ErrApplicationNotFound
	}
	r.payments = append(r.payments, payment)
	return r.app, nil
}

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (s *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.params = params
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func atPayment() *types.Application {
	app := testutil.Application("a1", "BP-2026-0003")
	app.Stage = types.StagePaymentPending
	return app
}

func newService(recorder Recorder, sessions Sessions) *Service {
	logger, _ := testutil.Logger()
	return NewServiceWithSessions(recorder, sessions, Options{
		Fee:           5000,
		WebhookSecret: whsec,
		PublicBaseURL: "https://permits.example.gov/",
	}, logger)
}

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"api_version": "2020-08-27",
		"type":        eventType,
		"created":     time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC).Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: whsec})
	return signed.Payload, signed.Header
}

func TestCheckoutBuildsSessionForFee(t *testing.T) {
	sessions := &fakeSessions{}
	s := newService(&fakeRecorder{app: atPayment()}, sessions)

	checkout, err := s.Checkout(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", checkout.SessionID)
	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", checkout.URL)

	p := sessions.params
	require.NotNil(t, p)
	assert.Equal(t, "a1", *p.ClientReferenceID)
	assert.Equal(t, "Asha@Example.com", *p.CustomerEmail)
	assert.Equal(t, "https://permits.example.gov/applications/a1", *p.SuccessURL)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(500000), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "inr", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "BP-2026-0003", p.Metadata["application_number"])
}

func TestCheckoutGuards(t *testing.T) {
	ctx := context.Background()

	_, err := newService(&fakeRecorder{app: atPayment()}, nil).Checkout(ctx, "a1")
	require.ErrorIs(t, err, ErrProviderDisabled)

	app := atPayment()
	app.Stage = types.StageClerkPending
	_, err = newService(&fakeRecorder{app: app}, &fakeSessions{}).Checkout(ctx, "a1")
	require.ErrorIs(t, err, types.ErrStageMismatch)

	app.Stage = types.StageApproved
	_, err = newService(&fakeRecorder{app: app}, &fakeSessions{}).Checkout(ctx, "a1")
	require.ErrorIs(t, err, types.ErrTerminalState)

	_, err = newService(&fakeRecorder{app: atPayment()}, &fakeSessions{err: errors.New("stripe down")}).Checkout(ctx, "a1")
	require.Error(t, err)
}

func TestRecordCounterEnforcesFee(t *testing.T) {
	recorder := &fakeRecorder{app: atPayment()}
	s := newService(recorder, nil)

	_, err := s.RecordCounter(context.Background(), "a1", 4999, "CTR-1")
	require.ErrorIs(t, err, types.ErrValidation)
	assert.Empty(t, recorder.payments)

	_, err = s.RecordCounter(context.Background(), "a1", 5000, " CTR-1 ")
	require.NoError(t, err)
	require.Len(t, recorder.payments, 1)
	assert.Equal(t, types.Payment{Amount: 5000, Reference: "CTR-1", Provider: ProviderCounter}, recorder.payments[0])
}

func TestWebhookRecordsPaidCheckout(t *testing.T) {
	recorder := &fakeRecorder{app: atPayment()}
	s := newService(recorder, nil)

	payload, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_test_1",
		"object":              "checkout.session",
		"client_reference_id": "a1",
		"payment_status":      "paid",
		"amount_total":        500000,
	})

	require.NoError(t, s.HandleWebhook(context.Background(), payload, header))
	require.Len(t, recorder.payments, 1)
	assert.Equal(t, types.Payment{
		Amount:    5000,
		Reference: "cs_test_1",
		Provider:  ProviderStripe,
		PaidAt:    time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC),
	}, recorder.payments[0])
}

func TestWebhookIgnoresUnpaidAndOtherEvents(t *testing.T) {
	recorder := &fakeRecorder{app: atPayment()}
	s := newService(recorder, nil)
	ctx := context.Background()

	payload, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_test_2",
		"object":              "checkout.session",
		"client_reference_id": "a1",
		"payment_status":      "unpaid",
	})
	require.NoError(t, s.HandleWebhook(ctx, payload, header))

	payload, header = signedEvent(t, "checkout.session.expired", map[string]any{
		"id":     "cs_test_3",
		"object": "checkout.session",
	})
	require.NoError(t, s.HandleWebhook(ctx, payload, header))

	assert.Empty(t, recorder.payments)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	recorder := &fakeRecorder{app: atPayment()}
	s := newService(recorder, nil)

	payload, _ := signedEvent(t, "checkout.session.completed", map[string]any{"id": "cs_test_1"})

	err := s.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrInvalidWebhook)
	assert.Empty(t, recorder.payments)

	logger, _ := testutil.Logger()
	disabled := NewServiceWithSessions(recorder, nil, Options{Fee: 5000}, logger)
	require.ErrorIs(t, disabled.HandleWebhook(context.Background(), payload, "x"), ErrProviderDisabled)
}
