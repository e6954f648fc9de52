package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"permitflow/internal/certificate"
	"permitflow/internal/download"
	"permitflow/internal/payments"
	"permitflow/internal/workflow"
	"permitflow/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/gorilla/securecookie"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

// KeySetLookup resolves the officer token signing keys. *jwk.Cache
// satisfies it.
type KeySetLookup interface {
	Lookup(ctx context.Context, u string) (jwk.Set, error)
}

// Deps is everything the HTTP layer calls into.
type Deps struct {
	Gate       *workflow.Gate
	Rejections *workflow.Rejections
	Broker     *download.Broker
	Payments   *payments.Service
	Pipeline   *certificate.Pipeline
	Signer     *certificate.Signer

	// Officer token verification is skipped when JWKS is nil.
	JWKS    KeySetLookup
	JWKSURL string
}

type Service struct {
	logger logrus.FieldLogger
	config *types.Config
	deps   Deps
	cookie *securecookie.SecureCookie
	mux    *flow.Mux

	server *http.Server
}

func New(config *types.Config, logger logrus.FieldLogger, deps Deps) (*Service, error) {
	mux := flow.New()

	hashKey, err := base64.StdEncoding.DecodeString(config.CookieHashKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie hash key: %w", err)
	}
	blockKey, err := base64.StdEncoding.DecodeString(config.CookieBlockKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cookie block key: %w", err)
	}

	s := &Service{
		logger: logger,
		config: config,
		deps:   deps,
		mux:    mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
	if len(hashKey) > 0 {
		s.cookie = securecookie.New(hashKey, blockKey)
	}

	s.buildRouter(mux)

	return s, nil
}

func (s *Service) Handler() http.Handler {
	return s.mux
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)
	r.HandleFunc("/stages", s.handleStages, http.MethodGet)
	r.HandleFunc("/.well-known/jwks.json", s.handleJWKS, http.MethodGet)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireOfficer)

		r.HandleFunc("/otp/generate", s.handleGenerateOtp, http.MethodPost)
		r.HandleFunc("/otp/verify-and-sign", s.handleVerifyAndSign, http.MethodPost)
		r.HandleFunc("/reject", s.handleReject, http.MethodPost)
		r.HandleFunc("/payments/record", s.handleRecordPayment, http.MethodPost)

		r.HandleFunc("/applications/pending", s.handlePending, http.MethodGet)
		r.HandleFunc("/stats/:role", s.handleStats, http.MethodGet)
	})

	r.HandleFunc("/applications/:id", s.handleApplication, http.MethodGet)
	r.HandleFunc("/applications/:id/certificate/verify", s.handleVerifyCertificate, http.MethodGet)
	r.HandleFunc("/resubmit", s.handleResubmit, http.MethodPost)

	r.HandleFunc("/payments/checkout", s.handleCheckout, http.MethodPost)
	r.HandleFunc("/payments/stripe/webhook", s.handleStripeWebhook, http.MethodPost)

	r.HandleFunc("/download/request-access", s.handleRequestAccess, http.MethodPost)
	r.HandleFunc("/download/verify-otp", s.handleVerifyDownloadOtp, http.MethodPost)
	r.HandleFunc("/download/:kind/:token", s.handleFetchDocument, http.MethodGet)
}
