package main

import (
	"context"
	"fmt"

	"permitflow/internal/certificate"
	"permitflow/internal/db"
	"permitflow/internal/download"
	"permitflow/internal/notify"
	"permitflow/internal/otp"
	"permitflow/internal/payments"
	"permitflow/internal/storage"
	"permitflow/internal/store"
	"permitflow/internal/workflow"
	"permitflow/pkg/types"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// runtime is the wired core shared by the commands.
type runtime struct {
	apps       store.Applications
	challenges store.Challenges
	tokens     store.DownloadTokens
	blobs      storage.Blobs

	issuer     *otp.Issuer
	signer     *certificate.Signer
	pipeline   *certificate.Pipeline
	gate       *workflow.Gate
	rejections *workflow.Rejections
	broker     *download.Broker
	payments   *payments.Service

	close func()
}

func newRuntime(ctx context.Context, config *types.Config, logger *logrus.Logger) (*runtime, error) {
	rt := &runtime{close: func() {}}

	switch config.StoreDriver {
	case "memory":
		mem := store.NewMemory()
		rt.apps, rt.challenges, rt.tokens = mem, mem, mem
		logger.Warn("using in-memory store; state is lost on exit")
	default:
		pool, err := db.Connect(ctx, config)
		if err != nil {
			return nil, err
		}
		rt.close = pool.Close
		rt.apps = store.NewApplicationRepository(pool)
		rt.challenges = store.NewChallengeRepository(pool)
		rt.tokens = store.NewDownloadTokenRepository(pool)
	}

	switch config.BlobDriver {
	case "memory":
		rt.blobs = storage.NewMemoryStorage()
	default:
		awsConfig, err := loadAWSConfig(ctx)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.blobs = storage.NewS3Storage(s3.NewFromConfig(awsConfig), config.S3BucketName)
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger, !config.Production())
	if config.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(config.NotifyWebhookURL, config.NotifyWebhookSecret)
	}

	rt.issuer = otp.NewIssuer(rt.challenges, notifier, logger, otp.Options{
		Length:      config.OtpLength,
		TTL:         config.OtpTTL,
		MaxAttempts: config.OtpMaxAttempts,
		Pepper:      config.OtpPepper,
	})

	signer, err := newSigner(config)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.signer = signer

	policy, err := workflow.ParseReturningPolicy(config.ReturningRejectionPolicy)
	if err != nil {
		rt.close()
		return nil, err
	}

	rt.pipeline = certificate.NewPipeline(rt.blobs, signer, config.IssuingAuthority, config.PermitCurrency, logger)
	rt.gate = workflow.NewGate(rt.apps, rt.issuer, rt.pipeline, logger)
	rt.rejections = workflow.NewRejections(rt.apps, policy, logger, rt.issuer.Now)
	rt.broker = download.NewBroker(rt.apps, rt.tokens, rt.issuer, rt.blobs, logger, config.DownloadTokenTTL)
	rt.payments = payments.NewService(rt.gate, payments.Options{
		Fee:           config.PermitFee,
		Currency:      config.PermitCurrency,
		SecretKey:     config.StripeSecretKey,
		WebhookSecret: config.StripeWebhookSecret,
		PublicBaseURL: config.PublicBaseURL,
	}, logger)

	return rt, nil
}

func newSigner(config *types.Config) (*certificate.Signer, error) {
	if config.SigningKeyPEM != "" {
		return certificate.NewSignerFromPEM([]byte(config.SigningKeyPEM))
	}
	if config.SigningHMACSecret != "" {
		return certificate.NewHMACSigner([]byte(config.SigningHMACSecret))
	}
	return nil, fmt.Errorf("set SIGNING_KEY_PEM or SIGNING_HMAC_SECRET")
}

// sweep drops expired challenges and download tokens.
func (rt *runtime) sweep(ctx context.Context, logger logrus.FieldLogger) error {
	challenges, err := rt.issuer.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep otp challenges: %w", err)
	}

	tokens, err := rt.broker.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep download tokens: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"challenges": challenges,
		"tokens":     tokens,
	}).Info("expired records swept")

	return nil
}
