package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"permitflow/internal/otp"
	"permitflow/internal/storage"
	"permitflow/internal/store"
	"permitflow/internal/utils"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	tokenSize       = 32
)

// Broker grants applicants time-boxed access to the documents of an issued
// application. It never reveals which of the supplied details was wrong.
type Broker struct {
	apps   store.Applications
	tokens store.DownloadTokens
	otp    *otp.Issuer
	blobs  storage.Blobs
	logger logrus.FieldLogger
	ttl    time.Duration
}

func NewBroker(apps store.Applications, tokens store.DownloadTokens, issuer *otp.Issuer, blobs storage.Blobs, logger logrus.FieldLogger, ttl time.Duration) *Broker {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Broker{
		apps:   apps,
		tokens: tokens,
		otp:    issuer,
		blobs:  blobs,
		logger: logger,
		ttl:    ttl,
	}
}

// RequestAccess sends a download OTP to the applicant's email on record.
func (b *Broker) RequestAccess(ctx context.Context, applicationNumber, email string) (*types.OtpIssue, error) {
	applicationNumber = strings.TrimSpace(applicationNumber)
	email = strings.TrimSpace(email)
	if applicationNumber == "" {
		return nil, types.NewValidationError("applicationNumber", "application number is required")
	}
	if email == "" {
		return nil, types.NewValidationError("email", "email is required")
	}

	app, err := b.apps.ApplicationByNumber(ctx, applicationNumber)
	if err != nil {
		if errors.Is(err, types.ErrApplicationNotFound) {
			return nil, types.ErrAccessDenied
		}
		return nil, err
	}

	if !strings.EqualFold(app.ApplicantEmail, email) || !app.Issued() {
		b.logger.WithField("application_number", applicationNumber).Warn("download access refused")
		return nil, types.ErrAccessDenied
	}

	return b.otp.Issue(ctx, app.ID, types.PurposeDownloadAccess, app.Stage, app.ApplicantEmail)
}

// VerifyAccess exchanges a download OTP for a token. Only the token's hash is
// stored.
func (b *Broker) VerifyAccess(ctx context.Context, applicationNumber, code string) (*types.DownloadGrant, error) {
	applicationNumber = strings.TrimSpace(applicationNumber)
	if applicationNumber == "" {
		return nil, types.NewValidationError("applicationNumber", "application number is required")
	}
	if _, err := b.otp.Normalize(code); err != nil {
		return nil, err
	}

	app, err := b.apps.ApplicationByNumber(ctx, applicationNumber)
	if err != nil {
		if errors.Is(err, types.ErrApplicationNotFound) {
			return nil, types.ErrInvalidOrExpiredOtp
		}
		return nil, err
	}

	if _, err := b.otp.Verify(ctx, app.ID, types.PurposeDownloadAccess, code); err != nil {
		return nil, err
	}
	if !app.Issued() {
		return nil, types.ErrAccessDenied
	}

	token := utils.NanoIDSize(tokenSize)
	now := b.otp.Now()

	record := &types.DownloadAccessToken{
		TokenHash:         HashToken(token),
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		ApplicantName:     app.ApplicantName,
		IssuedAt:          now,
		ExpiresAt:         now.Add(b.ttl),
	}
	if err := b.tokens.CreateDownloadToken(ctx, record); err != nil {
		return nil, err
	}

	b.logger.WithField("application_number", app.ApplicationNumber).Info("download token granted")

	return &types.DownloadGrant{
		Token:         token,
		ApplicantName: app.ApplicantName,
		ExpiresAt:     record.ExpiresAt,
	}, nil
}

// FetchDocument returns one artifact. Every kind shares the token's window.
func (b *Broker) FetchDocument(ctx context.Context, token string, kind types.DocumentKind) (*types.Document, error) {
	if !kind.Valid() {
		return nil, types.NewValidationError("kind", "unknown document kind")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, types.ErrTokenNotFound
	}

	record, err := b.tokens.DownloadToken(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if record.Expired(b.otp.Now()) {
		return nil, types.ErrTokenExpired
	}

	app, err := b.apps.Application(ctx, record.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !app.Issued() {
		return nil, types.ErrTokenNotFound
	}

	body, contentType, err := b.blobs.Get(ctx, kind.StorageKey(app.ApplicationNumber))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, types.ErrDocumentNotFound
		}
		return nil, err
	}

	return &types.Document{
		Kind:        kind,
		FileName:    kind.FileName(app.ApplicationNumber),
		ContentType: contentType,
		Body:        body,
	}, nil
}

func (b *Broker) Sweep(ctx context.Context) (int64, error) {
	return b.tokens.DeleteExpiredDownloadTokens(ctx, b.otp.Now())
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
