package certificate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitflow/internal/storage"
	"permitflow/internal/utils"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
)

// Claims is the payload of a certificate signature.
type Claims struct {
	ApplicationNumber string    `json:"applicationNumber"`
	Serial            string    `json:"serial"`
	Digest            string    `json:"digest"`
	IssuedAt          time.Time `json:"issuedAt"`
}

// Pipeline renders, signs and stores the documents produced along the
// workflow. It runs inside the application mutation, so a failure here
// leaves the application where it was.
type Pipeline struct {
	blobs     storage.Blobs
	signer    *Signer
	authority string
	currency  string
	logger    logrus.FieldLogger
}

func NewPipeline(blobs storage.Blobs, signer *Signer, authority, currency string, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		blobs:     blobs,
		signer:    signer,
		authority: authority,
		currency:  currency,
		logger:    logger,
	}
}

func (p *Pipeline) AfterSign(ctx context.Context, app *types.Application, signed types.Stage, now time.Time) error {
	switch signed {
	case types.StageCityEngineerPending:
		body, err := RenderRecommendationForm(app, p.authority, now)
		if err != nil {
			return err
		}
		return p.put(ctx, app, types.DocumentRecommendationForm, body)
	case types.StageCityEngineerSignPending:
		return p.issue(ctx, app, now)
	}
	return nil
}

func (p *Pipeline) AfterPayment(ctx context.Context, app *types.Application, _ time.Time) error {
	body, err := RenderChallan(app, p.authority, p.currency)
	if err != nil {
		return err
	}
	return p.put(ctx, app, types.DocumentChallan, body)
}

// Discard deletes the document written for signed when its transaction
// rolled back.
func (p *Pipeline) Discard(ctx context.Context, app *types.Application, signed types.Stage) error {
	var kind types.DocumentKind
	switch signed {
	case types.StageCityEngineerPending:
		kind = types.DocumentRecommendationForm
	case types.StageCityEngineerSignPending:
		kind = types.DocumentCertificate
	case types.StagePaymentPending:
		kind = types.DocumentChallan
	default:
		return nil
	}

	key := kind.StorageKey(app.ApplicationNumber)
	if err := p.blobs.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}

	p.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"key":            key,
	}).Warn("discarded document of an aborted step")

	return nil
}

func (p *Pipeline) issue(ctx context.Context, app *types.Application, now time.Time) error {
	if app.Certificate == nil || app.Certificate.IssuedAt == nil {
		return fmt.Errorf("application %s reached issue without a CE2 signature", app.ApplicationNumber)
	}
	issuedAt := *app.Certificate.IssuedAt

	serial := "PC-" + issuedAt.Format("2006") + "-" + strings.ToUpper(utils.NanoIDSize(10))

	body, err := RenderCertificate(app, p.authority, serial, issuedAt)
	if err != nil {
		return err
	}

	signature, err := p.signer.Sign(Claims{
		ApplicationNumber: app.ApplicationNumber,
		Serial:            serial,
		Digest:            digest(body),
		IssuedAt:          issuedAt,
	})
	if err != nil {
		return err
	}

	if err := p.put(ctx, app, types.DocumentCertificate, body); err != nil {
		return err
	}

	app.Certificate.Serial = serial
	app.Certificate.Signature = signature
	app.Certificate.StorageKey = types.DocumentCertificate.StorageKey(app.ApplicationNumber)

	p.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"serial":         serial,
	}).Info("certificate issued")

	return nil
}

func (p *Pipeline) put(ctx context.Context, app *types.Application, kind types.DocumentKind, body []byte) error {
	key := kind.StorageKey(app.ApplicationNumber)
	if err := p.blobs.Put(ctx, key, body, contentTypePDF); err != nil {
		return fmt.Errorf("failed to store %s: %w", kind, err)
	}
	return nil
}

// Verification is the outcome of checking an issued certificate.
type Verification struct {
	Valid  bool    `json:"valid"`
	Claims *Claims `json:"claims,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// Verify checks the stored certificate against its recorded signature.
func (p *Pipeline) Verify(ctx context.Context, app *types.Application) (*Verification, error) {
	if !app.Issued() || app.Certificate.Signature == "" {
		return nil, types.ErrDocumentNotFound
	}

	var claims Claims
	if err := p.signer.Verify(app.Certificate.Signature, &claims); err != nil {
		return &Verification{Reason: "signature does not verify"}, nil
	}

	body, _, err := p.blobs.Get(ctx, app.Certificate.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, types.ErrDocumentNotFound
		}
		return nil, err
	}

	switch {
	case claims.ApplicationNumber != app.ApplicationNumber, claims.Serial != app.Certificate.Serial:
		return &Verification{Claims: &claims, Reason: "signature belongs to another certificate"}, nil
	case claims.Digest != digest(body):
		return &Verification{Claims: &claims, Reason: "document does not match its signature"}, nil
	}

	return &Verification{Valid: true, Claims: &claims}, nil
}

func digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
