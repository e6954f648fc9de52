package otp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitflow/internal/notify"
	"permitflow/internal/store"
	"permitflow/internal/utils"
	"permitflow/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLength      = 6
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 5
)

type Options struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	// Pepper keys the code hash so a leaked table cannot be brute forced
	// offline.
	Pepper string
	Now    func() time.Time
}

// Issuer creates and checks single-use challenges. Only keyed hashes of codes
// are stored; plaintext codes go to the notifier and nowhere else.
type Issuer struct {
	store       store.Challenges
	notifier    notify.Notifier
	logger      logrus.FieldLogger
	pepper      []byte
	length      int
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewIssuer(challenges store.Challenges, notifier notify.Notifier, logger logrus.FieldLogger, opts Options) *Issuer {
	if opts.Length <= 0 {
		opts.Length = DefaultLength
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Issuer{
		store:       challenges,
		notifier:    notifier,
		logger:      logger,
		pepper:      []byte(opts.Pepper),
		length:      opts.Length,
		ttl:         opts.TTL,
		maxAttempts: opts.MaxAttempts,
		now:         opts.Now,
	}
}

func (i *Issuer) Now() time.Time {
	return i.now()
}

// Issue replaces any earlier challenge for (applicationID, purpose) with a
// fresh one bound to stage and sends the code to recipient.
func (i *Issuer) Issue(ctx context.Context, applicationID string, purpose types.OtpPurpose, stage types.Stage, recipient string) (*types.OtpIssue, error) {
	code, err := utils.NumericCode(i.length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp code: %w", err)
	}

	now := i.now()
	ch := &types.OtpChallenge{
		ApplicationID: applicationID,
		Purpose:       purpose,
		CodeHash:      i.Hash(code),
		Reference:     utils.Reference(),
		Stage:         stage,
		ExpiresAt:     now.Add(i.ttl),
	}

	if err := i.store.ReplaceChallenge(ctx, ch); err != nil {
		return nil, err
	}

	err = i.notifier.Dispatch(ctx, notify.Message{
		ApplicationID: applicationID,
		Purpose:       purpose,
		Recipient:     recipient,
		Code:          code,
		Reference:     ch.Reference,
		ExpiresAt:     ch.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch otp %s: %w", ch.Reference, err)
	}

	i.logger.WithFields(logrus.Fields{
		"application_id": applicationID,
		"purpose":        purpose,
		"reference":      ch.Reference,
	}).Debug("otp issued")

	return &types.OtpIssue{Reference: ch.Reference, ExpiresAt: ch.ExpiresAt}, nil
}

// Verify consumes the challenge outside of any application mutation.
func (i *Issuer) Verify(ctx context.Context, applicationID string, purpose types.OtpPurpose, code string) (*types.OtpChallenge, error) {
	code, err := i.Normalize(code)
	if err != nil {
		return nil, err
	}

	ch, err := i.store.ConsumeChallenge(ctx, applicationID, purpose, i.Hash(code), i.now())
	if err != nil {
		if errors.Is(err, types.ErrInvalidOrExpiredOtp) {
			i.RecordFailure(ctx, applicationID, purpose)
		}
		return nil, err
	}

	return ch, nil
}

// Consume is Verify run inside an application mutation.
func (i *Issuer) Consume(ctx context.Context, tx store.Tx, applicationID string, purpose types.OtpPurpose, code string) (*types.OtpChallenge, error) {
	code, err := i.Normalize(code)
	if err != nil {
		return nil, err
	}
	return tx.ConsumeChallenge(ctx, applicationID, purpose, i.Hash(code), i.now())
}

// RecordFailure counts a wrong guess. It runs outside the failed transaction
// so the count survives the rollback.
func (i *Issuer) RecordFailure(ctx context.Context, applicationID string, purpose types.OtpPurpose) {
	err := i.store.RecordFailedAttempt(ctx, applicationID, purpose, i.maxAttempts)
	if err != nil {
		i.logger.WithError(err).WithField("application_id", applicationID).Error("failed to record failed otp attempt")
	}
}

// Normalize trims the supplied code and rejects anything that is not exactly
// the configured number of digits.
func (i *Issuer) Normalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != i.length {
		return "", types.NewValidationError("otp", fmt.Sprintf("OTP must be %d digits", i.length))
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return "", types.NewValidationError("otp", fmt.Sprintf("OTP must be %d digits", i.length))
		}
	}
	return code, nil
}

func (i *Issuer) Hash(code string) string {
	mac := hmac.New(sha256.New, i.pepper)
	_, _ = mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func (i *Issuer) Sweep(ctx context.Context) (int64, error) {
	return i.store.DeleteExpiredChallenges(ctx, i.now())
}
