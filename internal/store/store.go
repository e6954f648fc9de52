package store

import (
	"context"
	"time"

	"permitflow/pkg/types"

	sq "github.com/Masterminds/squirrel"
)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Tx is handed to a MutateFunc. Writes made through it commit or roll back
// together with the application row.
type Tx interface {
	// ConsumeChallenge marks the live challenge matching codeHash consumed and
	// returns it, or fails with types.ErrInvalidOrExpiredOtp.
	ConsumeChallenge(ctx context.Context, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error)
}

// MutateFunc edits app in place. Returning an error discards every change.
type MutateFunc func(ctx context.Context, tx Tx, app *types.Application) error

type Applications interface {
	Application(ctx context.Context, id string) (*types.Application, error)
	ApplicationByNumber(ctx context.Context, applicationNumber string) (*types.Application, error)
	ApplicationsByStage(ctx context.Context, stages []types.Stage, positionType string) ([]*types.Application, error)
	// SignedApplications returns every application that carries a stage-2
	// signature timestamp.
	SignedApplications(ctx context.Context) ([]*types.Application, error)
	CreateApplication(ctx context.Context, app *types.Application) error
	// MutateApplication serializes fn against every other mutation of the
	// same application and persists the result atomically.
	MutateApplication(ctx context.Context, id string, fn MutateFunc) (*types.Application, error)
}

type Challenges interface {
	// ReplaceChallenge stores ch, discarding any earlier challenge for the
	// same application and purpose.
	ReplaceChallenge(ctx context.Context, ch *types.OtpChallenge) error
	ConsumeChallenge(ctx context.Context, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error)
	// RecordFailedAttempt bumps the attempt counter of the live challenge and
	// burns it once maxAttempts is reached.
	RecordFailedAttempt(ctx context.Context, applicationID string, purpose types.OtpPurpose, maxAttempts int) error
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

type DownloadTokens interface {
	CreateDownloadToken(ctx context.Context, token *types.DownloadAccessToken) error
	DownloadToken(ctx context.Context, tokenHash string) (*types.DownloadAccessToken, error)
	DeleteExpiredDownloadTokens(ctx context.Context, before time.Time) (int64, error)
}
