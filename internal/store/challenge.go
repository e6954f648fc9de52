package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"permitflow/internal/utils"
	"permitflow/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const challengeTableName = "permitflow.otp_challenges"

var challengeColumns = utils.StructTagValues(types.OtpChallenge{})

type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

func (r *ChallengeRepository) ReplaceChallenge(ctx context.Context, ch *types.OtpChallenge) error {
	ch.CreatedAt = time.Now()
	ch.Attempts = 0
	ch.Consumed = false
	ch.ConsumedAt = nil

	query, args, err := psql().
		Insert(challengeTableName).
		SetMap(utils.StructToMap(ch)).
		Suffix(`ON CONFLICT (application_id, purpose) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			reference = EXCLUDED.reference,
			stage = EXCLUDED.stage,
			attempts = 0,
			consumed = false,
			consumed_at = NULL,
			expires_at = EXCLUDED.expires_at,
			created_at = EXCLUDED.created_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate replace challenge query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to replace otp challenge")
}

func (r *ChallengeRepository) ConsumeChallenge(ctx context.Context, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error) {
	return consumeChallenge(ctx, r.pool, applicationID, purpose, codeHash, now)
}

// consumeChallenge is a compare-and-swap on consumed; of any number of
// concurrent callers only one gets the row back.
func consumeChallenge(ctx context.Context, q pgxscan.Querier, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error) {
	query, args, err := psql().
		Update(challengeTableName).
		Set("consumed", true).
		Set("consumed_at", now).
		Where(sq.Eq{
			"application_id": applicationID,
			"purpose":        purpose,
			"code_hash":      codeHash,
			"consumed":       false,
		}).
		Where(sq.Gt{"expires_at": now}).
		Suffix("RETURNING " + strings.Join(challengeColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate consume challenge query: %w", err)
	}

	var ch = new(types.OtpChallenge)
	err = pgxscan.Get(ctx, q, ch, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrInvalidOrExpiredOtp
		}
		return nil, fmt.Errorf("failed to consume otp challenge: %w", err)
	}

	return ch, nil
}

func (r *ChallengeRepository) RecordFailedAttempt(ctx context.Context, applicationID string, purpose types.OtpPurpose, maxAttempts int) error {
	query, args, err := psql().
		Update(challengeTableName).
		Set("attempts", sq.Expr("attempts + 1")).
		Set("consumed", sq.Expr("attempts + 1 >= ?", maxAttempts)).
		Where(sq.Eq{
			"application_id": applicationID,
			"purpose":        purpose,
			"consumed":       false,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate failed attempt query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to record failed otp attempt")
}

func (r *ChallengeRepository) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql().
		Delete(challengeTableName).
		Where(sq.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate delete expired challenges query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}

	return tag.RowsAffected(), nil
}
