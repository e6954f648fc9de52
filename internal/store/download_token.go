package store

import (
	"context"
	"fmt"
	"time"

	"permitflow/internal/utils"
	"permitflow/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const downloadTokenTableName = "permitflow.download_tokens"

var downloadTokenColumns = utils.StructTagValues(types.DownloadAccessToken{})

type DownloadTokenRepository struct {
	pool *pgxpool.Pool
}

func NewDownloadTokenRepository(pool *pgxpool.Pool) *DownloadTokenRepository {
	return &DownloadTokenRepository{pool: pool}
}

func (r *DownloadTokenRepository) CreateDownloadToken(ctx context.Context, token *types.DownloadAccessToken) error {
	query, args, err := psql().
		Insert(downloadTokenTableName).
		SetMap(utils.StructToMap(token)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert download token query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create download token")
}

// DownloadToken looks a token up by hash. Expiry is left to the caller so
// that an expired token can be told apart from an unknown one.
func (r *DownloadTokenRepository) DownloadToken(ctx context.Context, tokenHash string) (*types.DownloadAccessToken, error) {
	query, args, err := psql().
		Select(downloadTokenColumns...).
		From(downloadTokenTableName).
		Where(sq.Eq{"token_hash": tokenHash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate download token query: %w", err)
	}

	var token = new(types.DownloadAccessToken)
	err = pgxscan.Get(ctx, r.pool, token, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to fetch download token: %w", err)
	}

	return token, nil
}

func (r *DownloadTokenRepository) DeleteExpiredDownloadTokens(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql().
		Delete(downloadTokenTableName).
		Where(sq.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to generate delete expired download tokens query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired download tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}
