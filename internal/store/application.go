package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"permitflow/internal/utils"
	"permitflow/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationTableName = "permitflow.applications"

var applicationColumns = utils.StructTagValues(types.Application{})

type ApplicationRepository struct {
	pool *pgxpool.Pool
}

func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

func (r *ApplicationRepository) Application(ctx context.Context, id string) (*types.Application, error) {
	return r.applicationWhere(ctx, r.pool, sq.Eq{"id": id}, false)
}

func (r *ApplicationRepository) ApplicationByNumber(ctx context.Context, applicationNumber string) (*types.Application, error) {
	return r.applicationWhere(ctx, r.pool, sq.Eq{"application_number": applicationNumber}, false)
}

func (r *ApplicationRepository) applicationWhere(ctx context.Context, q pgxscan.Querier, pred sq.Eq, forUpdate bool) (*types.Application, error) {
	builder := psql().Select(applicationColumns...).From(applicationTableName).
		Where(pred).
		Limit(1)
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate application query: %w", err)
	}

	var app = new(types.Application)
	err = pgxscan.Get(ctx, q, app, query, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, types.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to fetch application: %w", err)
	}

	return app, nil
}

func (r *ApplicationRepository) ApplicationsByStage(ctx context.Context, stages []types.Stage, positionType string) ([]*types.Application, error) {
	codes := make([]int, 0, len(stages))
	for _, s := range stages {
		codes = append(codes, int(s))
	}

	pred := sq.Eq{"stage": codes}
	if positionType != "" {
		pred["position_type"] = positionType
	}

	query, args, err := psql().Select(applicationColumns...).From(applicationTableName).
		Where(pred).
		OrderBy("updated_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate applications by stage query: %w", err)
	}

	var apps = make([]*types.Application, 0)
	err = pgxscan.Select(ctx, r.pool, &apps, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch applications by stage: %w", err)
	}

	return apps, nil
}

func (r *ApplicationRepository) SignedApplications(ctx context.Context) ([]*types.Application, error) {
	query, args, err := psql().Select(applicationColumns...).From(applicationTableName).
		Where(sq.NotEq{"certificate": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signed applications query: %w", err)
	}

	var apps = make([]*types.Application, 0)
	err = pgxscan.Select(ctx, r.pool, &apps, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signed applications: %w", err)
	}

	return apps, nil
}

func (r *ApplicationRepository) CreateApplication(ctx context.Context, app *types.Application) error {
	now := time.Now()
	if app.ID == "" {
		app.ID = utils.NanoID()
	}
	app.Version = 1
	app.CreatedAt = now
	app.UpdatedAt = now

	query, args, err := psql().Insert(applicationTableName).SetMap(utils.StructToMap(app)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert application query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return utils.ErrorWrapOrNil(err, "failed to create application")
}

// MutateApplication locks the application row for the length of one
// transaction. The version predicate on the write is a second guard in case
// the row was read without the lock.
func (r *ApplicationRepository) MutateApplication(ctx context.Context, id string, fn MutateFunc) (*types.Application, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin application transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	app, err := r.applicationWhere(ctx, tx, sq.Eq{"id": id}, true)
	if err != nil {
		return nil, err
	}

	readVersion := app.Version
	if err := fn(ctx, &pgTx{tx: tx}, app); err != nil {
		return nil, err
	}

	app.ID = id
	app.Version = readVersion + 1
	app.UpdatedAt = time.Now()

	query, args, err := psql().Update(applicationTableName).
		SetMap(utils.StructToMap(app)).
		Where(sq.Eq{"id": id, "version": readVersion}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate update application query for %s: %w", id, err)
	}

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update application %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.ErrStageMismatch
	}

	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil, types.ErrStageMismatch
		}
		return nil, fmt.Errorf("failed to commit application %s: %w", id, err)
	}

	return app, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ConsumeChallenge(ctx context.Context, applicationID string, purpose types.OtpPurpose, codeHash string, now time.Time) (*types.OtpChallenge, error) {
	return consumeChallenge(ctx, t.tx, applicationID, purpose, codeHash, now)
}
