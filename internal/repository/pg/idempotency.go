package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

type idempotencyRepo struct {
	pool *pgxpool.Pool
}

func (r *idempotencyRepo) Get(ctx context.Context, eventID string, scope model.IdempotencyScope) (*model.IdempotencyKey, error) {
	k := &model.IdempotencyKey{}
	err := r.pool.QueryRow(ctx,
		`SELECT event_id, scope, request_hash, stored_response, status_code, created_at
		 FROM idempotency_keys WHERE event_id = $1 AND scope = $2`, eventID, scope,
	).Scan(&k.EventID, &k.Scope, &k.RequestHash, &k.StoredResponse, &k.StatusCode, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (r *idempotencyRepo) Put(ctx context.Context, k *model.IdempotencyKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (event_id, scope, request_hash, stored_response, status_code)
		 VALUES ($1, $2, $3, $4, $5)`,
		k.EventID, k.Scope, k.RequestHash, k.StoredResponse, k.StatusCode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

func (r *idempotencyRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
