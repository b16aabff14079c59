// Package pg is the Postgres-backed Repository implementation: a thin
// struct wrapping *pgxpool.Pool per entity, parameterized SQL, and
// pgconn.PgError inspection for constraint violations instead of
// hand-rolled existence checks.
package pg

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classattest/attest-backend/internal/repository"
)

// Store is the Postgres Repository.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool (see internal/database.NewPostgresPool).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// IsTransient classifies Postgres errors worth retrying once: connection
// exceptions (class 08), admin-initiated shutdowns (57P*), and
// serialization/deadlock rollbacks (40001, 40P01). Constraint violations
// and data errors are never transient.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "08"):
		return true
	case strings.HasPrefix(pgErr.Code, "57P"):
		return true
	case pgErr.Code == "40001" || pgErr.Code == "40P01":
		return true
	}
	return false
}

func (s *Store) Students() repository.StudentRepository        { return &studentRepo{pool: s.pool} }
func (s *Store) Attendance() repository.AttendanceRepository   { return &attendanceRepo{pool: s.pool} }
func (s *Store) RssiStreams() repository.RssiStreamRepository  { return &streamRepo{pool: s.pool} }
func (s *Store) Anomalies() repository.AnomalyRepository       { return &anomalyRepo{pool: s.pool} }
func (s *Store) Idempotency() repository.IdempotencyRepository { return &idempotencyRepo{pool: s.pool} }
