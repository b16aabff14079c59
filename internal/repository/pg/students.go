package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classattest/attest-backend/internal/identity"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

// pgUniqueViolation is the Postgres SQLSTATE for a unique_violation.
const pgUniqueViolation = "23505"

type studentRepo struct {
	pool *pgxpool.Pool
}

func (r *studentRepo) scan(row pgx.Row) (*model.Student, error) {
	s := &model.Student{}
	err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.DeviceID, &s.DeviceRegisteredAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *studentRepo) GetByStudentID(ctx context.Context, studentID string) (*model.Student, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT id, student_id, name, device_id, device_registered_at, created_at, updated_at
		 FROM students WHERE student_id = $1`, studentID))
}

func (r *studentRepo) GetByDeviceID(ctx context.Context, deviceID string) (*model.Student, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT id, student_id, name, device_id, device_registered_at, created_at, updated_at
		 FROM students WHERE device_id = $1`, deviceID))
}

func (r *studentRepo) EnsureExists(ctx context.Context, studentID string) (*model.Student, error) {
	id := identity.NewID()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO students (id, student_id) VALUES ($1, $2)
		 ON CONFLICT (student_id) DO NOTHING`, id, studentID)
	if err != nil {
		return nil, err
	}
	return r.GetByStudentID(ctx, studentID)
}

func (r *studentRepo) BindDevice(ctx context.Context, studentID, deviceID string, at time.Time) (*model.Student, error) {
	// First check current state so we can distinguish "already has a
	// different device" from a racing claim of the same device_id.
	existing, err := r.GetByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if existing.HasDevice() {
		if *existing.DeviceID != deviceID {
			return nil, repository.ErrDeviceBoundElsewhere
		}
		return existing, nil
	}

	_, err = r.pool.Exec(ctx,
		`UPDATE students SET device_id = $1, device_registered_at = $2, updated_at = now()
		 WHERE student_id = $3 AND device_id IS NULL`, deviceID, at, studentID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return r.GetByStudentID(ctx, studentID)
}

func (r *studentRepo) ResetDevice(ctx context.Context, studentID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE students SET device_id = NULL, device_registered_at = NULL, updated_at = now()
		 WHERE student_id = $1`, studentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
