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

type attendanceRepo struct {
	pool *pgxpool.Pool
}

const attendanceColumns = `id, student_id, class_id, session_date, device_id, status,
	check_in_time, confirmed_at, cancelled_at, cancellation_reason, rssi,
	beacon_major, beacon_minor, created_at, updated_at`

func (r *attendanceRepo) scan(row pgx.Row) (*model.Attendance, error) {
	a := &model.Attendance{}
	var sessionDate time.Time
	err := row.Scan(&a.ID, &a.StudentID, &a.ClassID, &sessionDate, &a.DeviceID, &a.Status,
		&a.CheckInTime, &a.ConfirmedAt, &a.CancelledAt, &a.CancellationReason, &a.RSSI,
		&a.BeaconMajor, &a.BeaconMinor, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.SessionDate = sessionDate.Format("2006-01-02")
	return a, nil
}

func (r *attendanceRepo) Get(ctx context.Context, id string) (*model.Attendance, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE id = $1`, id))
}

func (r *attendanceRepo) GetByKey(ctx context.Context, studentID, classID, sessionDate string) (*model.Attendance, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE student_id = $1 AND class_id = $2 AND session_date = $3`,
		studentID, classID, sessionDate))
}

func (r *attendanceRepo) Create(ctx context.Context, a *model.Attendance) error {
	if a.ID == "" {
		a.ID = identity.NewID()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attendance (id, student_id, class_id, session_date, device_id, status,
			check_in_time, rssi, beacon_major, beacon_minor)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at`,
		a.ID, a.StudentID, a.ClassID, a.SessionDate, a.DeviceID, a.Status,
		a.CheckInTime, a.RSSI, a.BeaconMajor, a.BeaconMinor,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

func (r *attendanceRepo) UpdateSnapshot(ctx context.Context, id string, rssi, beaconMajor, beaconMinor *int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attendance SET rssi = $1, beacon_major = $2, beacon_minor = $3, updated_at = now()
		 WHERE id = $4`, rssi, beaconMajor, beaconMinor, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// TransitionIfStatus performs a conditional `UPDATE ... WHERE status =
// expected`: the CAS happens inside a single round trip to serialize
// racing transitions on the same row.
func (r *attendanceRepo) TransitionIfStatus(ctx context.Context, id string, expected, next model.AttendanceStatus, mutate func(*model.Attendance)) (*model.Attendance, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != expected {
		return nil, repository.ErrConflict
	}
	if mutate != nil {
		mutate(current)
	}
	current.Status = next
	tag, err := r.pool.Exec(ctx,
		`UPDATE attendance SET status = $1, confirmed_at = $2, cancelled_at = $3,
			cancellation_reason = $4, updated_at = now()
		 WHERE id = $5 AND status = $6`,
		current.Status, current.ConfirmedAt, current.CancelledAt, current.CancellationReason,
		id, expected)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrConflict
	}
	return r.Get(ctx, id)
}

// Force bypasses the status precondition; used only by the proxy-review
// reversal path.
func (r *attendanceRepo) Force(ctx context.Context, id string, next model.AttendanceStatus, mutate func(*model.Attendance)) (*model.Attendance, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(current)
	}
	current.Status = next
	_, err = r.pool.Exec(ctx,
		`UPDATE attendance SET status = $1, confirmed_at = $2, cancelled_at = $3,
			cancellation_reason = $4, updated_at = now()
		 WHERE id = $5`,
		current.Status, current.ConfirmedAt, current.CancelledAt, current.CancellationReason, id)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *attendanceRepo) ListToday(ctx context.Context, studentID, sessionDate string) ([]model.Attendance, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE student_id = $1 AND session_date = $2 ORDER BY check_in_time`,
		studentID, sessionDate)
}

func (r *attendanceRepo) ListProvisionalOlderThan(ctx context.Context, cutoff time.Time) ([]model.Attendance, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE status = $1 AND check_in_time < $2`, model.StatusProvisional, cutoff)
}

func (r *attendanceRepo) ListCancelledOlderThan(ctx context.Context, cutoff time.Time) ([]model.Attendance, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE status = $1 AND check_in_time < $2`, model.StatusCancelled, cutoff)
}

func (r *attendanceRepo) ListProvisionalByGroup(ctx context.Context, classID, sessionDate string) ([]model.Attendance, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE class_id = $1 AND session_date = $2 AND status = $3`,
		classID, sessionDate, model.StatusProvisional)
}

func (r *attendanceRepo) list(ctx context.Context, query string, args ...interface{}) ([]model.Attendance, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *attendanceRepo) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM attendance WHERE id = ANY($1)`, ids)
	return err
}
