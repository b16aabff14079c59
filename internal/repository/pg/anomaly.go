package pg

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classattest/attest-backend/internal/identity"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

type anomalyRepo struct {
	pool *pgxpool.Pool
}

const anomalyColumns = `id, class_id, session_date, student_id_1, student_id_2,
	correlation_score, severity, status, notes, created_at, reviewed_at`

func (r *anomalyRepo) scan(row pgx.Row) (*model.Anomaly, error) {
	a := &model.Anomaly{}
	var sd time.Time
	err := row.Scan(&a.ID, &a.ClassID, &sd, &a.StudentID1, &a.StudentID2,
		&a.CorrelationScore, &a.Severity, &a.Status, &a.Notes, &a.CreatedAt, &a.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.SessionDate = sd.Format("2006-01-02")
	return a, nil
}

func (r *anomalyRepo) Get(ctx context.Context, id string) (*model.Anomaly, error) {
	return r.scan(r.pool.QueryRow(ctx, `SELECT `+anomalyColumns+` FROM anomalies WHERE id = $1`, id))
}

func (r *anomalyRepo) GetByPair(ctx context.Context, classID, sessionDate, s1, s2 string) (*model.Anomaly, error) {
	return r.scan(r.pool.QueryRow(ctx,
		`SELECT `+anomalyColumns+` FROM anomalies
		 WHERE class_id = $1 AND session_date = $2 AND student_id_1 = $3 AND student_id_2 = $4`,
		classID, sessionDate, s1, s2))
}

// Upsert applies the strengthen-on-higher-score rule with a
// single statement: insert, or on conflict raise the score/severity/notes
// only if the new score is higher. The update path never touches status;
// the auto-promotion rule applies only to the initial insert, so a
// pending anomaly stays pending until a reviewer acts on it.
func (r *anomalyRepo) Upsert(ctx context.Context, a *model.Anomaly) (*model.Anomaly, bool, error) {
	if a.ID == "" {
		a.ID = identity.NewID()
	}
	var created bool
	err := r.pool.QueryRow(ctx,
		`INSERT INTO anomalies (id, class_id, session_date, student_id_1, student_id_2,
			correlation_score, severity, status, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (class_id, session_date, student_id_1, student_id_2) DO UPDATE SET
			correlation_score = CASE WHEN EXCLUDED.correlation_score > anomalies.correlation_score
				THEN EXCLUDED.correlation_score ELSE anomalies.correlation_score END,
			severity = CASE WHEN EXCLUDED.correlation_score > anomalies.correlation_score
				THEN EXCLUDED.severity ELSE anomalies.severity END,
			notes = CASE WHEN EXCLUDED.correlation_score > anomalies.correlation_score
				THEN EXCLUDED.notes ELSE anomalies.notes END
		 RETURNING (xmax = 0)`,
		a.ID, a.ClassID, a.SessionDate, a.StudentID1, a.StudentID2,
		a.CorrelationScore, a.Severity, a.Status, a.Notes,
	).Scan(&created)
	if err != nil {
		return nil, false, err
	}
	result, err := r.GetByPair(ctx, a.ClassID, a.SessionDate, a.StudentID1, a.StudentID2)
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (r *anomalyRepo) UpdateStatus(ctx context.Context, id string, status model.AnomalyStatus, notes string, reviewedAt time.Time) (*model.Anomaly, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE anomalies SET status = $1,
			notes = CASE WHEN $2 <> '' THEN $2 ELSE notes END,
			reviewed_at = $3
		 WHERE id = $4`, status, notes, reviewedAt, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, repository.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *anomalyRepo) List(ctx context.Context, filter model.AnomalyFilter) ([]model.Anomaly, error) {
	query := `SELECT ` + anomalyColumns + ` FROM anomalies WHERE true`
	var args []interface{}
	if filter.ClassID != nil {
		args = append(args, *filter.ClassID)
		query += ` AND class_id = $` + strconv.Itoa(len(args))
	}
	if filter.SessionDate != nil {
		args = append(args, *filter.SessionDate)
		query += ` AND session_date = $` + strconv.Itoa(len(args))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Anomaly
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *anomalyRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM anomalies WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
