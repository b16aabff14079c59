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

type streamRepo struct {
	pool *pgxpool.Pool
}

func (r *streamRepo) GetByKey(ctx context.Context, studentID, classID, sessionDate string) (*model.RssiStream, error) {
	st := &model.RssiStream{}
	var sd time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, student_id, class_id, session_date, started_at, completed_at,
			sample_count, last_clock_offset_ms
		 FROM rssi_streams WHERE student_id = $1 AND class_id = $2 AND session_date = $3`,
		studentID, classID, sessionDate,
	).Scan(&st.ID, &st.StudentID, &st.ClassID, &sd, &st.StartedAt, &st.CompletedAt,
		&st.SampleCount, &st.LastClockOffsetMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.SessionDate = sd.Format("2006-01-02")

	rows, err := r.pool.Query(ctx,
		`SELECT sample_timestamp, rssi, original_timestamp, clock_offset_ms
		 FROM rssi_samples WHERE stream_id = $1 ORDER BY sample_timestamp`, st.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.RssiSample
		if err := rows.Scan(&s.Timestamp, &s.RSSI, &s.OriginalTimestamp, &s.ClockOffsetMs); err != nil {
			return nil, err
		}
		st.Samples = append(st.Samples, s)
	}
	return st, rows.Err()
}

// AppendSamples upserts the day's stream row and bulk-inserts the new
// samples in a single statement via UNNEST, avoiding a hand-built VALUES
// placeholder list.
func (r *streamRepo) AppendSamples(ctx context.Context, studentID, classID, sessionDate string, samples []model.RssiSample, clockOffsetMs int64, now time.Time) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var streamID string
	err = tx.QueryRow(ctx,
		`INSERT INTO rssi_streams (id, student_id, class_id, session_date, started_at,
			completed_at, sample_count, last_clock_offset_ms)
		 VALUES ($1, $2, $3, $4, $5, $5, 0, $6)
		 ON CONFLICT (student_id, class_id, session_date)
		 DO UPDATE SET completed_at = $5, last_clock_offset_ms = $6
		 RETURNING id`,
		identity.NewID(), studentID, classID, sessionDate, now, clockOffsetMs,
	).Scan(&streamID)
	if err != nil {
		return 0, err
	}

	timestamps := make([]time.Time, len(samples))
	rssis := make([]int, len(samples))
	originals := make([]*time.Time, len(samples))
	offsets := make([]*int64, len(samples))
	for i, s := range samples {
		timestamps[i] = s.Timestamp
		rssis[i] = s.RSSI
		originals[i] = s.OriginalTimestamp
		offsets[i] = s.ClockOffsetMs
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO rssi_samples (stream_id, sample_timestamp, rssi, original_timestamp, clock_offset_ms)
		 SELECT $1, t, r, o, c FROM UNNEST($2::timestamptz[], $3::int[], $4::timestamptz[], $5::bigint[])
			AS u(t, r, o, c)`,
		streamID, timestamps, rssis, originals, offsets)
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRow(ctx,
		`UPDATE rssi_streams SET sample_count = (SELECT count(*) FROM rssi_samples WHERE stream_id = $1)
		 WHERE id = $1 RETURNING sample_count`, streamID).Scan(&count)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *streamRepo) ListGroupsWithMinSamples(ctx context.Context, minSamples int, classID, sessionDate *string, since time.Time) ([]repository.StreamGroup, error) {
	query := `SELECT DISTINCT class_id, session_date FROM rssi_streams WHERE sample_count >= $1`
	args := []interface{}{minSamples}
	idx := 2
	if classID != nil {
		query += " AND class_id = $" + strconv.Itoa(idx)
		args = append(args, *classID)
		idx++
	}
	if sessionDate != nil {
		query += " AND session_date = $" + strconv.Itoa(idx)
		args = append(args, *sessionDate)
		idx++
	}
	if classID == nil && sessionDate == nil {
		query += " AND completed_at >= $" + strconv.Itoa(idx)
		args = append(args, since)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.StreamGroup
	for rows.Next() {
		var g repository.StreamGroup
		var sd time.Time
		if err := rows.Scan(&g.ClassID, &sd); err != nil {
			return nil, err
		}
		g.SessionDate = sd.Format("2006-01-02")
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *streamRepo) ListByGroup(ctx context.Context, classID, sessionDate string, minSamples int) ([]model.RssiStream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, student_id, class_id, session_date, started_at, completed_at,
			sample_count, last_clock_offset_ms
		 FROM rssi_streams WHERE class_id = $1 AND session_date = $2 AND sample_count >= $3`,
		classID, sessionDate, minSamples)
	if err != nil {
		return nil, err
	}
	var streams []model.RssiStream
	for rows.Next() {
		var st model.RssiStream
		var sd time.Time
		if err := rows.Scan(&st.ID, &st.StudentID, &st.ClassID, &sd, &st.StartedAt,
			&st.CompletedAt, &st.SampleCount, &st.LastClockOffsetMs); err != nil {
			rows.Close()
			return nil, err
		}
		st.SessionDate = sd.Format("2006-01-02")
		streams = append(streams, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range streams {
		sampleRows, err := r.pool.Query(ctx,
			`SELECT sample_timestamp, rssi, original_timestamp, clock_offset_ms
			 FROM rssi_samples WHERE stream_id = $1 ORDER BY sample_timestamp`, streams[i].ID)
		if err != nil {
			return nil, err
		}
		for sampleRows.Next() {
			var s model.RssiSample
			if err := sampleRows.Scan(&s.Timestamp, &s.RSSI, &s.OriginalTimestamp, &s.ClockOffsetMs); err != nil {
				sampleRows.Close()
				return nil, err
			}
			streams[i].Samples = append(streams[i].Samples, s)
		}
		sampleRows.Close()
		if err := sampleRows.Err(); err != nil {
			return nil, err
		}
	}
	return streams, nil
}
