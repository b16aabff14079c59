package repository

import (
	"context"
	"time"

	"github.com/classattest/attest-backend/internal/model"
)

// Retrying is a decorator that bounds every repository call with a
// timeout and retries it once after a short backoff when the backend
// reports a transient failure. What counts as transient is the
// backend's business — pg exports its own classifier — so this package
// stays implementation-free. Retried writes are safe because every
// insert in the contract is uniqueness-guarded: a replayed insert that
// already landed surfaces as ErrConflict, which callers fold into a
// re-read.
type Retrying struct {
	inner       Repository
	isTransient func(error) bool
	timeout     time.Duration
	backoff     time.Duration
}

// NewRetrying wraps inner. isTransient may be nil, in which case nothing
// is retried and only the per-call timeout applies.
func NewRetrying(inner Repository, isTransient func(error) bool, timeout, backoff time.Duration) *Retrying {
	if isTransient == nil {
		isTransient = func(error) bool { return false }
	}
	return &Retrying{inner: inner, isTransient: isTransient, timeout: timeout, backoff: backoff}
}

func (r *Retrying) Students() StudentRepository        { return &retryingStudents{r} }
func (r *Retrying) Attendance() AttendanceRepository   { return &retryingAttendance{r} }
func (r *Retrying) RssiStreams() RssiStreamRepository  { return &retryingStreams{r} }
func (r *Retrying) Anomalies() AnomalyRepository       { return &retryingAnomalies{r} }
func (r *Retrying) Idempotency() IdempotencyRepository { return &retryingIdempotency{r} }

// call runs fn with the per-call timeout, once more after backoff if the
// first attempt failed transiently. The parent ctx governs the whole
// exchange: if it is already done, the retry is abandoned.
func (r *Retrying) call(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := func() error {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return fn(cctx)
	}
	err := attempt()
	if err == nil || !r.isTransient(err) || ctx.Err() != nil {
		return err
	}
	select {
	case <-time.After(r.backoff):
	case <-ctx.Done():
		return err
	}
	return attempt()
}

type retryingStudents struct{ r *Retrying }

func (s *retryingStudents) GetByStudentID(ctx context.Context, studentID string) (res *model.Student, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.Students().GetByStudentID(ctx, studentID)
		return err
	})
	return res, err
}

func (s *retryingStudents) GetByDeviceID(ctx context.Context, deviceID string) (res *model.Student, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.Students().GetByDeviceID(ctx, deviceID)
		return err
	})
	return res, err
}

func (s *retryingStudents) EnsureExists(ctx context.Context, studentID string) (res *model.Student, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.Students().EnsureExists(ctx, studentID)
		return err
	})
	return res, err
}

func (s *retryingStudents) BindDevice(ctx context.Context, studentID, deviceID string, at time.Time) (res *model.Student, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.Students().BindDevice(ctx, studentID, deviceID, at)
		return err
	})
	return res, err
}

func (s *retryingStudents) ResetDevice(ctx context.Context, studentID string) error {
	return s.r.call(ctx, func(ctx context.Context) error {
		return s.r.inner.Students().ResetDevice(ctx, studentID)
	})
}

type retryingAttendance struct{ r *Retrying }

func (a *retryingAttendance) Get(ctx context.Context, id string) (res *model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().Get(ctx, id)
		return err
	})
	return res, err
}

func (a *retryingAttendance) GetByKey(ctx context.Context, studentID, classID, sessionDate string) (res *model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().GetByKey(ctx, studentID, classID, sessionDate)
		return err
	})
	return res, err
}

func (a *retryingAttendance) Create(ctx context.Context, rec *model.Attendance) error {
	return a.r.call(ctx, func(ctx context.Context) error {
		return a.r.inner.Attendance().Create(ctx, rec)
	})
}

func (a *retryingAttendance) UpdateSnapshot(ctx context.Context, id string, rssi, beaconMajor, beaconMinor *int) error {
	return a.r.call(ctx, func(ctx context.Context) error {
		return a.r.inner.Attendance().UpdateSnapshot(ctx, id, rssi, beaconMajor, beaconMinor)
	})
}

func (a *retryingAttendance) TransitionIfStatus(ctx context.Context, id string, expected, next model.AttendanceStatus, mutate func(*model.Attendance)) (res *model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().TransitionIfStatus(ctx, id, expected, next, mutate)
		return err
	})
	return res, err
}

func (a *retryingAttendance) Force(ctx context.Context, id string, next model.AttendanceStatus, mutate func(*model.Attendance)) (res *model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().Force(ctx, id, next, mutate)
		return err
	})
	return res, err
}

func (a *retryingAttendance) ListToday(ctx context.Context, studentID, sessionDate string) (res []model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().ListToday(ctx, studentID, sessionDate)
		return err
	})
	return res, err
}

func (a *retryingAttendance) ListProvisionalOlderThan(ctx context.Context, cutoff time.Time) (res []model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().ListProvisionalOlderThan(ctx, cutoff)
		return err
	})
	return res, err
}

func (a *retryingAttendance) ListCancelledOlderThan(ctx context.Context, cutoff time.Time) (res []model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().ListCancelledOlderThan(ctx, cutoff)
		return err
	})
	return res, err
}

func (a *retryingAttendance) DeleteBatch(ctx context.Context, ids []string) error {
	return a.r.call(ctx, func(ctx context.Context) error {
		return a.r.inner.Attendance().DeleteBatch(ctx, ids)
	})
}

func (a *retryingAttendance) ListProvisionalByGroup(ctx context.Context, classID, sessionDate string) (res []model.Attendance, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Attendance().ListProvisionalByGroup(ctx, classID, sessionDate)
		return err
	})
	return res, err
}

type retryingStreams struct{ r *Retrying }

func (s *retryingStreams) GetByKey(ctx context.Context, studentID, classID, sessionDate string) (res *model.RssiStream, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.RssiStreams().GetByKey(ctx, studentID, classID, sessionDate)
		return err
	})
	return res, err
}

func (s *retryingStreams) AppendSamples(ctx context.Context, studentID, classID, sessionDate string, samples []model.RssiSample, clockOffsetMs int64, now time.Time) (count int, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		count, err = s.r.inner.RssiStreams().AppendSamples(ctx, studentID, classID, sessionDate, samples, clockOffsetMs, now)
		return err
	})
	return count, err
}

func (s *retryingStreams) ListGroupsWithMinSamples(ctx context.Context, minSamples int, classID, sessionDate *string, since time.Time) (res []StreamGroup, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.RssiStreams().ListGroupsWithMinSamples(ctx, minSamples, classID, sessionDate, since)
		return err
	})
	return res, err
}

func (s *retryingStreams) ListByGroup(ctx context.Context, classID, sessionDate string, minSamples int) (res []model.RssiStream, err error) {
	err = s.r.call(ctx, func(ctx context.Context) error {
		res, err = s.r.inner.RssiStreams().ListByGroup(ctx, classID, sessionDate, minSamples)
		return err
	})
	return res, err
}

type retryingAnomalies struct{ r *Retrying }

func (a *retryingAnomalies) Get(ctx context.Context, id string) (res *model.Anomaly, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Anomalies().Get(ctx, id)
		return err
	})
	return res, err
}

func (a *retryingAnomalies) GetByPair(ctx context.Context, classID, sessionDate, s1, s2 string) (res *model.Anomaly, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Anomalies().GetByPair(ctx, classID, sessionDate, s1, s2)
		return err
	})
	return res, err
}

func (a *retryingAnomalies) Upsert(ctx context.Context, rec *model.Anomaly) (res *model.Anomaly, created bool, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, created, err = a.r.inner.Anomalies().Upsert(ctx, rec)
		return err
	})
	return res, created, err
}

func (a *retryingAnomalies) UpdateStatus(ctx context.Context, id string, status model.AnomalyStatus, notes string, reviewedAt time.Time) (res *model.Anomaly, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Anomalies().UpdateStatus(ctx, id, status, notes, reviewedAt)
		return err
	})
	return res, err
}

func (a *retryingAnomalies) List(ctx context.Context, filter model.AnomalyFilter) (res []model.Anomaly, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		res, err = a.r.inner.Anomalies().List(ctx, filter)
		return err
	})
	return res, err
}

func (a *retryingAnomalies) DeleteOlderThan(ctx context.Context, cutoff time.Time) (n int, err error) {
	err = a.r.call(ctx, func(ctx context.Context) error {
		n, err = a.r.inner.Anomalies().DeleteOlderThan(ctx, cutoff)
		return err
	})
	return n, err
}

type retryingIdempotency struct{ r *Retrying }

func (k *retryingIdempotency) Get(ctx context.Context, eventID string, scope model.IdempotencyScope) (res *model.IdempotencyKey, err error) {
	err = k.r.call(ctx, func(ctx context.Context) error {
		res, err = k.r.inner.Idempotency().Get(ctx, eventID, scope)
		return err
	})
	return res, err
}

func (k *retryingIdempotency) Put(ctx context.Context, rec *model.IdempotencyKey) error {
	return k.r.call(ctx, func(ctx context.Context) error {
		return k.r.inner.Idempotency().Put(ctx, rec)
	})
}

func (k *retryingIdempotency) DeleteOlderThan(ctx context.Context, cutoff time.Time) (n int, err error) {
	err = k.r.call(ctx, func(ctx context.Context) error {
		n, err = k.r.inner.Idempotency().DeleteOlderThan(ctx, cutoff)
		return err
	})
	return n, err
}
