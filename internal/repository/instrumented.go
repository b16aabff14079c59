package repository

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/classattest/attest-backend/internal/model"
)

// Repository-level metrics observed by the Instrumented decorator, which
// wraps any concrete Repository to record op count and latency without
// the backend (memstore or pg) needing to know about metrics at all.
var (
	repoOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attest_repository_ops_total",
			Help: "Total repository operations by entity, op, and result.",
		},
		[]string{"entity", "op", "result"},
	)
	repoLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attest_repository_op_seconds",
			Help:    "Repository operation latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "op"},
	)
)

func observe(entity, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	repoOps.WithLabelValues(entity, op, result).Inc()
	repoLatency.WithLabelValues(entity, op).Observe(time.Since(start).Seconds())
}

// Instrumented wraps a Repository to record Prometheus metrics on every
// call, without altering behavior or error semantics.
type Instrumented struct {
	inner Repository
}

// NewInstrumented wraps inner with metrics observation.
func NewInstrumented(inner Repository) Repository {
	return &Instrumented{inner: inner}
}

func (i *Instrumented) Students() StudentRepository { return &instrumentedStudents{i.inner.Students()} }
func (i *Instrumented) Attendance() AttendanceRepository {
	return &instrumentedAttendance{i.inner.Attendance()}
}
func (i *Instrumented) RssiStreams() RssiStreamRepository {
	return &instrumentedStreams{i.inner.RssiStreams()}
}
func (i *Instrumented) Anomalies() AnomalyRepository {
	return &instrumentedAnomalies{i.inner.Anomalies()}
}
func (i *Instrumented) Idempotency() IdempotencyRepository {
	return &instrumentedIdempotency{i.inner.Idempotency()}
}

type instrumentedStudents struct{ inner StudentRepository }

func (s *instrumentedStudents) GetByStudentID(ctx context.Context, studentID string) (res *model.Student, err error) {
	start := time.Now()
	defer func() { observe("student", "get_by_student_id", start, err) }()
	return s.inner.GetByStudentID(ctx, studentID)
}

func (s *instrumentedStudents) GetByDeviceID(ctx context.Context, deviceID string) (res *model.Student, err error) {
	start := time.Now()
	defer func() { observe("student", "get_by_device_id", start, err) }()
	return s.inner.GetByDeviceID(ctx, deviceID)
}

func (s *instrumentedStudents) EnsureExists(ctx context.Context, studentID string) (res *model.Student, err error) {
	start := time.Now()
	defer func() { observe("student", "ensure_exists", start, err) }()
	return s.inner.EnsureExists(ctx, studentID)
}

func (s *instrumentedStudents) BindDevice(ctx context.Context, studentID, deviceID string, at time.Time) (res *model.Student, err error) {
	start := time.Now()
	defer func() { observe("student", "bind_device", start, err) }()
	return s.inner.BindDevice(ctx, studentID, deviceID, at)
}

func (s *instrumentedStudents) ResetDevice(ctx context.Context, studentID string) (err error) {
	start := time.Now()
	defer func() { observe("student", "reset_device", start, err) }()
	return s.inner.ResetDevice(ctx, studentID)
}

type instrumentedAttendance struct{ inner AttendanceRepository }

func (a *instrumentedAttendance) Get(ctx context.Context, id string) (res *model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "get", start, err) }()
	return a.inner.Get(ctx, id)
}

func (a *instrumentedAttendance) GetByKey(ctx context.Context, studentID, classID, sessionDate string) (res *model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "get_by_key", start, err) }()
	return a.inner.GetByKey(ctx, studentID, classID, sessionDate)
}

func (a *instrumentedAttendance) Create(ctx context.Context, rec *model.Attendance) (err error) {
	start := time.Now()
	defer func() { observe("attendance", "create", start, err) }()
	return a.inner.Create(ctx, rec)
}

func (a *instrumentedAttendance) UpdateSnapshot(ctx context.Context, id string, rssi, beaconMajor, beaconMinor *int) (err error) {
	start := time.Now()
	defer func() { observe("attendance", "update_snapshot", start, err) }()
	return a.inner.UpdateSnapshot(ctx, id, rssi, beaconMajor, beaconMinor)
}

func (a *instrumentedAttendance) TransitionIfStatus(ctx context.Context, id string, expected, next model.AttendanceStatus, mutate func(*model.Attendance)) (res *model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "transition_if_status", start, err) }()
	return a.inner.TransitionIfStatus(ctx, id, expected, next, mutate)
}

func (a *instrumentedAttendance) Force(ctx context.Context, id string, next model.AttendanceStatus, mutate func(*model.Attendance)) (res *model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "force", start, err) }()
	return a.inner.Force(ctx, id, next, mutate)
}

func (a *instrumentedAttendance) ListToday(ctx context.Context, studentID, sessionDate string) (res []model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "list_today", start, err) }()
	return a.inner.ListToday(ctx, studentID, sessionDate)
}

func (a *instrumentedAttendance) ListProvisionalOlderThan(ctx context.Context, cutoff time.Time) (res []model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "list_provisional_older_than", start, err) }()
	return a.inner.ListProvisionalOlderThan(ctx, cutoff)
}

func (a *instrumentedAttendance) ListCancelledOlderThan(ctx context.Context, cutoff time.Time) (res []model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "list_cancelled_older_than", start, err) }()
	return a.inner.ListCancelledOlderThan(ctx, cutoff)
}

func (a *instrumentedAttendance) DeleteBatch(ctx context.Context, ids []string) (err error) {
	start := time.Now()
	defer func() { observe("attendance", "delete_batch", start, err) }()
	return a.inner.DeleteBatch(ctx, ids)
}

func (a *instrumentedAttendance) ListProvisionalByGroup(ctx context.Context, classID, sessionDate string) (res []model.Attendance, err error) {
	start := time.Now()
	defer func() { observe("attendance", "list_provisional_by_group", start, err) }()
	return a.inner.ListProvisionalByGroup(ctx, classID, sessionDate)
}

type instrumentedStreams struct{ inner RssiStreamRepository }

func (s *instrumentedStreams) GetByKey(ctx context.Context, studentID, classID, sessionDate string) (res *model.RssiStream, err error) {
	start := time.Now()
	defer func() { observe("rssi_stream", "get_by_key", start, err) }()
	return s.inner.GetByKey(ctx, studentID, classID, sessionDate)
}

func (s *instrumentedStreams) AppendSamples(ctx context.Context, studentID, classID, sessionDate string, samples []model.RssiSample, clockOffsetMs int64, now time.Time) (count int, err error) {
	start := time.Now()
	defer func() { observe("rssi_stream", "append_samples", start, err) }()
	return s.inner.AppendSamples(ctx, studentID, classID, sessionDate, samples, clockOffsetMs, now)
}

func (s *instrumentedStreams) ListGroupsWithMinSamples(ctx context.Context, minSamples int, classID, sessionDate *string, since time.Time) (res []StreamGroup, err error) {
	start := time.Now()
	defer func() { observe("rssi_stream", "list_groups_with_min_samples", start, err) }()
	return s.inner.ListGroupsWithMinSamples(ctx, minSamples, classID, sessionDate, since)
}

func (s *instrumentedStreams) ListByGroup(ctx context.Context, classID, sessionDate string, minSamples int) (res []model.RssiStream, err error) {
	start := time.Now()
	defer func() { observe("rssi_stream", "list_by_group", start, err) }()
	return s.inner.ListByGroup(ctx, classID, sessionDate, minSamples)
}

type instrumentedAnomalies struct{ inner AnomalyRepository }

func (a *instrumentedAnomalies) Get(ctx context.Context, id string) (res *model.Anomaly, err error) {
	start := time.Now()
	defer func() { observe("anomaly", "get", start, err) }()
	return a.inner.Get(ctx, id)
}

func (a *instrumentedAnomalies) GetByPair(ctx context.Context, classID, sessionDate, s1, s2 string) (res *model.Anomaly, err error) {
	start := time.Now()
	defer func() { observe("anomaly", "get_by_pair", start, err) }()
	return a.inner.GetByPair(ctx, classID, sessionDate, s1, s2)
}

func (a *instrumentedAnomalies) Upsert(ctx context.Context, rec *model.Anomaly) (res *model.Anomaly, created bool, err error) {
	start := time.Now()
	defer func() { observe("anomaly", "upsert", start, err) }()
	return a.inner.Upsert(ctx, rec)
}

func (a *instrumentedAnomalies) UpdateStatus(ctx context.Context, id string, status model.AnomalyStatus, notes string, reviewedAt time.Time) (res *model.Anomaly, err error) {
	start := time.Now()
	defer func() { observe("anomaly", "update_status", start, err) }()
	return a.inner.UpdateStatus(ctx, id, status, notes, reviewedAt)
}

func (a *instrumentedAnomalies) List(ctx context.Context, filter model.AnomalyFilter) (res []model.Anomaly, err error) {
	start := time.Now()
	defer func() { observe("anomaly", "list", start, err) }()
	return a.inner.List(ctx, filter)
}

func (a *instrumentedAnomalies) DeleteOlderThan(ctx context.Context, cutoff time.Time) (n int, err error) {
	start := time.Now()
	defer func() { observe("anomaly", "delete_older_than", start, err) }()
	return a.inner.DeleteOlderThan(ctx, cutoff)
}

type instrumentedIdempotency struct{ inner IdempotencyRepository }

func (k *instrumentedIdempotency) Get(ctx context.Context, eventID string, scope model.IdempotencyScope) (res *model.IdempotencyKey, err error) {
	start := time.Now()
	defer func() { observe("idempotency", "get", start, err) }()
	return k.inner.Get(ctx, eventID, scope)
}

func (k *instrumentedIdempotency) Put(ctx context.Context, rec *model.IdempotencyKey) (err error) {
	start := time.Now()
	defer func() { observe("idempotency", "put", start, err) }()
	return k.inner.Put(ctx, rec)
}

func (k *instrumentedIdempotency) DeleteOlderThan(ctx context.Context, cutoff time.Time) (n int, err error) {
	start := time.Now()
	defer func() { observe("idempotency", "delete_older_than", start, err) }()
	return k.inner.DeleteOlderThan(ctx, cutoff)
}
