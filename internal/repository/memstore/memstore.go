// Package memstore is an in-memory Repository implementation: a single
// mutex guarding plain Go maps, deep-copying on read/write so
// callers can never mutate shared state through a returned pointer. It
// backs unit tests for the service layer and can run the whole stack
// without Postgres/Redis for local development.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/classattest/attest-backend/internal/identity"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

// Store is the in-memory Repository. The zero value is not usable; use
// New.
type Store struct {
	mu sync.Mutex

	students    map[string]*model.Student // by student_id
	devices     map[string]string         // device_id -> student_id
	attendance  map[string]*model.Attendance
	streams     map[string]*model.RssiStream // key: studentID|classID|sessionDate
	anomalies   map[string]*model.Anomaly    // key: classID|sessionDate|s1|s2
	idempotency map[string]*model.IdempotencyKey
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		students:    make(map[string]*model.Student),
		devices:     make(map[string]string),
		attendance:  make(map[string]*model.Attendance),
		streams:     make(map[string]*model.RssiStream),
		anomalies:   make(map[string]*model.Anomaly),
		idempotency: make(map[string]*model.IdempotencyKey),
	}
}

func (s *Store) Students() repository.StudentRepository        { return (*studentRepo)(s) }
func (s *Store) Attendance() repository.AttendanceRepository   { return (*attendanceRepo)(s) }
func (s *Store) RssiStreams() repository.RssiStreamRepository  { return (*streamRepo)(s) }
func (s *Store) Anomalies() repository.AnomalyRepository       { return (*anomalyRepo)(s) }
func (s *Store) Idempotency() repository.IdempotencyRepository { return (*idempotencyRepo)(s) }

func streamKey(studentID, classID, sessionDate string) string {
	return studentID + "|" + classID + "|" + sessionDate
}

func pairKey(classID, sessionDate, s1, s2 string) string {
	return classID + "|" + sessionDate + "|" + s1 + "|" + s2
}

func idemKey(eventID string, scope model.IdempotencyScope) string {
	return string(scope) + "|" + eventID
}

// ────────────────────────────────────────────────────────────────────────
// Students
// ────────────────────────────────────────────────────────────────────────

type studentRepo Store

func (r *studentRepo) GetByStudentID(_ context.Context, studentID string) (*model.Student, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *studentRepo) GetByDeviceID(_ context.Context, deviceID string) (*model.Student, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	studentID, ok := s.devices[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s.students[studentID]
	return &cp, nil
}

func (r *studentRepo) EnsureExists(_ context.Context, studentID string) (*model.Student, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.students[studentID]; ok {
		cp := *st
		return &cp, nil
	}
	now := time.Now()
	st := &model.Student{
		ID:        identity.NewID(),
		StudentID: studentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.students[studentID] = st
	cp := *st
	return &cp, nil
}

func (r *studentRepo) BindDevice(_ context.Context, studentID, deviceID string, at time.Time) (*model.Student, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if st.HasDevice() {
		if *st.DeviceID != deviceID {
			return nil, repository.ErrDeviceBoundElsewhere
		}
		cp := *st
		return &cp, nil
	}
	if owner, taken := s.devices[deviceID]; taken && owner != studentID {
		return nil, repository.ErrConflict
	}
	d := deviceID
	t := at
	st.DeviceID = &d
	st.DeviceRegisteredAt = &t
	st.UpdatedAt = at
	s.devices[deviceID] = studentID
	cp := *st
	return &cp, nil
}

func (r *studentRepo) ResetDevice(_ context.Context, studentID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return repository.ErrNotFound
	}
	if st.DeviceID != nil {
		delete(s.devices, *st.DeviceID)
	}
	st.DeviceID = nil
	st.DeviceRegisteredAt = nil
	return nil
}

// ────────────────────────────────────────────────────────────────────────
// Attendance
// ────────────────────────────────────────────────────────────────────────

type attendanceRepo Store

func (r *attendanceRepo) Get(_ context.Context, id string) (*model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *attendanceRepo) GetByKey(_ context.Context, studentID, classID, sessionDate string) (*model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attendance {
		if a.StudentID == studentID && a.ClassID == classID && a.SessionDate == sessionDate {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *attendanceRepo) Create(_ context.Context, a *model.Attendance) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.attendance {
		if existing.StudentID == a.StudentID && existing.ClassID == a.ClassID && existing.SessionDate == a.SessionDate {
			return repository.ErrConflict
		}
	}
	if a.ID == "" {
		a.ID = identity.NewID()
	}
	cp := *a
	s.attendance[a.ID] = &cp
	return nil
}

func (r *attendanceRepo) UpdateSnapshot(_ context.Context, id string, rssi, beaconMajor, beaconMinor *int) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.RSSI = rssi
	a.BeaconMajor = beaconMajor
	a.BeaconMinor = beaconMinor
	a.UpdatedAt = time.Now()
	return nil
}

func (r *attendanceRepo) TransitionIfStatus(_ context.Context, id string, expected, next model.AttendanceStatus, mutate func(*model.Attendance)) (*model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.Status != expected {
		return nil, repository.ErrConflict
	}
	a.Status = next
	if mutate != nil {
		mutate(a)
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *attendanceRepo) Force(_ context.Context, id string, next model.AttendanceStatus, mutate func(*model.Attendance)) (*model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendance[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.Status = next
	if mutate != nil {
		mutate(a)
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *attendanceRepo) ListToday(_ context.Context, studentID, sessionDate string) ([]model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attendance
	for _, a := range s.attendance {
		if a.StudentID == studentID && a.SessionDate == sessionDate {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckInTime.Before(out[j].CheckInTime) })
	return out, nil
}

func (r *attendanceRepo) ListProvisionalOlderThan(_ context.Context, cutoff time.Time) ([]model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attendance
	for _, a := range s.attendance {
		if a.Status == model.StatusProvisional && a.CheckInTime.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *attendanceRepo) ListCancelledOlderThan(_ context.Context, cutoff time.Time) ([]model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attendance
	for _, a := range s.attendance {
		if a.Status == model.StatusCancelled && a.CheckInTime.Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *attendanceRepo) DeleteBatch(_ context.Context, ids []string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.attendance, id)
	}
	return nil
}

func (r *attendanceRepo) ListProvisionalByGroup(_ context.Context, classID, sessionDate string) ([]model.Attendance, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Attendance
	for _, a := range s.attendance {
		if a.ClassID == classID && a.SessionDate == sessionDate && a.Status == model.StatusProvisional {
			out = append(out, *a)
		}
	}
	return out, nil
}

// ────────────────────────────────────────────────────────────────────────
// RSSI streams
// ────────────────────────────────────────────────────────────────────────

type streamRepo Store

func (r *streamRepo) GetByKey(_ context.Context, studentID, classID, sessionDate string) (*model.RssiStream, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streams[streamKey(studentID, classID, sessionDate)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	cp.Samples = append([]model.RssiSample(nil), st.Samples...)
	return &cp, nil
}

func (r *streamRepo) AppendSamples(_ context.Context, studentID, classID, sessionDate string, samples []model.RssiSample, clockOffsetMs int64, now time.Time) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := streamKey(studentID, classID, sessionDate)
	st, ok := s.streams[key]
	if !ok {
		st = &model.RssiStream{
			ID:          identity.NewID(),
			StudentID:   studentID,
			ClassID:     classID,
			SessionDate: sessionDate,
			StartedAt:   now,
		}
		s.streams[key] = st
	}
	st.Samples = append(st.Samples, samples...)
	st.SampleCount = len(st.Samples)
	st.CompletedAt = now
	st.LastClockOffsetMs = clockOffsetMs
	return st.SampleCount, nil
}

func (r *streamRepo) ListGroupsWithMinSamples(_ context.Context, minSamples int, classID, sessionDate *string, since time.Time) ([]repository.StreamGroup, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[repository.StreamGroup]bool)
	var out []repository.StreamGroup
	for _, st := range s.streams {
		if st.SampleCount < minSamples {
			continue
		}
		if classID != nil && st.ClassID != *classID {
			continue
		}
		if sessionDate != nil && st.SessionDate != *sessionDate {
			continue
		}
		if classID == nil && sessionDate == nil && st.CompletedAt.Before(since) {
			continue
		}
		g := repository.StreamGroup{ClassID: st.ClassID, SessionDate: st.SessionDate}
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *streamRepo) ListByGroup(_ context.Context, classID, sessionDate string, minSamples int) ([]model.RssiStream, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.RssiStream
	for _, st := range s.streams {
		if st.ClassID == classID && st.SessionDate == sessionDate && st.SampleCount >= minSamples {
			cp := *st
			cp.Samples = append([]model.RssiSample(nil), st.Samples...)
			out = append(out, cp)
		}
	}
	return out, nil
}

// ────────────────────────────────────────────────────────────────────────
// Anomalies
// ────────────────────────────────────────────────────────────────────────

type anomalyRepo Store

func (r *anomalyRepo) Get(_ context.Context, id string) (*model.Anomaly, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.anomalies {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *anomalyRepo) GetByPair(_ context.Context, classID, sessionDate, s1, s2 string) (*model.Anomaly, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anomalies[pairKey(classID, sessionDate, s1, s2)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *anomalyRepo) Upsert(_ context.Context, a *model.Anomaly) (*model.Anomaly, bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(a.ClassID, a.SessionDate, a.StudentID1, a.StudentID2)
	existing, ok := s.anomalies[key]
	if !ok {
		if a.ID == "" {
			a.ID = identity.NewID()
		}
		cp := *a
		s.anomalies[key] = &cp
		return &cp, true, nil
	}
	// Strengthen score/severity/notes only; status is owned by the insert
	// path and by Review, never by a later upsert.
	if a.CorrelationScore > existing.CorrelationScore {
		existing.CorrelationScore = a.CorrelationScore
		existing.Severity = a.Severity
		existing.Notes = a.Notes
	}
	cp := *existing
	return &cp, false, nil
}

func (r *anomalyRepo) UpdateStatus(_ context.Context, id string, status model.AnomalyStatus, notes string, reviewedAt time.Time) (*model.Anomaly, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.anomalies {
		if a.ID == id {
			a.Status = status
			if notes != "" {
				a.Notes = notes
			}
			rv := reviewedAt
			a.ReviewedAt = &rv
			cp := *a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *anomalyRepo) List(_ context.Context, filter model.AnomalyFilter) ([]model.Anomaly, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Anomaly
	for _, a := range s.anomalies {
		if filter.ClassID != nil && a.ClassID != *filter.ClassID {
			continue
		}
		if filter.SessionDate != nil && a.SessionDate != *filter.SessionDate {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *anomalyRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, a := range s.anomalies {
		if a.CreatedAt.Before(cutoff) {
			delete(s.anomalies, k)
			n++
		}
	}
	return n, nil
}

// ────────────────────────────────────────────────────────────────────────
// Idempotency
// ────────────────────────────────────────────────────────────────────────

type idempotencyRepo Store

func (r *idempotencyRepo) Get(_ context.Context, eventID string, scope model.IdempotencyScope) (*model.IdempotencyKey, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.idempotency[idemKey(eventID, scope)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (r *idempotencyRepo) Put(_ context.Context, k *model.IdempotencyKey) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := idemKey(k.EventID, k.Scope)
	if _, ok := s.idempotency[key]; ok {
		return repository.ErrConflict
	}
	cp := *k
	s.idempotency[key] = &cp
	return nil
}

func (r *idempotencyRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, v := range s.idempotency {
		if v.CreatedAt.Before(cutoff) {
			delete(s.idempotency, k)
			n++
		}
	}
	return n, nil
}
