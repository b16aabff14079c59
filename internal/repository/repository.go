// Package repository is the implementation-free storage contract for the
// core. It is deliberately narrow: conditional writes and range queries
// only, no query-builder leakage into callers.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/classattest/attest-backend/internal/model"
)

// ErrNotFound is returned by any Get when no row matches.
var ErrNotFound = errors.New("repository: not found")

// ErrConflict is returned when a conditional write's precondition no
// longer holds (e.g. a racing insert already created the uniqueness-
// constrained row, or a status CAS target has moved). Callers fold this
// into a re-read rather than surfacing it to the client.
var ErrConflict = errors.New("repository: conflict")

// ErrDeviceBoundElsewhere is returned by BindDevice when the device_id is
// already bound to a different student.
var ErrDeviceBoundElsewhere = errors.New("repository: device bound to a different student")

// StudentRepository owns the Student entity, including device binding.
type StudentRepository interface {
	// GetByStudentID returns the student by external student_id, or
	// ErrNotFound.
	GetByStudentID(ctx context.Context, studentID string) (*model.Student, error)
	// GetByDeviceID returns the student currently holding deviceID, or
	// ErrNotFound.
	GetByDeviceID(ctx context.Context, deviceID string) (*model.Student, error)
	// EnsureExists creates the student record if absent; a no-op
	// otherwise. Used for lazy creation at first check-in.
	EnsureExists(ctx context.Context, studentID string) (*model.Student, error)
	// BindDevice atomically sets deviceID on the student if it has no
	// device bound yet. Returns ErrDeviceBoundElsewhere if the student
	// already has a different device, and ErrConflict if deviceID is
	// concurrently claimed by a different student.
	BindDevice(ctx context.Context, studentID, deviceID string, at time.Time) (*model.Student, error)
	// ResetDevice clears the student's device binding (admin operation).
	ResetDevice(ctx context.Context, studentID string) error
}

// AttendanceRepository owns the Attendance entity and its state machine's
// persisted transitions.
type AttendanceRepository interface {
	// Get returns an attendance record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Attendance, error)
	// GetByKey returns the (student,class,day) attendance record, or
	// ErrNotFound.
	GetByKey(ctx context.Context, studentID, classID, sessionDate string) (*model.Attendance, error)
	// Create inserts a new provisional attendance record. Returns
	// ErrConflict if a record for this (student,class,day) already
	// exists — callers must fold into a read of the existing record.
	Create(ctx context.Context, a *model.Attendance) error
	// UpdateSnapshot overwrites the rssi/beacon snapshot fields of an
	// existing provisional record (repeated check-in).
	UpdateSnapshot(ctx context.Context, id string, rssi, beaconMajor, beaconMinor *int) error
	// TransitionIfStatus performs a conditional `UPDATE ... WHERE status
	// = expected` and returns ErrConflict if the record's
	// status had already moved. mutate is applied to the in-memory copy
	// before the write so callers can set ConfirmedAt/CancelledAt/etc.
	TransitionIfStatus(ctx context.Context, id string, expected, next model.AttendanceStatus, mutate func(*model.Attendance)) (*model.Attendance, error)
	// Force sets the record's status unconditionally, bypassing the
	// expected-status check. Used by the proxy-review reversal path
	// which must flip confirmed -> cancelled.
	Force(ctx context.Context, id string, next model.AttendanceStatus, mutate func(*model.Attendance)) (*model.Attendance, error)
	// ListToday returns every attendance record for studentID whose
	// session_date equals sessionDate.
	ListToday(ctx context.Context, studentID, sessionDate string) ([]model.Attendance, error)
	// ListProvisionalOlderThan returns provisional records whose
	// check_in_time is older than cutoff (janitor expiry scan).
	ListProvisionalOlderThan(ctx context.Context, cutoff time.Time) ([]model.Attendance, error)
	// ListCancelledOlderThan returns cancelled records whose
	// check_in_time is older than cutoff (janitor pruning scan).
	ListCancelledOlderThan(ctx context.Context, cutoff time.Time) ([]model.Attendance, error)
	// DeleteBatch removes the given attendance ids.
	DeleteBatch(ctx context.Context, ids []string) error
	// ListProvisionalByGroup returns provisional records for (class,day),
	// used by the analyzer to close the loop after a correlation pass.
	ListProvisionalByGroup(ctx context.Context, classID, sessionDate string) ([]model.Attendance, error)
}

// StreamGroup identifies one (class, session_date) grouping the analyzer
// sweeps.
type StreamGroup struct {
	ClassID     string
	SessionDate string
}

// RssiStreamRepository owns the RssiStream entity.
type RssiStreamRepository interface {
	// GetByKey returns the (student,class,day) stream, or ErrNotFound.
	GetByKey(ctx context.Context, studentID, classID, sessionDate string) (*model.RssiStream, error)
	// AppendSamples appends samples to the (student,class,day) stream,
	// creating it if absent, and returns the resulting sample_count.
	AppendSamples(ctx context.Context, studentID, classID, sessionDate string, samples []model.RssiSample, clockOffsetMs int64, now time.Time) (sampleCount int, err error)
	// ListGroupsWithMinSamples returns the distinct (class,day) groups
	// that have at least one stream with sample_count >= minSamples,
	// filtered optionally by class/date and otherwise bounded to the
	// last `since` window.
	ListGroupsWithMinSamples(ctx context.Context, minSamples int, classID, sessionDate *string, since time.Time) ([]StreamGroup, error)
	// ListByGroup returns every stream in a (class,day) group with at
	// least minSamples samples.
	ListByGroup(ctx context.Context, classID, sessionDate string, minSamples int) ([]model.RssiStream, error)
}

// AnomalyRepository owns the Anomaly entity.
type AnomalyRepository interface {
	// Get returns an anomaly by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Anomaly, error)
	// GetByPair returns the canonical-pair anomaly for (class,day,s1,s2),
	// or ErrNotFound. Callers must pre-sort s1 < s2.
	GetByPair(ctx context.Context, classID, sessionDate, studentID1, studentID2 string) (*model.Anomaly, error)
	// Upsert inserts a new anomaly or strengthens an existing one
	// under the overwrite-if-higher rule. Returns the resulting
	// row and whether it was newly created.
	Upsert(ctx context.Context, a *model.Anomaly) (result *model.Anomaly, created bool, err error)
	// UpdateStatus sets status/notes/reviewed_at on an anomaly.
	UpdateStatus(ctx context.Context, id string, status model.AnomalyStatus, notes string, reviewedAt time.Time) (*model.Anomaly, error)
	// List returns anomalies matching filter.
	List(ctx context.Context, filter model.AnomalyFilter) ([]model.Anomaly, error)
	// DeleteOlderThan prunes anomalies created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// IdempotencyRepository owns the IdempotencyKey entity.
type IdempotencyRepository interface {
	// Get returns the stored key, or ErrNotFound.
	Get(ctx context.Context, eventID string, scope model.IdempotencyScope) (*model.IdempotencyKey, error)
	// Put inserts a new idempotency key. Returns ErrConflict if one
	// already exists for (event_id, scope) — callers must re-read.
	Put(ctx context.Context, k *model.IdempotencyKey) error
	// DeleteOlderThan prunes keys created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Repository is the full storage contract the core depends on. It
// composes the per-entity contracts so services can take the narrowest
// interface they need while cmd/server wires a single concrete
// implementation satisfying all of them.
type Repository interface {
	Students() StudentRepository
	Attendance() AttendanceRepository
	RssiStreams() RssiStreamRepository
	Anomalies() AnomalyRepository
	Idempotency() IdempotencyRepository
}
