// Package attendance implements the two-phase attendance state machine:
// device-bound, idempotent check-in / confirm / cancel, with monotonic
// status transitions enforced by the repository's conditional-update
// primitives.
package attendance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/classattest/attest-backend/internal/clock"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
	"github.com/classattest/attest-backend/internal/signature"
)

// Policy is the subset of configuration this service needs.
type Policy struct {
	ConfirmationWindow time.Duration
	CooldownWindow     time.Duration
	HMACSalts          map[int]string
}

// Service implements CheckIn, Confirm, CancelProvisional, and QueryToday.
type Service struct {
	repo   repository.Repository
	clock  clock.Clock
	loc    *time.Location
	policy Policy
}

// New constructs a Service.
func New(repo repository.Repository, clk clock.Clock, loc *time.Location, policy Policy) *Service {
	return &Service{repo: repo, clock: clk, loc: loc, policy: policy}
}

// CheckIn creates or refreshes today's provisional attendance record for
// a (student, class), binding the device on first use.
func (s *Service) CheckIn(ctx context.Context, req model.CheckInRequest) (model.CheckInResponse, error) {
	if req.StudentID == "" || req.ClassID == "" || req.DeviceID == "" || req.DeviceSignature == "" || req.EventID == "" {
		return model.CheckInResponse{}, ErrBadRequest
	}

	if err := signature.Verify(req.DeviceID, req.DeviceSaltVersion, req.DeviceSignature, s.policy.HMACSalts); err != nil {
		return model.CheckInResponse{}, ErrUnauthorized
	}

	requestHash, err := hashRequest(req)
	if err != nil {
		return model.CheckInResponse{}, err
	}
	replay, err := checkIdempotency(ctx, s.repo.Idempotency(), req.EventID, model.ScopeCheckIn, requestHash)
	if err != nil {
		return model.CheckInResponse{}, err
	}
	if replay.Conflict {
		return model.CheckInResponse{}, ErrIdempotencyConflict
	}
	if replay.Found {
		var resp model.CheckInResponse
		if err := json.Unmarshal(replay.Response, &resp); err != nil {
			return model.CheckInResponse{}, err
		}
		return resp, nil
	}

	if owner, err := s.repo.Students().GetByDeviceID(ctx, req.DeviceID); err == nil && owner.StudentID != req.StudentID {
		return model.CheckInResponse{}, &DeviceMismatchError{LockedToStudent: owner.StudentID}
	} else if err != nil && err != repository.ErrNotFound {
		return model.CheckInResponse{}, err
	}

	if _, err := s.repo.Students().EnsureExists(ctx, req.StudentID); err != nil {
		return model.CheckInResponse{}, err
	}

	now := s.clock.Now()
	if _, err := s.repo.Students().BindDevice(ctx, req.StudentID, req.DeviceID, now); err != nil {
		switch err {
		case repository.ErrDeviceBoundElsewhere, repository.ErrConflict:
			student, lookupErr := s.repo.Students().GetByStudentID(ctx, req.StudentID)
			locked := req.StudentID
			if lookupErr == nil && student.DeviceID != nil {
				if owner, lookupErr2 := s.repo.Students().GetByDeviceID(ctx, req.DeviceID); lookupErr2 == nil {
					locked = owner.StudentID
				}
			}
			return model.CheckInResponse{}, &DeviceMismatchError{LockedToStudent: locked}
		default:
			return model.CheckInResponse{}, err
		}
	}

	sessionDate := clock.CivilDate(now, s.loc)

	resp, err := s.upsertProvisional(ctx, req, sessionDate, now)
	if err != nil {
		return model.CheckInResponse{}, err
	}

	if err := storeIdempotency(ctx, s.repo.Idempotency(), req.EventID, model.ScopeCheckIn, requestHash, resp, 200, now); err != nil {
		return model.CheckInResponse{}, err
	}

	return resp, nil
}

func (s *Service) upsertProvisional(ctx context.Context, req model.CheckInRequest, sessionDate string, now time.Time) (model.CheckInResponse, error) {
	existing, err := s.repo.Attendance().GetByKey(ctx, req.StudentID, req.ClassID, sessionDate)
	if err == repository.ErrNotFound {
		a := &model.Attendance{
			StudentID:   req.StudentID,
			ClassID:     req.ClassID,
			SessionDate: sessionDate,
			DeviceID:    req.DeviceID,
			Status:      model.StatusProvisional,
			CheckInTime: now,
			RSSI:        req.RSSI,
			BeaconMajor: req.BeaconMajor,
			BeaconMinor: req.BeaconMinor,
		}
		if createErr := s.repo.Attendance().Create(ctx, a); createErr != nil {
			if createErr == repository.ErrConflict {
				// Racing insert; fold into the record that won.
				existing, err = s.repo.Attendance().GetByKey(ctx, req.StudentID, req.ClassID, sessionDate)
				if err != nil {
					return model.CheckInResponse{}, err
				}
				return s.checkInResponseFor(existing, now, false)
			}
			return model.CheckInResponse{}, createErr
		}
		return s.checkInResponseFor(a, now, true)
	}
	if err != nil {
		return model.CheckInResponse{}, err
	}

	if existing.Status == model.StatusProvisional {
		if existing.DeviceID != req.DeviceID {
			return model.CheckInResponse{}, &DeviceMismatchError{LockedToStudent: req.StudentID}
		}
		if err := s.repo.Attendance().UpdateSnapshot(ctx, existing.ID, req.RSSI, req.BeaconMajor, req.BeaconMinor); err != nil {
			return model.CheckInResponse{}, err
		}
		existing.RSSI, existing.BeaconMajor, existing.BeaconMinor = req.RSSI, req.BeaconMajor, req.BeaconMinor
		return s.checkInResponseFor(existing, now, false)
	}

	// Confirmed or cancelled: idempotent success, record unchanged.
	return s.checkInResponseFor(existing, now, false)
}

func (s *Service) checkInResponseFor(a *model.Attendance, now time.Time, created bool) (model.CheckInResponse, error) {
	remaining := remainingSeconds(a.CheckInTime, now, s.policy.ConfirmationWindow)
	return model.CheckInResponse{
		Success:          true,
		Created:          created,
		Status:           a.Status,
		RemainingSeconds: remaining,
		Attendance:       *a,
	}, nil
}

// remainingSeconds is max(0, window - elapsed), never negative.
func remainingSeconds(checkInTime, now time.Time, window time.Duration) int64 {
	elapsed := now.Sub(checkInTime)
	remaining := window - elapsed
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

// Confirm transitions a provisional record to confirmed, provided the
// request's device matches the record's.
func (s *Service) Confirm(ctx context.Context, req model.ConfirmRequest) (model.AttendanceView, error) {
	if req.StudentID == "" || req.ClassID == "" || req.DeviceID == "" || req.EventID == "" {
		return model.AttendanceView{}, ErrBadRequest
	}

	now := s.clock.Now()
	a, err := s.locate(ctx, req.StudentID, req.ClassID, req.AttendanceID, now)
	if err != nil {
		return model.AttendanceView{}, err
	}
	if a.DeviceID != req.DeviceID {
		return model.AttendanceView{}, &DeviceMismatchError{LockedToStudent: req.StudentID}
	}

	if a.Status == model.StatusConfirmed {
		return s.viewOf(*a, now), nil
	}
	if a.Status != model.StatusProvisional {
		return model.AttendanceView{}, ErrNotFound
	}

	confirmedAt := now
	updated, err := s.repo.Attendance().TransitionIfStatus(ctx, a.ID, model.StatusProvisional, model.StatusConfirmed, func(rec *model.Attendance) {
		rec.ConfirmedAt = &confirmedAt
	})
	if err != nil {
		if err == repository.ErrConflict {
			// The janitor or analyzer won the race; re-read the
			// authoritative state rather than retry blindly.
			fresh, getErr := s.repo.Attendance().Get(ctx, a.ID)
			if getErr != nil {
				return model.AttendanceView{}, getErr
			}
			if fresh.Status == model.StatusCancelled {
				return model.AttendanceView{}, ErrNotFound
			}
			return s.viewOf(*fresh, now), nil
		}
		return model.AttendanceView{}, err
	}
	return s.viewOf(*updated, now), nil
}

func (s *Service) locate(ctx context.Context, studentID, classID string, attendanceID *string, now time.Time) (*model.Attendance, error) {
	if attendanceID != nil && *attendanceID != "" {
		a, err := s.repo.Attendance().Get(ctx, *attendanceID)
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return a, err
	}
	sessionDate := clock.CivilDate(now, s.loc)
	a, err := s.repo.Attendance().GetByKey(ctx, studentID, classID, sessionDate)
	if err == repository.ErrNotFound {
		return nil, ErrNotFound
	}
	return a, err
}

// CancelProvisional transitions a provisional record to cancelled.
func (s *Service) CancelProvisional(ctx context.Context, req model.CancelProvisionalRequest) (model.AttendanceView, error) {
	if req.StudentID == "" || req.ClassID == "" || req.EventID == "" {
		return model.AttendanceView{}, ErrBadRequest
	}

	now := s.clock.Now()
	sessionDate := clock.CivilDate(now, s.loc)
	a, err := s.repo.Attendance().GetByKey(ctx, req.StudentID, req.ClassID, sessionDate)
	if err == repository.ErrNotFound {
		return model.AttendanceView{}, ErrNotFound
	}
	if err != nil {
		return model.AttendanceView{}, err
	}

	if a.Status == model.StatusCancelled {
		return s.viewOf(*a, now), nil
	}
	if a.Status == model.StatusConfirmed {
		return model.AttendanceView{}, ErrInvalidState
	}

	reason := "left_before_confirmation"
	if req.Reason != nil && *req.Reason != "" {
		reason = *req.Reason
	}
	cancelledAt := now
	updated, err := s.repo.Attendance().TransitionIfStatus(ctx, a.ID, model.StatusProvisional, model.StatusCancelled, func(rec *model.Attendance) {
		rec.CancelledAt = &cancelledAt
		rec.CancellationReason = &reason
	})
	if err != nil {
		if err == repository.ErrConflict {
			fresh, getErr := s.repo.Attendance().Get(ctx, a.ID)
			if getErr != nil {
				return model.AttendanceView{}, getErr
			}
			return s.viewOf(*fresh, now), nil
		}
		return model.AttendanceView{}, err
	}
	return s.viewOf(*updated, now), nil
}

// QueryToday returns all of today's attendance records for a student,
// each enriched with remaining-window and cooldown info.
func (s *Service) QueryToday(ctx context.Context, studentID string) ([]model.AttendanceView, error) {
	now := s.clock.Now()
	sessionDate := clock.CivilDate(now, s.loc)
	records, err := s.repo.Attendance().ListToday(ctx, studentID, sessionDate)
	if err != nil {
		return nil, err
	}
	views := make([]model.AttendanceView, 0, len(records))
	for _, a := range records {
		views = append(views, s.viewOf(a, now))
	}
	return views, nil
}

func (s *Service) viewOf(a model.Attendance, now time.Time) model.AttendanceView {
	view := model.AttendanceView{Attendance: a}
	switch a.Status {
	case model.StatusProvisional:
		remaining := remainingSeconds(a.CheckInTime, now, s.policy.ConfirmationWindow)
		view.RemainingSeconds = &remaining
	case model.StatusConfirmed:
		if a.ConfirmedAt != nil {
			endsAt := a.ConfirmedAt.Add(s.policy.CooldownWindow)
			secondsRemaining := int64(endsAt.Sub(now).Seconds())
			if secondsRemaining < 0 {
				secondsRemaining = 0
			}
			view.Cooldown = &model.CooldownInfo{
				CooldownEndsAt:   endsAt,
				SecondsRemaining: secondsRemaining,
			}
		}
	}
	return view
}
