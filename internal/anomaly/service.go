// Package anomaly implements the anomaly lifecycle: canonical-pair
// upsert-strengthening, auto-promotion at the configured correlation
// threshold, and human review actions (including the confirm_proxy
// reversal and the false_positive reinstatement, the two exceptions to
// monotonic attendance status).
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

var (
	// ErrNotFound means no anomaly matches the given id.
	ErrNotFound = errors.New("anomaly: not found")
	// ErrInvalidAction means the review action is not recognized.
	ErrInvalidAction = errors.New("anomaly: invalid review action")
)

// Service implements Upsert and Review.
type Service struct {
	repo                 repository.Repository
	autoConfirmThreshold float64
}

// New constructs a Service. autoConfirmThreshold is the ρ at or above
// which a newly-inserted anomaly starts life as confirmed_proxy.
func New(repo repository.Repository, autoConfirmThreshold float64) *Service {
	return &Service{repo: repo, autoConfirmThreshold: autoConfirmThreshold}
}

// Upsert inserts or strengthens the anomaly row for one flagged pair. The
// candidate status (auto-confirm at or above the threshold) takes effect
// only when the pair is first inserted; on an existing row the repository
// strengthens score/severity/notes and leaves status alone, so a pending
// anomaly is never promoted without a reviewer. The caller is responsible
// for canonicalizing (studentID1, studentID2) — callers in the analyzer
// job always pass pre-sorted ids.
func (s *Service) Upsert(ctx context.Context, classID, sessionDate, studentID1, studentID2 string, correlation float64, severity model.AnomalySeverity, notes string) (*model.Anomaly, error) {
	if studentID1 >= studentID2 {
		return nil, fmt.Errorf("anomaly: pair must be canonically ordered, got %q >= %q", studentID1, studentID2)
	}

	status := model.AnomalyPending
	if correlation >= s.autoConfirmThreshold {
		status = model.AnomalyConfirmedProxy
	}

	candidate := &model.Anomaly{
		ClassID:          classID,
		SessionDate:      sessionDate,
		StudentID1:       studentID1,
		StudentID2:       studentID2,
		CorrelationScore: correlation,
		Severity:         severity,
		Status:           status,
		Notes:            notes,
		CreatedAt:        time.Now(),
	}

	result, _, err := s.repo.Anomalies().Upsert(ctx, candidate)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReviewResult reports what side effects a Review produced, so the
// handler layer can describe them in the response.
type ReviewResult struct {
	Anomaly              model.Anomaly
	CancelledStudentIDs  []string
	ReinstatedStudentIDs []string
}

// Review applies a reviewer's verdict. confirm_proxy cancels both
// students' attendance for the
// pair's (class, date); a later false_positive review on an anomaly that
// was itself confirmed_proxy reverses that cancellation by transitioning
// the two attendance records back to confirmed, provided they are still
// in the cancelled state with the automation's reason (an attendance
// record a human has since re-cancelled for an unrelated reason is left
// alone).
func (s *Service) Review(ctx context.Context, attendanceRepo repository.AttendanceRepository, anomalyID string, action model.ReviewAction, notes string) (*ReviewResult, error) {
	existing, err := s.repo.Anomalies().Get(ctx, anomalyID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var newStatus model.AnomalyStatus
	switch action {
	case model.ActionConfirmProxy:
		newStatus = model.AnomalyConfirmedProxy
	case model.ActionFalsePositive:
		newStatus = model.AnomalyFalsePositive
	default:
		return nil, ErrInvalidAction
	}

	now := time.Now()
	updated, err := s.repo.Anomalies().UpdateStatus(ctx, anomalyID, newStatus, notes, now)
	if err != nil {
		return nil, err
	}

	result := &ReviewResult{Anomaly: *updated}

	switch {
	case action == model.ActionConfirmProxy && existing.Status != model.AnomalyConfirmedProxy:
		cancelled, err := cancelBothStudents(ctx, attendanceRepo, updated.ClassID, updated.SessionDate,
			updated.StudentID1, updated.StudentID2, "Proxy attendance detected", now)
		if err != nil {
			return nil, err
		}
		result.CancelledStudentIDs = cancelled

	case action == model.ActionFalsePositive && existing.Status == model.AnomalyConfirmedProxy:
		reinstated, err := reinstateBothStudents(ctx, attendanceRepo, updated.ClassID, updated.SessionDate,
			updated.StudentID1, updated.StudentID2, now)
		if err != nil {
			return nil, err
		}
		result.ReinstatedStudentIDs = reinstated
	}

	return result, nil
}

func cancelBothStudents(ctx context.Context, repo repository.AttendanceRepository, classID, sessionDate, s1, s2, reason string, now time.Time) ([]string, error) {
	var cancelled []string
	for _, studentID := range []string{s1, s2} {
		a, err := repo.GetByKey(ctx, studentID, classID, sessionDate)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if a.Status == model.StatusCancelled {
			continue
		}
		cancelledAt := now
		reasonCopy := reason
		if _, err := repo.Force(ctx, a.ID, model.StatusCancelled, func(rec *model.Attendance) {
			rec.CancelledAt = &cancelledAt
			rec.CancellationReason = &reasonCopy
		}); err != nil {
			return nil, err
		}
		cancelled = append(cancelled, studentID)
	}
	return cancelled, nil
}

// reversalReasons are the exact cancellation_reason values the
// review-reversal path looks for — one per path that can cancel a
// student off the back of this pair (a human's confirm_proxy review, or
// the analyzer auto-confirming the pair outright). Attendance a human
// cancelled for an unrelated reason is left untouched.
var reversalReasons = map[string]bool{
	"Proxy attendance detected":    true,
	"Proxy detected by automation": true,
}

func reinstateBothStudents(ctx context.Context, repo repository.AttendanceRepository, classID, sessionDate, s1, s2 string, now time.Time) ([]string, error) {
	var reinstated []string
	for _, studentID := range []string{s1, s2} {
		a, err := repo.GetByKey(ctx, studentID, classID, sessionDate)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if a.Status != model.StatusCancelled || a.CancellationReason == nil || !reversalReasons[*a.CancellationReason] {
			continue
		}
		confirmedAt := now
		if _, err := repo.Force(ctx, a.ID, model.StatusConfirmed, func(rec *model.Attendance) {
			rec.ConfirmedAt = &confirmedAt
			rec.CancelledAt = nil
			rec.CancellationReason = nil
		}); err != nil {
			return nil, err
		}
		reinstated = append(reinstated, studentID)
	}
	return reinstated, nil
}
