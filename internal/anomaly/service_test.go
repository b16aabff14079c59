package anomaly

import (
	"context"
	"testing"
	"time"

	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository/memstore"
)

const autoConfirmThreshold = 0.9

func seedAttendance(t *testing.T, store *memstore.Store, studentID, classID, sessionDate string) *model.Attendance {
	t.Helper()
	a := &model.Attendance{
		ID:          studentID + "-" + classID + "-" + sessionDate,
		StudentID:   studentID,
		ClassID:     classID,
		SessionDate: sessionDate,
		DeviceID:    "dev-" + studentID,
		Status:      model.StatusConfirmed,
		CheckInTime: time.Now(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := store.Attendance().Create(context.Background(), a); err != nil {
		t.Fatalf("seed attendance failed: %v", err)
	}
	return a
}

func TestUpsertBelowThresholdStartsPending(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)

	got, err := svc.Upsert(context.Background(), "class-1", "2026-01-10", "stu-1", "stu-2", 0.7, model.SeverityWarning, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.Status != model.AnomalyPending {
		t.Fatalf("expected pending status below the auto-confirm threshold, got %v", got.Status)
	}
}

func TestUpsertAtOrAboveThresholdAutoConfirms(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)

	got, err := svc.Upsert(context.Background(), "class-1", "2026-01-10", "stu-1", "stu-2", 0.95, model.SeverityCritical, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if got.Status != model.AnomalyConfirmedProxy {
		t.Fatalf("expected confirmed_proxy at or above the auto-confirm threshold, got %v", got.Status)
	}
}

func TestUpsertRejectsNonCanonicalOrdering(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)

	if _, err := svc.Upsert(context.Background(), "class-1", "2026-01-10", "stu-2", "stu-1", 0.7, model.SeverityWarning, ""); err == nil {
		t.Fatalf("expected an error for a non-canonically-ordered pair")
	}
}

func TestUpsertStrengthensExistingPair(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.7, model.SeverityWarning, "")
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	second, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.96, model.SeverityCritical, "")
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the canonical pair to be strengthened in place, got a new id %q vs %q", second.ID, first.ID)
	}
	if second.CorrelationScore != 0.96 {
		t.Fatalf("expected the stronger score to overwrite, got %v", second.CorrelationScore)
	}
	if second.Severity != model.SeverityCritical {
		t.Fatalf("expected the stronger severity to overwrite, got %v", second.Severity)
	}
	if second.Status != model.AnomalyPending {
		t.Fatalf("expected the strengthened pair to stay pending for review even past the auto-confirm threshold, got %v", second.Status)
	}
}

func TestReviewConfirmProxyCancelsBothStudents(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)
	ctx := context.Background()

	seedAttendance(t, store, "stu-1", "class-1", "2026-01-10")
	seedAttendance(t, store, "stu-2", "class-1", "2026-01-10")

	anomaly, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.7, model.SeverityWarning, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	result, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ActionConfirmProxy, "looks like proxy")
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if len(result.CancelledStudentIDs) != 2 {
		t.Fatalf("expected both students cancelled, got %v", result.CancelledStudentIDs)
	}

	a1, err := store.Attendance().GetByKey(ctx, "stu-1", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if a1.Status != model.StatusCancelled {
		t.Fatalf("expected stu-1 cancelled, got %v", a1.Status)
	}
}

func TestReviewFalsePositiveAfterConfirmProxyReinstatesBothStudents(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)
	ctx := context.Background()

	seedAttendance(t, store, "stu-1", "class-1", "2026-01-10")
	seedAttendance(t, store, "stu-2", "class-1", "2026-01-10")

	anomaly, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.7, model.SeverityWarning, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ActionConfirmProxy, ""); err != nil {
		t.Fatalf("confirm_proxy review failed: %v", err)
	}

	result, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ActionFalsePositive, "turned out to be legitimate")
	if err != nil {
		t.Fatalf("false_positive review failed: %v", err)
	}
	if len(result.ReinstatedStudentIDs) != 2 {
		t.Fatalf("expected both students reinstated, got %v", result.ReinstatedStudentIDs)
	}

	a2, err := store.Attendance().GetByKey(ctx, "stu-2", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if a2.Status != model.StatusConfirmed {
		t.Fatalf("expected stu-2 reinstated to confirmed, got %v", a2.Status)
	}
	if a2.CancellationReason != nil {
		t.Fatalf("expected cancellation reason cleared on reinstatement, got %v", *a2.CancellationReason)
	}
}

func TestReviewFalsePositiveReversesAutomationCancellation(t *testing.T) {
	// The analyzer's own auto-confirm path cancels attendance with a
	// different reason string than a human's confirm_proxy review; a
	// later false_positive review must be able to reverse either.
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)
	ctx := context.Background()

	seedAttendance(t, store, "stu-1", "class-1", "2026-01-10")
	seedAttendance(t, store, "stu-2", "class-1", "2026-01-10")

	anomaly, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.97, model.SeverityCritical, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if anomaly.Status != model.AnomalyConfirmedProxy {
		t.Fatalf("expected the pair to start life confirmed_proxy above the auto-confirm threshold")
	}

	now := time.Now()
	reason := "Proxy detected by automation"
	a1, err := store.Attendance().GetByKey(ctx, "stu-1", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if _, err := store.Attendance().Force(ctx, a1.ID, model.StatusCancelled, func(rec *model.Attendance) {
		rec.CancelledAt = &now
		rec.CancellationReason = &reason
	}); err != nil {
		t.Fatalf("Force cancel failed: %v", err)
	}
	a2, err := store.Attendance().GetByKey(ctx, "stu-2", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if _, err := store.Attendance().Force(ctx, a2.ID, model.StatusCancelled, func(rec *model.Attendance) {
		rec.CancelledAt = &now
		rec.CancellationReason = &reason
	}); err != nil {
		t.Fatalf("Force cancel failed: %v", err)
	}

	result, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ActionFalsePositive, "was a false positive")
	if err != nil {
		t.Fatalf("false_positive review failed: %v", err)
	}
	if len(result.ReinstatedStudentIDs) != 2 {
		t.Fatalf("expected the automation-cancelled pair to be reinstated, got %v", result.ReinstatedStudentIDs)
	}
}

func TestReviewFalsePositiveLeavesUnrelatedCancellationAlone(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)
	ctx := context.Background()

	seedAttendance(t, store, "stu-1", "class-1", "2026-01-10")
	seedAttendance(t, store, "stu-2", "class-1", "2026-01-10")

	anomaly, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.7, model.SeverityWarning, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if _, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ActionConfirmProxy, ""); err != nil {
		t.Fatalf("confirm_proxy review failed: %v", err)
	}

	// A human re-cancels stu-1's attendance for an unrelated reason before
	// the false_positive review lands.
	now := time.Now()
	other := "student withdrew from class"
	a1, err := store.Attendance().GetByKey(ctx, "stu-1", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if _, err := store.Attendance().Force(ctx, a1.ID, model.StatusCancelled, func(rec *model.Attendance) {
		rec.CancelledAt = &now
		rec.CancellationReason = &other
	}); err != nil {
		t.Fatalf("Force cancel failed: %v", err)
	}

	result, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ActionFalsePositive, "")
	if err != nil {
		t.Fatalf("false_positive review failed: %v", err)
	}
	for _, id := range result.ReinstatedStudentIDs {
		if id == "stu-1" {
			t.Fatalf("expected stu-1's unrelated cancellation to be left alone")
		}
	}

	got, err := store.Attendance().GetByKey(ctx, "stu-1", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if got.Status != model.StatusCancelled || got.CancellationReason == nil || *got.CancellationReason != other {
		t.Fatalf("expected stu-1's unrelated cancellation reason to survive unchanged, got %+v", got)
	}
}

func TestReviewUnknownAnomalyReturnsNotFound(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)

	if _, err := svc.Review(context.Background(), store.Attendance(), "missing-id", model.ActionConfirmProxy, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReviewInvalidActionRejected(t *testing.T) {
	store := memstore.New()
	svc := New(store, autoConfirmThreshold)
	ctx := context.Background()

	anomaly, err := svc.Upsert(ctx, "class-1", "2026-01-10", "stu-1", "stu-2", 0.7, model.SeverityWarning, "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if _, err := svc.Review(ctx, store.Attendance(), anomaly.ID, model.ReviewAction("bogus"), ""); err != ErrInvalidAction {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}
