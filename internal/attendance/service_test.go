package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classattest/attest-backend/internal/clock"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository/memstore"
	"github.com/classattest/attest-backend/internal/signature"
)

const testSalt = "test-salt"

func newTestService(now time.Time) (*Service, *clock.Fake) {
	fake := clock.NewFake(now)
	svc := New(memstore.New(), fake, time.UTC, Policy{
		ConfirmationWindow: 3 * time.Minute,
		CooldownWindow:     15 * time.Minute,
		HMACSalts:          map[int]string{1: testSalt},
	})
	return svc, fake
}

func checkInReq(studentID, deviceID, eventID string) model.CheckInRequest {
	return model.CheckInRequest{
		StudentID:         studentID,
		ClassID:           "class-1",
		DeviceID:          deviceID,
		DeviceSignature:   signature.Sign(deviceID, testSalt),
		DeviceSaltVersion: 1,
		EventID:           eventID,
	}
}

func TestCheckInThenConfirmHappyPath(t *testing.T) {
	svc, fake := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	resp, err := svc.CheckIn(ctx, checkInReq("stu-1", "dev-1", "evt-1"))
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if !resp.Created || resp.Status != model.StatusProvisional {
		t.Fatalf("expected a newly-created provisional record, got %+v", resp)
	}
	if resp.RemainingSeconds != 180 {
		t.Fatalf("expected 180s remaining immediately after check-in, got %d", resp.RemainingSeconds)
	}

	fake.Advance(30 * time.Second)
	view, err := svc.Confirm(ctx, model.ConfirmRequest{
		StudentID: "stu-1", ClassID: "class-1", DeviceID: "dev-1", EventID: "evt-2",
	})
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if view.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed status, got %v", view.Status)
	}
	if view.Cooldown == nil {
		t.Fatalf("expected a cooldown block on a freshly confirmed record")
	}
}

func TestCheckInDeviceMismatchLocksToOriginalOwner(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, checkInReq("stu-1", "dev-1", "evt-1")); err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}

	_, err := svc.CheckIn(ctx, checkInReq("stu-2", "dev-1", "evt-2"))
	var mismatch *DeviceMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected a DeviceMismatchError, got %v", err)
	}
	if mismatch.LockedToStudent != "stu-1" {
		t.Fatalf("expected lock to report stu-1, got %q", mismatch.LockedToStudent)
	}
}

func TestCheckInRejectsBadSignature(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	req := checkInReq("stu-1", "dev-1", "evt-1")
	req.DeviceSignature = "0000000000000000000000000000000000000000000000000000000000000000"

	if _, err := svc.CheckIn(ctx, req); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for a bad signature, got %v", err)
	}
}

func TestCheckInIsIdempotentOnReplayedEventID(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	req := checkInReq("stu-1", "dev-1", "evt-1")

	first, err := svc.CheckIn(ctx, req)
	if err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}
	second, err := svc.CheckIn(ctx, req)
	if err != nil {
		t.Fatalf("replayed check-in failed: %v", err)
	}
	if first.Attendance.ID != second.Attendance.ID {
		t.Fatalf("expected the replay to return the identical original attendance record")
	}
	if second.Created != first.Created {
		t.Fatalf("expected the replayed response to match the original verbatim, got created=%v want %v", second.Created, first.Created)
	}
}

func TestCheckInRejectsIdempotencyConflictOnPayloadChange(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, checkInReq("stu-1", "dev-1", "evt-1")); err != nil {
		t.Fatalf("first check-in failed: %v", err)
	}

	mutated := checkInReq("stu-1", "dev-1", "evt-1")
	rssi := 5
	mutated.RSSI = &rssi

	if _, err := svc.CheckIn(ctx, mutated); err != ErrIdempotencyConflict {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestQueryTodayRemainingSecondsFloorsAtZeroPastWindow(t *testing.T) {
	svc, fake := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, checkInReq("stu-1", "dev-1", "evt-1")); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}

	fake.Advance(4 * time.Minute)
	view, err := svc.QueryToday(ctx, "stu-1")
	if err != nil {
		t.Fatalf("QueryToday failed: %v", err)
	}
	if len(view) != 1 {
		t.Fatalf("expected exactly one attendance record for today, got %d", len(view))
	}
	if *view[0].RemainingSeconds != 0 {
		t.Fatalf("expected remainingSeconds to floor at 0 past the confirmation window, got %d", *view[0].RemainingSeconds)
	}
}

func TestCancelProvisionalRefusesAfterConfirm(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, checkInReq("stu-1", "dev-1", "evt-1")); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if _, err := svc.Confirm(ctx, model.ConfirmRequest{StudentID: "stu-1", ClassID: "class-1", DeviceID: "dev-1", EventID: "evt-2"}); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	_, err := svc.CancelProvisional(ctx, model.CancelProvisionalRequest{StudentID: "stu-1", ClassID: "class-1", EventID: "evt-3"})
	if err != ErrInvalidState {
		t.Fatalf("expected ErrInvalidState cancelling a confirmed record, got %v", err)
	}
}

func TestRemainingSecondsNeverNegative(t *testing.T) {
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if got := remainingSeconds(base, base.Add(5*time.Minute), 3*time.Minute); got != 0 {
		t.Fatalf("expected remainingSeconds to clamp to 0 past the window, got %d", got)
	}
	if got := remainingSeconds(base, base.Add(30*time.Second), 3*time.Minute); got != 150 {
		t.Fatalf("expected 150s remaining at 30s elapsed of a 180s window, got %d", got)
	}
}

func TestConfirmAfterCancellationReturnsNotFound(t *testing.T) {
	svc, fake := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	if _, err := svc.CheckIn(ctx, checkInReq("stu-1", "dev-1", "evt-1")); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if _, err := svc.CancelProvisional(ctx, model.CancelProvisionalRequest{
		StudentID: "stu-1", ClassID: "class-1", EventID: "evt-2",
	}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	fake.Advance(10 * time.Second)
	_, err := svc.Confirm(ctx, model.ConfirmRequest{
		StudentID: "stu-1", ClassID: "class-1", DeviceID: "dev-1", EventID: "evt-3",
	})
	if err != ErrNotFound {
		t.Fatalf("expected NOT_FOUND confirming a cancelled record, got %v", err)
	}
}
