package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/classattest/attest-backend/internal/anomaly"
	"github.com/classattest/attest-backend/internal/correlation"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository/memstore"
)

func seedStream(t *testing.T, store *memstore.Store, studentID string, base time.Time, rssi []float64) {
	t.Helper()
	samples := make([]model.RssiSample, len(rssi))
	for i, v := range rssi {
		samples[i] = model.RssiSample{Timestamp: base.Add(time.Duration(i) * time.Second), RSSI: int(v)}
	}
	if _, err := store.RssiStreams().AppendSamples(context.Background(), studentID, "class-1", "2026-01-10", samples, 0, base); err != nil {
		t.Fatalf("seed stream failed: %v", err)
	}
}

func seedProvisional(t *testing.T, store *memstore.Store, studentID string, checkInTime time.Time) {
	t.Helper()
	a := &model.Attendance{
		ID:          studentID,
		StudentID:   studentID,
		ClassID:     "class-1",
		SessionDate: "2026-01-10",
		DeviceID:    "dev-" + studentID,
		Status:      model.StatusProvisional,
		CheckInTime: checkInTime,
		CreatedAt:   checkInTime,
		UpdatedAt:   checkInTime,
	}
	if err := store.Attendance().Create(context.Background(), a); err != nil {
		t.Fatalf("seed attendance failed: %v", err)
	}
}

func newTestJob(store *memstore.Store, rdb *redis.Client) *Job {
	anomalySvc := anomaly.New(store, 0.9)
	return New(store, anomalySvc, rdb, zerolog.Nop(), time.Minute, 30*time.Second, 10,
		correlation.DefaultAlignOptions(), correlation.DefaultThresholds())
}

func TestRunOnceConfirmsIndependentPairAndCancelsProxyPair(t *testing.T) {
	store := memstore.New()
	base := time.Now().Add(-time.Minute)

	identical := make([]float64, 20)
	for i := range identical {
		identical[i] = -60 + float64(i%5)
	}
	independent := []float64{-80, -40, -85, -35, -90, -30, -82, -38, -88, -32, -81, -41, -86, -36, -91, -31, -83, -39, -89, -33}

	seedStream(t, store, "stu-1", base, identical)
	seedStream(t, store, "stu-2", base, identical)
	seedStream(t, store, "stu-3", base, independent)

	seedProvisional(t, store, "stu-1", base)
	seedProvisional(t, store, "stu-2", base)
	seedProvisional(t, store, "stu-3", base)

	job := newTestJob(store, nil)
	processed, err := job.RunOnce(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected exactly one group processed, got %d", processed)
	}

	a1, err := store.Attendance().Get(context.Background(), "stu-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a1.Status != model.StatusCancelled {
		t.Fatalf("expected stu-1's provisional attendance cancelled as an auto-confirmed proxy, got %v", a1.Status)
	}

	a3, err := store.Attendance().Get(context.Background(), "stu-3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if a3.Status != model.StatusConfirmed {
		t.Fatalf("expected stu-3's uncorrelated attendance auto-confirmed, got %v", a3.Status)
	}
}

func TestRunOnceSkipsGroupsBelowMinimumSamples(t *testing.T) {
	store := memstore.New()
	base := time.Now()
	seedStream(t, store, "stu-1", base, []float64{-60, -61, -62})
	seedStream(t, store, "stu-2", base, []float64{-60, -61, -62})

	job := newTestJob(store, nil)
	processed, err := job.RunOnce(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 0 {
		t.Fatalf("expected no groups processed below the minimum sample count, got %d", processed)
	}
}

func TestAcquireGroupLockPreventsConcurrentProcessingOfSameGroup(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := memstore.New()
	job := newTestJob(store, rdb)

	ctx := context.Background()
	locked1, unlock1, err := job.acquireGroupLock(ctx, "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("first acquireGroupLock failed: %v", err)
	}
	if !locked1 {
		t.Fatalf("expected the first lock attempt to succeed")
	}

	locked2, _, err := job.acquireGroupLock(ctx, "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("second acquireGroupLock failed: %v", err)
	}
	if locked2 {
		t.Fatalf("expected the second concurrent lock attempt on the same group to fail")
	}

	unlock1()
	locked3, _, err := job.acquireGroupLock(ctx, "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("third acquireGroupLock failed: %v", err)
	}
	if !locked3 {
		t.Fatalf("expected the lock to be available again after unlock")
	}
}

func TestAcquireGroupLockWithNilRedisAlwaysSucceeds(t *testing.T) {
	store := memstore.New()
	job := newTestJob(store, nil)

	locked, unlock, err := job.acquireGroupLock(context.Background(), "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("acquireGroupLock failed: %v", err)
	}
	if !locked {
		t.Fatalf("expected a nil redis client to bypass locking entirely")
	}
	unlock()
}
