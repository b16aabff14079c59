package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/classattest/attest-backend/internal/clock"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository/memstore"
)

func newTestService(now time.Time) (*Service, *clock.Fake) {
	fake := clock.NewFake(now)
	return New(memstore.New(), fake, time.UTC, zerolog.Nop()), fake
}

func intPtr(v int) *int { return &v }

func TestAppendStreamRejectsEmptyPayload(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	_, err := svc.AppendStream(context.Background(), model.AppendStreamRequest{
		StudentID: "stu-1", ClassID: "class-1",
	})
	if err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest for an empty rssiData payload, got %v", err)
	}
}

func TestAppendStreamRejectsMissingRSSI(t *testing.T) {
	svc, _ := newTestService(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	_, err := svc.AppendStream(context.Background(), model.AppendStreamRequest{
		StudentID: "stu-1",
		ClassID:   "class-1",
		RSSIData: []model.RssiSampleInput{
			{Timestamp: time.Now()},
		},
	})
	if err != ErrBadRequest {
		t.Fatalf("expected ErrBadRequest when a sample is missing rssi, got %v", err)
	}
}

func TestAppendStreamAccumulatesSampleCount(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc, fake := newTestService(now)
	ctx := context.Background()

	first, err := svc.AppendStream(ctx, model.AppendStreamRequest{
		StudentID: "stu-1",
		ClassID:   "class-1",
		RSSIData: []model.RssiSampleInput{
			{Timestamp: now, RSSI: intPtr(-60)},
			{Timestamp: now.Add(time.Second), RSSI: intPtr(-61)},
		},
	})
	if err != nil {
		t.Fatalf("first AppendStream failed: %v", err)
	}
	if first.SampleCount != 2 {
		t.Fatalf("expected a sample count of 2, got %d", first.SampleCount)
	}

	fake.Advance(2 * time.Second)
	second, err := svc.AppendStream(ctx, model.AppendStreamRequest{
		StudentID: "stu-1",
		ClassID:   "class-1",
		RSSIData: []model.RssiSampleInput{
			{Timestamp: now.Add(2 * time.Second), RSSI: intPtr(-62)},
		},
	})
	if err != nil {
		t.Fatalf("second AppendStream failed: %v", err)
	}
	if second.SampleCount != 3 {
		t.Fatalf("expected the stream to accumulate to 3 samples across two uploads, got %d", second.SampleCount)
	}
}

func TestAppendStreamCorrectsDeviceClockSkew(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	store := memstore.New()
	svc := New(store, clock.NewFake(now), time.UTC, zerolog.Nop())

	deviceTime := now.Add(-10 * time.Second)
	sampleDeviceTime := deviceTime.Add(time.Second)
	_, err := svc.AppendStream(context.Background(), model.AppendStreamRequest{
		StudentID:       "stu-1",
		ClassID:         "class-1",
		DeviceTimestamp: &deviceTime,
		RSSIData: []model.RssiSampleInput{
			{Timestamp: sampleDeviceTime, RSSI: intPtr(-60)},
		},
	})
	if err != nil {
		t.Fatalf("AppendStream failed: %v", err)
	}

	stream, err := store.RssiStreams().GetByKey(context.Background(), "stu-1", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if len(stream.Samples) != 1 {
		t.Fatalf("expected 1 stored sample, got %d", len(stream.Samples))
	}
	sample := stream.Samples[0]
	if sample.OriginalTimestamp == nil || !sample.OriginalTimestamp.Equal(sampleDeviceTime) {
		t.Fatalf("expected the uncorrected device timestamp to be preserved, got %v", sample.OriginalTimestamp)
	}
	wantCorrected := sampleDeviceTime.Add(10 * time.Second)
	if !sample.Timestamp.Equal(wantCorrected) {
		t.Fatalf("expected the sample timestamp corrected by the device offset to %v, got %v", wantCorrected, sample.Timestamp)
	}
	if sample.ClockOffsetMs == nil || *sample.ClockOffsetMs != 10000 {
		t.Fatalf("expected a recorded clock offset of 10000ms, got %v", sample.ClockOffsetMs)
	}
}

func TestAppendStreamUsesServerCivilDateWhenSessionDateOmitted(t *testing.T) {
	now := time.Date(2026, 1, 10, 23, 30, 0, 0, time.UTC)
	store := memstore.New()
	svc := New(store, clock.NewFake(now), time.UTC, zerolog.Nop())

	_, err := svc.AppendStream(context.Background(), model.AppendStreamRequest{
		StudentID: "stu-1",
		ClassID:   "class-1",
		RSSIData: []model.RssiSampleInput{
			{Timestamp: now, RSSI: intPtr(-60)},
		},
	})
	if err != nil {
		t.Fatalf("AppendStream failed: %v", err)
	}

	stream, err := store.RssiStreams().GetByKey(context.Background(), "stu-1", "class-1", "2026-01-10")
	if err != nil {
		t.Fatalf("expected a stream keyed on the server's civil date, got error: %v", err)
	}
	if stream.SampleCount != 1 {
		t.Fatalf("expected 1 sample, got %d", stream.SampleCount)
	}
}
