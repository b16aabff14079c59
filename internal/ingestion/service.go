// Package ingestion implements AppendStream: clock-offset correction and
// append-only upsert of the day's RSSI stream for a (student, class).
package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/classattest/attest-backend/internal/clock"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

// clockSkewLogThreshold is the offset magnitude above which an ingest is
// logged for audit.
const clockSkewLogThreshold = 5 * time.Second

// Service implements AppendStream.
type Service struct {
	repo  repository.Repository
	clock clock.Clock
	loc   *time.Location
	log   zerolog.Logger
}

// New constructs a Service.
func New(repo repository.Repository, clk clock.Clock, loc *time.Location, log zerolog.Logger) *Service {
	return &Service{repo: repo, clock: clk, loc: loc, log: log}
}

// AppendStream corrects sample timestamps by the device clock offset and
// appends them to the day's stream, creating it on first upload.
func (s *Service) AppendStream(ctx context.Context, req model.AppendStreamRequest) (model.AppendStreamResponse, error) {
	if req.StudentID == "" || req.ClassID == "" || len(req.RSSIData) == 0 {
		return model.AppendStreamResponse{}, ErrBadRequest
	}

	now := s.clock.Now()
	sessionDate := clock.CivilDate(now, s.loc)
	if req.SessionDate != nil && *req.SessionDate != "" {
		sessionDate = *req.SessionDate
	}

	var clockOffsetMs int64
	if req.DeviceTimestamp != nil {
		clockOffsetMs = now.Sub(*req.DeviceTimestamp).Milliseconds()
	}
	offset := time.Duration(clockOffsetMs) * time.Millisecond
	if offset < 0 {
		offset = -offset
	}
	if offset > clockSkewLogThreshold {
		s.log.Warn().
			Str("studentId", req.StudentID).
			Str("classId", req.ClassID).
			Int64("clockOffsetMs", clockOffsetMs).
			Msg("large client clock offset observed during ingestion")
	}

	samples := make([]model.RssiSample, 0, len(req.RSSIData))
	for _, in := range req.RSSIData {
		if in.RSSI == nil || in.Timestamp.IsZero() {
			return model.AppendStreamResponse{}, ErrBadRequest
		}
		sample := model.RssiSample{
			Timestamp: in.Timestamp,
			RSSI:      *in.RSSI,
		}
		if clockOffsetMs != 0 {
			original := in.Timestamp
			correctedOffset := clockOffsetMs
			sample.Timestamp = in.Timestamp.Add(time.Duration(clockOffsetMs) * time.Millisecond)
			sample.OriginalTimestamp = &original
			sample.ClockOffsetMs = &correctedOffset
		}
		samples = append(samples, sample)
	}

	count, err := s.repo.RssiStreams().AppendSamples(ctx, req.StudentID, req.ClassID, sessionDate, samples, clockOffsetMs, now)
	if err != nil {
		return model.AppendStreamResponse{}, err
	}

	return model.AppendStreamResponse{Success: true, SampleCount: count}, nil
}
