// Package analyzer implements the periodic correlation pass: group
// streams by (class, day), run the correlation engine, upsert anomalies,
// and close the loop on attendance status. A single goroutine reads from
// a ticker and a cancellable context, logging and continuing on per-item
// failure rather than aborting the run.
package analyzer

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/classattest/attest-backend/internal/anomaly"
	"github.com/classattest/attest-backend/internal/config"
	"github.com/classattest/attest-backend/internal/correlation"
	"github.com/classattest/attest-backend/internal/metrics"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

// Job runs the analyzer on its own ticker and on demand.
type Job struct {
	repo       repository.Repository
	anomalySvc *anomaly.Service
	rdb        *redis.Client
	log        zerolog.Logger

	interval    time.Duration
	minSamples  int
	groupBudget time.Duration

	alignOpts  correlation.AlignOptions
	thresholds correlation.Thresholds
}

// New constructs an analyzer Job.
func New(repo repository.Repository, anomalySvc *anomaly.Service, rdb *redis.Client, log zerolog.Logger, interval, groupBudget time.Duration, minSamples int, alignOpts correlation.AlignOptions, thresholds correlation.Thresholds) *Job {
	return &Job{
		repo:        repo,
		anomalySvc:  anomalySvc,
		rdb:         rdb,
		log:         log,
		interval:    interval,
		minSamples:  minSamples,
		groupBudget: groupBudget,
		alignOpts:   alignOpts,
		thresholds:  thresholds,
	}
}

// Run starts the ticker loop; it blocks until ctx is cancelled.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Info().Dur("interval", j.interval).Msg("analyzer job started")

	for {
		select {
		case <-ticker.C:
			if _, err := j.RunOnce(ctx, nil, nil); err != nil {
				j.log.Error().Err(err).Msg("analyzer pass failed")
			}
		case <-ctx.Done():
			j.log.Info().Msg("analyzer job stopped")
			return ctx.Err()
		}
	}
}

// RunOnce executes a single analyzer pass, optionally pinned to one
// (class, date), and returns the number of groups processed. It is
// exported so the on-demand POST /analyze-correlations endpoint can
// invoke the exact same code path as the ticker.
func (j *Job) RunOnce(ctx context.Context, classID, sessionDate *string) (int, error) {
	since := time.Now().Add(-24 * time.Hour)
	groups, err := j.repo.RssiStreams().ListGroupsWithMinSamples(ctx, j.minSamples, classID, sessionDate, since)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, group := range groups {
		locked, unlock, err := j.acquireGroupLock(ctx, group.ClassID, group.SessionDate)
		if err != nil {
			j.log.Error().Err(err).Str("classId", group.ClassID).Str("sessionDate", group.SessionDate).
				Msg("failed to acquire analyzer lock")
			continue
		}
		if !locked {
			continue
		}

		groupCtx, cancel := context.WithTimeout(ctx, j.groupBudget)
		if err := j.processGroup(groupCtx, group.ClassID, group.SessionDate); err != nil {
			j.log.Error().Err(err).Str("classId", group.ClassID).Str("sessionDate", group.SessionDate).
				Msg("analyzer group skipped")
		} else {
			processed++
			metrics.AnalyzerGroupsProcessed.Inc()
		}
		cancel()
		unlock()
	}
	return processed, nil
}

func (j *Job) acquireGroupLock(ctx context.Context, classID, sessionDate string) (bool, func(), error) {
	if j.rdb == nil {
		return true, func() {}, nil
	}
	key := config.CacheKey.AnalyzerGroupLockKey(classID, sessionDate)
	ok, err := j.rdb.SetNX(ctx, key, "1", j.groupBudget).Result()
	if err != nil {
		return false, nil, err
	}
	return ok, func() { j.rdb.Del(context.Background(), key) }, nil
}

func (j *Job) processGroup(ctx context.Context, classID, sessionDate string) error {
	defer func(start time.Time) {
		metrics.AnalyzerGroupSeconds.Observe(time.Since(start).Seconds())
	}(time.Now())

	streamRecords, err := j.repo.RssiStreams().ListByGroup(ctx, classID, sessionDate, j.minSamples)
	if err != nil {
		return err
	}
	if len(streamRecords) < 2 {
		return nil
	}

	streams := make([]correlation.Stream, len(streamRecords))
	for i, rec := range streamRecords {
		points := make([]correlation.Point, len(rec.Samples))
		for k, sample := range rec.Samples {
			points[k] = correlation.Point{Timestamp: sample.Timestamp, RSSI: float64(sample.RSSI)}
		}
		streams[i] = correlation.Stream{StudentID: rec.StudentID, Points: points}
	}

	reports, err := correlation.AnalyzeAllPairs(ctx, streams, j.alignOpts, j.thresholds)
	if err != nil && len(reports) == 0 {
		return err
	}

	proxyStudents := make(map[string]bool)
	pendingStudents := make(map[string]bool)

	flagged := correlation.Flagged(reports)
	for _, report := range flagged {
		s1, s2 := report.StudentIDA, report.StudentIDB
		if s1 > s2 {
			s1, s2 = s2, s1
		}
		severity := model.SeverityWarning
		if report.Result.Severity == correlation.SeverityCritical {
			severity = model.SeverityCritical
		}
		metrics.AnalyzerPairsFlagged.WithLabelValues(string(severity)).Inc()
		result, err := j.anomalySvc.Upsert(ctx, classID, sessionDate, s1, s2, report.Result.Correlation, severity, string(report.Result.Reason))
		if err != nil {
			j.log.Error().Err(err).Str("s1", s1).Str("s2", s2).Msg("anomaly upsert failed")
			continue
		}
		switch result.Status {
		case model.AnomalyConfirmedProxy:
			proxyStudents[s1] = true
			proxyStudents[s2] = true
		case model.AnomalyPending:
			pendingStudents[s1] = true
			pendingStudents[s2] = true
		}
	}

	return j.closeAttendanceLoop(ctx, classID, sessionDate, proxyStudents, pendingStudents)
}

// closeAttendanceLoop settles provisional attendance after a pass:
// proxied students are cancelled, flagged-but-pending pairs stay
// provisional for review, everyone else is confirmed.
func (j *Job) closeAttendanceLoop(ctx context.Context, classID, sessionDate string, proxyStudents, pendingStudents map[string]bool) error {
	provisional, err := j.repo.Attendance().ListProvisionalByGroup(ctx, classID, sessionDate)
	if err != nil {
		return err
	}
	sort.Slice(provisional, func(i, j int) bool { return provisional[i].StudentID < provisional[j].StudentID })

	now := time.Now()
	for _, a := range provisional {
		switch {
		case proxyStudents[a.StudentID]:
			reason := "Proxy detected by automation"
			cancelledAt := now
			if _, err := j.repo.Attendance().TransitionIfStatus(ctx, a.ID, model.StatusProvisional, model.StatusCancelled, func(rec *model.Attendance) {
				rec.CancelledAt = &cancelledAt
				rec.CancellationReason = &reason
			}); err != nil && err != repository.ErrConflict {
				j.log.Error().Err(err).Str("attendanceId", a.ID).Msg("failed to cancel proxy attendance")
			}
		case pendingStudents[a.StudentID]:
			// Leave provisional; awaits human review.
		default:
			confirmedAt := now
			if _, err := j.repo.Attendance().TransitionIfStatus(ctx, a.ID, model.StatusProvisional, model.StatusConfirmed, func(rec *model.Attendance) {
				rec.ConfirmedAt = &confirmedAt
			}); err != nil && err != repository.ErrConflict {
				j.log.Error().Err(err).Str("attendanceId", a.ID).Msg("failed to confirm attendance")
			}
		}
	}
	return nil
}
