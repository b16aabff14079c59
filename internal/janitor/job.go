// Package janitor periodically expires stale provisional attendance and
// prunes old cancelled records, expired idempotency keys, and aged-out
// anomalies. Same ticker-loop shape as the analyzer job.
package janitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/classattest/attest-backend/internal/metrics"
	"github.com/classattest/attest-backend/internal/model"
	"github.com/classattest/attest-backend/internal/repository"
)

// Policy holds the janitor's sweep interval and retention windows.
type Policy struct {
	Interval             time.Duration
	ConfirmationWindow   time.Duration
	ClassDuration        time.Duration
	IdempotencyRetention time.Duration
	AnomalyRetention     time.Duration
}

// Job runs the janitor on its own ticker.
type Job struct {
	repo   repository.Repository
	log    zerolog.Logger
	policy Policy
}

// New constructs a janitor Job.
func New(repo repository.Repository, log zerolog.Logger, policy Policy) *Job {
	return &Job{repo: repo, log: log, policy: policy}
}

// Run starts the ticker loop; blocks until ctx is cancelled. The
// janitor's failures never propagate to users; every error here is
// logged and swallowed.
func (j *Job) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.policy.Interval)
	defer ticker.Stop()

	j.log.Info().Dur("interval", j.policy.Interval).Msg("janitor job started")

	for {
		select {
		case <-ticker.C:
			j.RunOnce(ctx)
		case <-ctx.Done():
			j.log.Info().Msg("janitor job stopped")
			return ctx.Err()
		}
	}
}

// RunOnce executes one expiry + pruning pass.
func (j *Job) RunOnce(ctx context.Context) {
	now := time.Now()

	if err := j.expireStaleProvisional(ctx, now); err != nil {
		j.log.Error().Err(err).Msg("janitor: expire pass failed")
	}
	if err := j.pruneOldCancelled(ctx, now); err != nil {
		j.log.Error().Err(err).Msg("janitor: prune pass failed")
	}
	if err := j.pruneExpiredIdempotencyKeys(ctx, now); err != nil {
		j.log.Error().Err(err).Msg("janitor: idempotency prune pass failed")
	}
	if err := j.pruneOldAnomalies(ctx, now); err != nil {
		j.log.Error().Err(err).Msg("janitor: anomaly prune pass failed")
	}
}

// expireStaleProvisional cancels provisional records whose confirmation
// window has lapsed. The conditional write (TransitionIfStatus) only
// flips provisional -> cancelled when the record is still provisional,
// so a confirm or an analyzer transition that raced ahead of this pass
// is never clobbered.
func (j *Job) expireStaleProvisional(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-j.policy.ConfirmationWindow)
	stale, err := j.repo.Attendance().ListProvisionalOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}

	reason := "Auto-cancelled: confirmation window expired"
	for _, a := range stale {
		cancelledAt := now
		_, err := j.repo.Attendance().TransitionIfStatus(ctx, a.ID, model.StatusProvisional, model.StatusCancelled, func(rec *model.Attendance) {
			rec.CancelledAt = &cancelledAt
			rec.CancellationReason = &reason
		})
		switch {
		case err == nil:
			metrics.JanitorExpiredTotal.Inc()
		case err == repository.ErrConflict:
			// Another transition (confirm, or the analyzer) won the race.
		default:
			j.log.Error().Err(err).Str("attendanceId", a.ID).Msg("janitor: expire failed for record")
		}
	}
	return nil
}

// pruneOldCancelled deletes cancelled records once the class duration
// has elapsed since check-in.
func (j *Job) pruneOldCancelled(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-j.policy.ClassDuration)
	old, err := j.repo.Attendance().ListCancelledOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}
	ids := make([]string, len(old))
	for i, a := range old {
		ids[i] = a.ID
	}
	if err := j.repo.Attendance().DeleteBatch(ctx, ids); err != nil {
		return err
	}
	metrics.JanitorPrunedTotal.Add(float64(len(ids)))
	return nil
}

// pruneExpiredIdempotencyKeys drops idempotency entries past the
// retention window; replays beyond that are processed fresh.
func (j *Job) pruneExpiredIdempotencyKeys(ctx context.Context, now time.Time) error {
	if j.policy.IdempotencyRetention <= 0 {
		return nil
	}
	n, err := j.repo.Idempotency().DeleteOlderThan(ctx, now.Add(-j.policy.IdempotencyRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info().Int("count", n).Msg("janitor: pruned expired idempotency keys")
	}
	return nil
}

// pruneOldAnomalies drops anomalies past the retention window.
func (j *Job) pruneOldAnomalies(ctx context.Context, now time.Time) error {
	if j.policy.AnomalyRetention <= 0 {
		return nil
	}
	n, err := j.repo.Anomalies().DeleteOlderThan(ctx, now.Add(-j.policy.AnomalyRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info().Int("count", n).Msg("janitor: pruned aged-out anomalies")
	}
	return nil
}
