package jobgroup

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"archivehub/internal/models"
	"archivehub/internal/queue"
)

const pollerLockKey = "jobgroup_poller_lock"

// PollCycle runs one adaptive-interval poll pass: acquire the distributed
// lock (failing open on a store error), advance every non-terminal
// jobgroup's remote status, and release the lock in a finally-style
// guarantee, per spec section 4.8's polling contract. The returned bool
// reports whether any non-terminal jobgroup existed to advance, which the
// caller uses to choose the active vs. idle poll interval.
func (s *Service) PollCycle(ctx context.Context) (bool, error) {
	lock := queue.NewDistributedLock(s.queue.Client(), pollerLockKey)
	acquired, lockErr := lock.Acquire(ctx, s.cfg.JobgroupPollLockTTL)
	if lockErr != nil {
		s.logger.Warn("jobgroup poller lock store error, failing open", zap.Error(lockErr))
	} else if !acquired {
		return false, nil
	}
	if lockErr == nil {
		defer func() {
			if err := lock.Release(ctx); err != nil {
				s.logger.Warn("failed to release jobgroup poller lock", zap.Error(err))
			}
		}()
	}

	if s.cfg.JobgroupMockOutputDir != "" {
		return true, s.pollFromMockDirectory(ctx)
	}

	jobgroups, err := s.store.ListNonTerminalJobgroups(ctx)
	if err != nil {
		return false, err
	}

	for i, jg := range jobgroups {
		if err := s.advance(ctx, jg); err != nil {
			s.logger.Warn("failed to advance jobgroup", zap.String("jobgroup_id", jg.ID), zap.Error(err))
		}
		if lockErr == nil && i > 0 && i%5 == 0 {
			_ = lock.Refresh(ctx, s.cfg.JobgroupPollLockTTL)
		}
	}
	return len(jobgroups) > 0, nil
}

func (s *Service) advance(ctx context.Context, jg models.Jobgroup) error {
	remote, err := s.model.GetBatch(ctx, jg.ExternalJobgroupID)
	if err != nil {
		return err
	}

	switch remote.Status {
	case "completed":
		if remote.OutputFileID != "" {
			if err := s.store.SetJobgroupOutputFile(ctx, jg.ID, remote.OutputFileID); err != nil {
				return err
			}
		}
		jg.OutputFileID = remote.OutputFileID
		return s.ProcessResults(ctx, jg)
	case "failed", "expired":
		status := models.JobgroupFailed
		if remote.Status == "expired" {
			status = models.JobgroupExpired
		}
		if err := s.store.UpdateJobgroupStatus(ctx, jg.ID, status); err != nil {
			return err
		}
		detail := "remote status: " + remote.Status
		_ = s.store.AppendAudit(ctx, jg.ID, "failed", detail)
		s.writeAuditLine("failed", jg.ID, detail)
		s.http.notify(ctx, "jobgroup.failed", jg)
		return nil
	default:
		if jg.Status != models.JobgroupInProgress {
			return s.store.UpdateJobgroupStatus(ctx, jg.ID, models.JobgroupInProgress)
		}
		return nil
	}
}

// pollFromMockDirectory bypasses the remote API entirely, reading output
// files from JobgroupMockOutputDir keyed by jobgroup id -- used in local
// development and tests.
func (s *Service) pollFromMockDirectory(ctx context.Context) error {
	jobgroups, err := s.store.ListNonTerminalJobgroups(ctx)
	if err != nil {
		return err
	}
	for _, jg := range jobgroups {
		path := filepath.Join(s.cfg.JobgroupMockOutputDir, jg.ID+".jsonl")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := s.processOutputBytes(ctx, jg, data); err != nil {
			s.logger.Warn("failed to process mock jobgroup output", zap.String("jobgroup_id", jg.ID), zap.Error(err))
		}
	}
	return nil
}
