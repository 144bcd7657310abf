package jobgroup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cancel posts a cancellation to the external batch endpoint and records
// status=cancelled plus a timestamp in notes, per spec section 4.8's
// cancellation contract.
func (s *Service) Cancel(ctx context.Context, jobgroupID string) error {
	jg, err := s.store.GetJobgroup(ctx, jobgroupID)
	if err != nil {
		return err
	}
	if jg.Status.IsTerminal() {
		return nil
	}

	if _, err := s.model.CancelBatch(ctx, jg.ExternalJobgroupID); err != nil {
		s.logger.Warn("failed to cancel external batch, recording local cancellation anyway", zap.Error(err))
	}

	notes := jg.Notes
	if notes == nil {
		notes = map[string]any{}
	}
	notes["cancelled_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.store.UpdateJobgroupNotes(ctx, jobgroupID, notes); err != nil {
		return err
	}
	if err := s.store.SetJobgroupCancelled(ctx, jobgroupID); err != nil {
		return err
	}
	_ = s.store.AppendAudit(ctx, jobgroupID, "cancelled", "operator-triggered cancellation")
	s.http.notify(ctx, "jobgroup.cancelled", jg)
	return nil
}
