// Package worker runs the per-process job dispatch loops: one blocking
// priority pop for the Machinist worker, one non-blocking priority scan
// for the Archivist worker (interleaved with the jobgroup poller).
// Grounded on the teacher's processor.Run loop shape (pop -> parse ->
// dispatch -> swallow handler errors -> continue), split into two
// worker-specific loops instead of one generic handler-registry
// processor, per spec section 4.4's per-worker queue ordering.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"archivehub/internal/config"
	"archivehub/internal/machinist"
	"archivehub/internal/models"
	"archivehub/internal/queue"
	"archivehub/internal/resilience"
)

// MachinistLoop drives the Machinist worker process: blocking pop over
// [instant, standard] with a 30-second block, sequential dispatch, no
// intra-worker parallelism.
type MachinistLoop struct {
	cfg      config.Config
	queue    *queue.Queue
	envelope *resilience.Envelope
	pipeline *machinist.Pipeline
	logger   *zap.Logger
	retry    resilience.RetryOptions
}

// NewMachinistLoop constructs a MachinistLoop from its dependencies.
func NewMachinistLoop(cfg config.Config, q *queue.Queue, env *resilience.Envelope, pipeline *machinist.Pipeline, logger *zap.Logger) *MachinistLoop {
	return &MachinistLoop{
		cfg:      cfg,
		queue:    q,
		envelope: env,
		pipeline: pipeline,
		logger:   logger,
		retry: resilience.RetryOptions{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Jitter:     cfg.Jitter,
		},
	}
}

// Run blocks until ctx is cancelled. Shutdown is cooperative: the loop
// checks ctx at the top of each iteration and lets an in-flight job run
// to its retry/DLQ terminal before exiting.
func (l *MachinistLoop) Run(ctx context.Context) {
	keys := []string{queue.KeyMachinistInstant, queue.KeyMachinistStandard}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := l.queue.BlockingPop(ctx, keys, l.cfg.MachinistBlockTimeout)
		if err != nil {
			l.logger.Error("machinist queue unreachable, backing off", zap.Error(err))
			sleepOrDone(ctx, 5*time.Second)
			continue
		}
		if raw == "" {
			continue // timed out with nothing ready
		}

		var job models.MachinistJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			l.logger.Warn("dropping unparsable machinist job", zap.Error(err))
			_ = l.queue.RequeueRaw(ctx, queue.DLQKeyFor(string(models.WorkerMachinist)), raw)
			continue
		}

		jc := resilience.JobContext{
			Worker:   models.WorkerMachinist,
			JobType:  job.JobType,
			TenantID: job.TenantID,
			AssetID:  job.AssetID,
			BatchID:  job.BatchID,
			Purpose:  job.FilePurpose,
		}
		_ = l.envelope.Run(ctx, jc, l.retry, func(ctx context.Context) error {
			_, runErr := l.pipeline.Run(ctx, job)
			return runErr
		})
	}
}

// sleepOrDone sleeps for d unless ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
