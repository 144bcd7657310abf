package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"archivehub/internal/archivist"
	"archivehub/internal/config"
	"archivehub/internal/jobgroup"
	"archivehub/internal/models"
	"archivehub/internal/queue"
	"archivehub/internal/resilience"
)

// ArchivistLoop drives the Archivist worker process: a non-blocking
// priority scan over [instant, standard, jobgroup] with a 1-second idle
// sleep, per spec section 4.4 -- blocking would starve the jobgroup
// poller, which this loop also owns (spec section 5: "the jobgroup
// poller runs inside the archivist worker process").
type ArchivistLoop struct {
	cfg      config.Config
	queue    *queue.Queue
	envelope *resilience.Envelope
	pipeline *archivist.Pipeline
	jobgroup *jobgroup.Service
	logger   *zap.Logger
	retry    resilience.RetryOptions
}

// NewArchivistLoop constructs an ArchivistLoop from its dependencies.
func NewArchivistLoop(cfg config.Config, q *queue.Queue, env *resilience.Envelope, pipeline *archivist.Pipeline, jg *jobgroup.Service, logger *zap.Logger) *ArchivistLoop {
	return &ArchivistLoop{
		cfg:      cfg,
		queue:    q,
		envelope: env,
		pipeline: pipeline,
		jobgroup: jg,
		logger:   logger,
		retry: resilience.RetryOptions{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Jitter:     cfg.Jitter,
		},
	}
}

var archivistQueueOrder = []string{
	queue.KeyArchivistInstant,
	queue.KeyArchivistStandard,
	queue.KeyArchivistJobgroup,
}

// Run blocks until ctx is cancelled, dispatching individual jobs and
// running the jobgroup poller on its own adaptive-interval ticker.
func (l *ArchivistLoop) Run(ctx context.Context) {
	go l.runPoller(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, sourceKey, found := l.popNext(ctx)
		if !found {
			sleepOrDone(ctx, l.cfg.ArchivistIdleSleep)
			continue
		}
		l.dispatch(ctx, sourceKey, raw)
	}
}

// popNext scans the three archivist queues in strict priority order,
// returning the first non-empty one.
func (l *ArchivistLoop) popNext(ctx context.Context) (raw, key string, found bool) {
	for _, k := range archivistQueueOrder {
		v, err := l.queue.PopRaw(ctx, k)
		if err != nil {
			l.logger.Error("archivist queue unreachable, backing off", zap.String("queue", k), zap.Error(err))
			sleepOrDone(ctx, 5*time.Second)
			return "", "", false
		}
		if v != "" {
			return v, k, true
		}
	}
	return "", "", false
}

func (l *ArchivistLoop) dispatch(ctx context.Context, sourceKey, raw string) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		l.logger.Warn("dropping unparsable archivist job", zap.String("queue", sourceKey), zap.Error(err))
		_ = l.queue.RequeueRaw(ctx, queue.DLQKeyFor(string(models.WorkerArchivist)), raw)
		return
	}

	if sourceKey == queue.KeyArchivistJobgroup {
		// Individual jobs routed to the jobgroup lane delegate to the
		// subsystem rather than calling the model directly, per spec
		// section 4.7's final note.
		jc := resilience.JobContext{
			Worker:   models.WorkerArchivist,
			JobType:  "archivist.jobgroup",
			TenantID: stringField(payload, "tenant_id"),
			AssetID:  stringField(payload, "asset_id"),
			BatchID:  stringField(payload, "batch_id"),
		}
		_ = l.envelope.Run(ctx, jc, l.retry, func(ctx context.Context) error {
			_, err := l.jobgroup.Submit(ctx, []map[string]any{payload})
			return err
		})
		return
	}

	var job models.ArchivistJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		l.logger.Warn("dropping unparsable archivist job", zap.String("queue", sourceKey), zap.Error(err))
		_ = l.queue.RequeueRaw(ctx, queue.DLQKeyFor(string(models.WorkerArchivist)), raw)
		return
	}
	jc := resilience.JobContext{
		Worker:   models.WorkerArchivist,
		JobType:  job.JobType,
		TenantID: job.TenantID,
		AssetID:  job.AssetID,
		BatchID:  job.BatchID,
	}
	_ = l.envelope.Run(ctx, jc, l.retry, func(ctx context.Context) error {
		_, runErr := l.pipeline.Run(ctx, job)
		return runErr
	})
}

// runPoller drives the jobgroup poller on an adaptive-interval ticker:
// the active interval after a cycle that advanced work, the idle
// interval after a quiet one.
func (l *ArchivistLoop) runPoller(ctx context.Context) {
	interval := l.cfg.JobgroupPollIdleInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		advanced, err := l.jobgroup.PollCycle(ctx)
		if err != nil {
			l.logger.Warn("jobgroup poll cycle failed", zap.Error(err))
		}

		if advanced {
			interval = l.cfg.JobgroupPollActiveInterval
		} else {
			interval = l.cfg.JobgroupPollIdleInterval
		}
		timer.Reset(interval)
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
