package resilience

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"archivehub/internal/config"
	"archivehub/internal/models"
	"archivehub/internal/queue"
	"archivehub/internal/store"
	"archivehub/internal/telemetry"
)

// JobContext carries the identifiers the envelope needs to log, record
// metrics, and build a DLQEntry without depending on a specific job's
// payload shape.
type JobContext struct {
	Worker   models.Worker
	JobType  string
	TenantID string
	AssetID  string
	BatchID  string
	Purpose  models.FilePurpose
}

// key returns the tenant:batch:asset timer key Run logs as timer_key; if
// any part is unknown, a time-based suffix is appended, per spec section
// 4.5.
func (j JobContext) key() string {
	tenant, asset, batch := j.TenantID, j.AssetID, j.BatchID
	suffix := ""
	if tenant == "" || asset == "" || batch == "" {
		suffix = fmt.Sprintf("-%d", time.Now().UnixNano())
	}
	if tenant == "" {
		tenant = "unknown"
	}
	if asset == "" {
		asset = "unknown"
	}
	if batch == "" {
		batch = "none"
	}
	return fmt.Sprintf("%s:%s:%s%s", tenant, batch, asset, suffix)
}

// Envelope wraps handler invocations with retry, DLQ routing, audit
// logging, and metrics -- grounded on the success/failure branches of the
// teacher's processor.Run loop, generalized into a reusable wrapper any
// handler can run through instead of one hardcoded worker loop.
type Envelope struct {
	cfg       config.Config
	queue     *queue.Queue
	store     *store.Store
	telemetry *telemetry.Telemetry
	logger    *zap.Logger
	http      *http.Client
}

// NewEnvelope builds an Envelope from its dependencies.
func NewEnvelope(cfg config.Config, q *queue.Queue, st *store.Store, tel *telemetry.Telemetry, logger *zap.Logger) *Envelope {
	return &Envelope{
		cfg:       cfg,
		queue:     q,
		store:     st,
		telemetry: tel,
		logger:    logger,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Run executes fn under the full envelope: start/end recording, retry with
// jitter, and dead-letter routing for any job that still fails, whether
// its retries ran out or its error was not retryable.
func (e *Envelope) Run(ctx context.Context, jc JobContext, opts RetryOptions, fn func(ctx context.Context) error) error {
	start := time.Now()
	timerKey := jc.key()
	e.logger.Info("job started", zap.String("worker", string(jc.Worker)), zap.String("job_type", jc.JobType),
		zap.String("tenant_id", jc.TenantID), zap.String("asset_id", jc.AssetID), zap.String("batch_id", jc.BatchID),
		zap.String("timer_key", timerKey))

	attempts := 0
	err := WithRetry(ctx, opts, func(ctx context.Context) error {
		attempts++
		return fn(ctx)
	})
	elapsed := time.Since(start)

	if attempts > 1 {
		e.telemetry.RetryAttempts.WithLabelValues(string(jc.Worker)).Add(float64(attempts - 1))
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.telemetry.JobDuration.WithLabelValues(string(jc.Worker), outcome).Observe(elapsed.Seconds())

	if err != nil {
		e.logger.Warn("job failed", zap.String("worker", string(jc.Worker)), zap.String("asset_id", jc.AssetID),
			zap.Duration("elapsed", elapsed), zap.Error(err))
		e.telemetry.JobsFailed.WithLabelValues(string(jc.Worker)).Inc()
		e.SendToDLQ(ctx, jc, err.Error())
		return err
	}

	e.logger.Info("job succeeded", zap.String("worker", string(jc.Worker)), zap.String("asset_id", jc.AssetID),
		zap.Duration("elapsed", elapsed))
	e.telemetry.JobsSucceeded.WithLabelValues(string(jc.Worker)).Inc()

	if jc.BatchID != "" {
		e.UpdateBatchStatus(ctx, jc.BatchID, models.BatchInProgress, "job completed for batch")
	}
	return nil
}

// SendToDLQ constructs a DLQEntry carrying only identifiers and a reason,
// pushes it to dlq:<worker>, best-effort records failed_reason on the
// affected asset-version row, and notifies the configured webhook. It
// never returns an error and never panics -- per spec section 4.5,
// sendToDLQ itself must never throw.
func (e *Envelope) SendToDLQ(ctx context.Context, jc JobContext, reason string) {
	entry := models.DLQEntry{
		ID:        timerSuffix(),
		JobType:   jc.JobType,
		TenantID:  jc.TenantID,
		AssetID:   jc.AssetID,
		BatchID:   jc.BatchID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	dlqKey := queue.DLQKeyFor(string(jc.Worker))
	if err := e.queue.Push(ctx, dlqKey, entry); err != nil {
		e.logger.Error("failed to push dlq entry", zap.Error(err), zap.String("worker", string(jc.Worker)))
	}
	e.telemetry.JobsDeadLettered.WithLabelValues(string(jc.Worker)).Inc()

	if jc.AssetID != "" && jc.Purpose != "" {
		if err := e.store.MarkAssetVersionFailed(ctx, jc.AssetID, jc.Purpose, "original", "original", reason); err != nil {
			e.logger.Warn("failed to mark asset_version failed", zap.Error(err), zap.String("asset_id", jc.AssetID))
		}
	}

	ref := entry.AssetID
	if ref == "" {
		ref = entry.ID
	}
	if err := e.store.AppendAudit(ctx, ref, "dead_letter", reason); err != nil {
		e.logger.Warn("failed to append dlq audit", zap.Error(err))
	}

	e.notifyWebhook(ctx, entry)
}

func (e *Envelope) notifyWebhook(ctx context.Context, entry models.DLQEntry) {
	if e.cfg.DLQWebhookURL == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("dlq webhook notification panicked", zap.Any("recover", r))
		}
	}()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.DLQWebhookURL, nil)
	if err != nil {
		e.logger.Warn("failed to build dlq webhook request", zap.Error(err))
		return
	}
	resp, err := e.http.Do(req)
	if err != nil {
		e.logger.Warn("dlq webhook notification failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

// UpdateBatchStatus records a batch-level status transition in the audit
// trail. spec.md names no dedicated batch table; the audit log is the
// durable record of batch lifecycle events, keyed by batch_id.
func (e *Envelope) UpdateBatchStatus(ctx context.Context, batchID string, status models.BatchStatus, detail string) {
	if batchID == "" {
		return
	}
	if err := e.store.AppendAudit(ctx, batchID, "batch_status:"+string(status), detail); err != nil {
		e.logger.Warn("failed to record batch status", zap.String("batch_id", batchID), zap.Error(err))
	}
}

func timerSuffix() string {
	return fmt.Sprintf("dlq-%d", time.Now().UnixNano())
}
