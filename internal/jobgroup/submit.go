// Package jobgroup implements the offline-batch subsystem: submit up to N
// archivist requests as one external batch job, poll it to completion
// under a distributed lock, and distribute results back into
// ai_descriptions. Grounded on the teacher's Redis TxPipeline/Lua-script
// idioms (internal/queue/redis_queue.go) applied to a SET NX EX lock, and
// its ScheduledBatchSize-bounded chunk processing applied to the 25-wide
// bounded-concurrency result loop spec section 4.8 requires.
package jobgroup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"archivehub/internal/config"
	"archivehub/internal/errs"
	"archivehub/internal/modelapi"
	"archivehub/internal/models"
	"archivehub/internal/queue"
	"archivehub/internal/store"
	"archivehub/internal/validate"
)

// Service runs the submission, polling, and result-processing workflows.
type Service struct {
	cfg    config.Config
	store  *store.Store
	model  *modelapi.Client
	queue  *queue.Queue
	logger *zap.Logger
	http   *webhookNotifier
}

// New constructs a Service from its dependencies.
func New(cfg config.Config, st *store.Store, model *modelapi.Client, q *queue.Queue, logger *zap.Logger) *Service {
	return &Service{cfg: cfg, store: st, model: model, queue: q, logger: logger, http: newWebhookNotifier(cfg.JobgroupWebhookURL, logger)}
}

// SubmitResult is Submit's output contract.
type SubmitResult struct {
	JobgroupID         string `json:"jobgroup_id"`
	ExternalJobgroupID string `json:"external_jobgroup_id"`
	InputFileID        string `json:"input_file_id"`
	Status             string `json:"status"`
	RequestCount       int    `json:"request_count"`
}

type jsonlLine struct {
	CustomID string         `json:"custom_id"`
	Method   string         `json:"method"`
	URL      string         `json:"url"`
	Body     map[string]any `json:"body"`
}

// Submit validates jobs, assembles and uploads a JSONL batch file, creates
// the external batch, and persists the jobgroups row, per spec section
// 4.8's submission contract.
func (s *Service) Submit(ctx context.Context, rawJobs []map[string]any) (SubmitResult, error) {
	var validJobs []models.ArchivistJob
	for _, raw := range rawJobs {
		job, err := validate.Archivist(raw)
		if err != nil {
			s.logger.Warn("skipping invalid jobgroup entry", zap.Error(err))
			continue
		}
		validJobs = append(validJobs, job)
	}
	if len(validJobs) == 0 {
		return SubmitResult{}, &errs.ValidationError{Code: "NO_VALID_JOBS", Message: "no valid jobs to submit"}
	}

	tenantID := validJobs[0].TenantID
	batchID := validJobs[0].BatchID

	if err := s.checkThrottle(ctx, tenantID); err != nil {
		return SubmitResult{}, err
	}

	workDir, err := os.MkdirTemp(s.cfg.JobgroupWorkDir, "jobgroup-*")
	if err != nil {
		return SubmitResult{}, &errs.ResourceError{Code: "workdir_unavailable", Message: "failed to create jobgroup working directory"}
	}
	if err := os.Chmod(workDir, 0o700); err != nil {
		os.RemoveAll(workDir)
		return SubmitResult{}, &errs.ResourceError{Code: "workdir_unavailable", Message: "failed to secure jobgroup working directory"}
	}

	jsonlPath := filepath.Join(workDir, "input.jsonl")
	var buf bytes.Buffer
	for _, job := range validJobs {
		line := jsonlLine{
			CustomID: "asset-" + job.AssetID,
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body: map[string]any{
				"model":    s.cfg.ModelName,
				"messages": []map[string]string{{"role": "user", "content": "describe asset " + job.AssetID}},
			},
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			s.logger.Warn("skipping jobgroup entry that failed to marshal", zap.Error(err))
			continue
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(jsonlPath, buf.Bytes(), 0o600); err != nil {
		return SubmitResult{}, &errs.ResourceError{Code: "jsonl_write_failed", Message: err.Error()}
	}

	inputFileID, err := s.model.UploadBatchFile(ctx, "input.jsonl", buf.Bytes())
	if err != nil {
		return SubmitResult{}, err
	}

	metadata := map[string]any{"tenant_id": tenantID, "mode": "jobgroup"}
	if batchID != "" {
		metadata["batch_id"] = batchID
	}
	batchResp, err := s.model.CreateBatch(ctx, inputFileID, metadata)
	if err != nil {
		return SubmitResult{}, err
	}

	status := models.JobgroupCreated
	if batchResp.Status != "" {
		status = models.JobgroupStatus(batchResp.Status)
	}

	jg, err := s.store.CreateJobgroup(ctx, models.Jobgroup{
		TenantID:           tenantID,
		BatchID:            batchID,
		ExternalJobgroupID: batchResp.ID,
		InputFileID:        inputFileID,
		Status:             status,
		RequestCount:       len(validJobs),
		Notes:              map[string]any{"jsonl_path": jsonlPath, "work_dir": workDir},
	})
	if err != nil {
		return SubmitResult{}, err
	}

	auditDetail := fmt.Sprintf("jobgroup created with %d requests", len(validJobs))
	_ = s.store.AppendAudit(ctx, jg.ID, "created", auditDetail)
	s.writeAuditLine("created", jg.ID, auditDetail)
	s.http.notify(ctx, "jobgroup.created", jg)

	go s.pollOnce(context.Background())

	return SubmitResult{
		JobgroupID:         jg.ID,
		ExternalJobgroupID: jg.ExternalJobgroupID,
		InputFileID:        jg.InputFileID,
		Status:             string(jg.Status),
		RequestCount:       jg.RequestCount,
	}, nil
}

// checkThrottle enforces at-most-one active jobgroup per tenant and a cap
// of 5 created in the trailing 24 hours, per spec section 4.8's
// preconditions.
func (s *Service) checkThrottle(ctx context.Context, tenantID string) error {
	active, err := s.store.CountNonTerminalJobgroupsForTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if active >= s.cfg.JobgroupMaxActivePerTenant {
		return &errs.ValidationError{Code: "JOBGROUP_ALREADY_ACTIVE", Message: "tenant already has a non-terminal jobgroup"}
	}
	recent, err := s.store.CountJobgroupsCreatedSince(ctx, tenantID, time.Now().Add(-24*time.Hour))
	if err != nil {
		return err
	}
	if recent >= s.cfg.JobgroupMaxPer24h {
		return &errs.ValidationError{Code: "JOBGROUP_RATE_LIMITED", Message: "tenant exceeded jobgroup creation rate in trailing 24h"}
	}
	return nil
}

// pollOnce runs a single best-effort poll cycle right after submission to
// reduce initial latency; failures are logged, never propagated.
func (s *Service) pollOnce(ctx context.Context) {
	if _, err := s.PollCycle(ctx); err != nil {
		s.logger.Warn("post-submit poll cycle failed", zap.Error(err))
	}
}
