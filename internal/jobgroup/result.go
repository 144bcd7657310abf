package jobgroup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"archivehub/internal/archivist"
	"archivehub/internal/models"
	"archivehub/internal/queue"
)

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		Body struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ProcessResults fetches the output file for a completed jobgroup and
// distributes its records, per spec section 4.8's result-processing
// contract.
func (s *Service) ProcessResults(ctx context.Context, jg models.Jobgroup) error {
	if jg.OutputFileID == "" {
		return nil
	}
	data, err := s.model.DownloadFile(ctx, jg.OutputFileID, s.cfg.MaxInputBytes)
	if err != nil {
		return err
	}
	return s.processOutputBytes(ctx, jg, data)
}

func (s *Service) processOutputBytes(ctx context.Context, jg models.Jobgroup, data []byte) error {
	lines := splitNonEmptyLines(data)

	existing, err := s.store.CountJobgroupResults(ctx, jg.ID)
	if err != nil {
		return err
	}
	if existing == len(lines) && len(lines) > 0 {
		_ = s.store.UpdateJobgroupStatus(ctx, jg.ID, models.JobgroupCompleted)
		_ = s.store.AppendAudit(ctx, jg.ID, "completed", "shortcut: already_complete")
		s.writeAuditLine("completed", jg.ID, "shortcut: already_complete")
		return nil
	}

	chunkSize := s.cfg.JobgroupChunkSize
	if chunkSize <= 0 {
		chunkSize = 25
	}

	var processed, failed, skipped int
	lock := queue.NewDistributedLock(s.queue.Client(), pollerLockKey)

	for start := 0; start < len(lines); start += chunkSize {
		end := start + chunkSize
		if end > len(lines) {
			end = len(lines)
		}
		chunk := lines[start:end]

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, raw := range chunk {
			wg.Add(1)
			go func(raw []byte) {
				defer wg.Done()
				outcome := s.processOutputLine(ctx, jg, raw)
				mu.Lock()
				switch outcome {
				case outcomeProcessed:
					processed++
				case outcomeFailed:
					failed++
				case outcomeSkipped:
					skipped++
				}
				mu.Unlock()
			}(raw)
		}
		wg.Wait()
		_ = lock.Refresh(ctx, s.cfg.JobgroupPollLockTTL)
	}

	finalStatus := models.JobgroupCompleted
	if failed > 0 {
		finalStatus = models.JobgroupFailed
	}
	if err := s.store.UpdateJobgroupStatus(ctx, jg.ID, finalStatus); err != nil {
		return err
	}
	detail := fmt.Sprintf(`{"processed":%d,"failed":%d,"skipped":%d}`, processed, failed, skipped)
	_ = s.store.AppendAudit(ctx, jg.ID, string(finalStatus), detail)
	s.writeAuditLine(string(finalStatus), jg.ID, detail)
	if finalStatus == models.JobgroupCompleted {
		s.http.notify(ctx, "jobgroup.completed", jg)
	} else {
		s.http.notify(ctx, "jobgroup.failed", jg)
	}
	return nil
}

type lineOutcome int

const (
	outcomeProcessed lineOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *Service) processOutputLine(ctx context.Context, jg models.Jobgroup, raw []byte) lineOutcome {
	var line outputLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return outcomeSkipped
	}
	assetID := strings.TrimPrefix(line.CustomID, "asset-")
	if assetID == "" || assetID == line.CustomID {
		return outcomeSkipped
	}

	if existing, found, err := s.store.GetJobgroupResult(ctx, jg.ID, assetID); err == nil && found {
		_ = existing
		return outcomeSkipped
	}

	tenantID, batchID, err := s.store.LookupAssetContext(ctx, assetID)
	if err != nil {
		s.recordFailure(ctx, jg, assetID, line.CustomID, "ASSET_LOOKUP_FAILED", err.Error())
		return outcomeFailed
	}

	if line.Error != nil {
		s.recordFailure(ctx, jg, assetID, line.CustomID, "MODEL_ERROR", line.Error.Message)
		return outcomeFailed
	}

	var content string
	if line.Response != nil && len(line.Response.Body.Choices) > 0 {
		content = line.Response.Body.Choices[0].Message.Content
	}
	parsed := archivist.ParseModelContent(content, s.cfg.OpenAIMaxJSONBytes)
	normalized := archivist.Normalize(parsed, s.cfg.AllowedTags)

	if _, err := s.store.UpsertAIDescription(ctx, models.AIDescription{
		TenantID:    tenantID,
		AssetID:     assetID,
		BatchID:     batchID,
		Description: normalized.Description,
		Keywords:    normalized.Keywords,
		Tags:        normalized.Tags,
		Spatial:     normalized.Spatial,
		Temporal:    normalized.Temporal,
	}); err != nil {
		s.recordFailure(ctx, jg, assetID, line.CustomID, "UPSERT_FAILED", err.Error())
		return outcomeFailed
	}

	if _, err := s.store.UpsertJobgroupResult(ctx, models.JobgroupResult{
		JobgroupID: jg.ID,
		AssetID:    assetID,
		Status:     models.ResultCompleted,
		CustomID:   line.CustomID,
	}); err != nil {
		s.logger.Warn("failed to upsert jobgroup result", zap.String("jobgroup_id", jg.ID), zap.String("asset_id", assetID), zap.Error(err))
		return outcomeFailed
	}
	return outcomeProcessed
}

func (s *Service) recordFailure(ctx context.Context, jg models.Jobgroup, assetID, customID, code, message string) {
	if _, err := s.store.UpsertJobgroupResult(ctx, models.JobgroupResult{
		JobgroupID:   jg.ID,
		AssetID:      assetID,
		Status:       models.ResultFailed,
		ErrorCode:    code,
		ErrorMessage: message,
		CustomID:     customID,
	}); err != nil {
		s.logger.Warn("failed to record jobgroup result failure", zap.String("jobgroup_id", jg.ID), zap.Error(err))
	}
	entry := models.DLQEntry{
		ID:        fmt.Sprintf("dlq-jgresult-%d", time.Now().UnixNano()),
		JobType:   "archivist.jobgroup-result",
		TenantID:  jg.TenantID,
		AssetID:   assetID,
		BatchID:   jg.BatchID,
		Reason:    fmt.Sprintf("%s: %s", code, message),
		Timestamp: time.Now().UTC(),
	}
	if err := s.queue.Push(ctx, queue.DLQKeyFor(string(models.WorkerArchivist)), entry); err != nil {
		s.logger.Warn("failed to push jobgroup-result dlq entry", zap.Error(err))
	}
}

func splitNonEmptyLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
