// Package archivist implements the AI-description pipeline: download a
// derivative, re-encode it small enough to embed, prompt the model API,
// normalize the response, and upsert an ai_descriptions row. Grounded on
// the teacher's imaging re-encode loop (image_handler.go) adapted into a
// shrink-until-it-fits search, and on internal/modelapi for the network
// call.
package archivist

import (
	"bytes"
	"context"
	"encoding/base64"
	"time"

	"github.com/disintegration/imaging"

	"archivehub/internal/blobstore"
	"archivehub/internal/config"
	"archivehub/internal/errs"
	"archivehub/internal/modelapi"
	"archivehub/internal/models"
	"archivehub/internal/resilience"
	"archivehub/internal/store"
)

const maxEncodedBytes = 10 * 1024 * 1024

var qualitySteps = []int{85, 80, 70, 60, 50, 40}

// Pipeline runs the individual archivist workflow for a single asset.
type Pipeline struct {
	cfg    config.Config
	blobs  *blobstore.Store
	store  *store.Store
	model  *modelapi.Client
	retry  resilience.RetryOptions
}

// New constructs a Pipeline from its dependencies.
func New(cfg config.Config, blobs *blobstore.Store, st *store.Store, model *modelapi.Client) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		blobs: blobs,
		store: st,
		model: model,
		retry: resilience.RetryOptions{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Jitter:     cfg.Jitter,
		},
	}
}

// Result is the pipeline's output contract.
type Result struct {
	Status      string                `json:"status"`
	Description models.AIDescription `json:"description"`
}

// Run executes the individual AI-description workflow. If job carries
// ProcessingType "jobgroup", the caller should route to the jobgroup
// subsystem instead of calling Run directly -- see spec section 4.7's
// final note.
func (p *Pipeline) Run(ctx context.Context, job models.ArchivistJob) (Result, error) {
	start := time.Now()

	source, err := p.fetchSource(ctx, job)
	if err != nil {
		return Result{}, err
	}

	encoded, err := shrinkToFit(source, maxEncodedBytes)
	if err != nil {
		return Result{}, err
	}
	b64 := base64.StdEncoding.EncodeToString(encoded)

	messages := BuildPromptMessages(job, p.cfg.AllowedTags)
	messages = append(messages, modelapi.ChatMessage{
		Role: "user",
		Content: []map[string]any{
			{"type": "image_url", "image_url": map[string]string{"url": "data:image/jpeg;base64," + b64}},
		},
	})

	var resp modelapi.ChatCompletionResponse
	callErr := resilience.WithRetry(ctx, p.retry, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = p.model.ChatCompletion(ctx, modelapi.ChatCompletionRequest{
			Model:    p.cfg.ModelName,
			Messages: messages,
		})
		return innerErr
	})
	if callErr != nil {
		return Result{}, callErr
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	parsed := ParseModelContent(content, p.cfg.OpenAIMaxJSONBytes)
	normalized := Normalize(parsed, p.cfg.AllowedTags)

	desc := models.AIDescription{
		TenantID:    job.TenantID,
		AssetID:     job.AssetID,
		BatchID:     job.BatchID,
		Description: normalized.Description,
		Keywords:    normalized.Keywords,
		Tags:        normalized.Tags,
		Spatial:     normalized.Spatial,
		Temporal:    normalized.Temporal,
	}
	saved, err := p.store.UpsertAIDescription(ctx, desc)
	if err != nil {
		return Result{}, err
	}

	notes := map[string]any{
		"started_at":  start.UTC().Format(time.RFC3339Nano),
		"finished_at": time.Now().UTC().Format(time.RFC3339Nano),
		"duration_ms": time.Since(start).Milliseconds(),
		"model":       p.cfg.ModelName,
		"usage":       resp.Usage,
	}
	if err := p.store.UpdateAIDescriptionNotes(ctx, job.TenantID, job.AssetID, notes); err != nil {
		return Result{}, err
	}

	return Result{Status: "complete", Description: saved}, nil
}

// fetchSource downloads ai/ai.jpg if present, falling back to
// viewing/viewing.jpg, per spec section 4.7 step 1.
func (p *Pipeline) fetchSource(ctx context.Context, job models.ArchivistJob) ([]byte, error) {
	preferred := blobstore.DerivativeKey(job.TenantID, job.BatchID, job.AssetID, "ai", blobstore.AIDerivative)
	if exists, err := p.blobs.Exists(ctx, blobstore.BucketStandard, preferred); err == nil && exists {
		return p.blobs.Get(ctx, blobstore.BucketStandard, preferred, p.cfg.MaxInputBytes)
	}
	fallback := blobstore.DerivativeKey(job.TenantID, job.BatchID, job.AssetID, "viewing", blobstore.Viewing)
	if exists, err := p.blobs.Exists(ctx, blobstore.BucketStandard, fallback); err == nil && exists {
		return p.blobs.Get(ctx, blobstore.BucketStandard, fallback, p.cfg.MaxInputBytes)
	}
	return nil, &errs.ResourceError{Code: "SOURCE_NOT_FOUND", Message: "neither ai nor viewing derivative exists for asset " + job.AssetID}
}

// shrinkToFit re-encodes buf as JPEG, stepping down quality until the
// result fits within maxBytes. If even the lowest quality step still
// exceeds the budget, it returns the smallest result obtained rather than
// failing the job -- the budget is a soft target for the model's payload
// limit, not a hard correctness constraint.
func shrinkToFit(buf []byte, maxBytes int) ([]byte, error) {
	img, _, err := decodeAny(buf)
	if err != nil {
		return nil, &errs.UnsupportedMediaError{Code: "DECODE_FAILED", Message: "could not decode source image: " + err.Error()}
	}
	var smallest []byte
	for _, quality := range qualitySteps {
		out := &bytes.Buffer{}
		if err := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			continue
		}
		if smallest == nil || out.Len() < len(smallest) {
			smallest = out.Bytes()
		}
		if out.Len() <= maxBytes {
			return out.Bytes(), nil
		}
	}
	if smallest == nil {
		return nil, &errs.ResourceError{Code: "ENCODE_FAILED", Message: "could not encode source image at any quality step"}
	}
	return smallest, nil
}
