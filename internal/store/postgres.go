// Package store implements the Postgres-backed durable record layer: asset
// versions, AI descriptions, jobgroups and their results, and the audit
// trail. Asset versions, AI descriptions and jobgroup results are written
// as idempotent upserts keyed on the tuple the spec names; audit rows and
// new jobgroups are plain inserts. There is no cross-table transaction by
// design: each table reconciles independently against repeated delivery.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"archivehub/internal/errs"
	"archivehub/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity to Postgres, used by the control plane's
// health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func textOrNil(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func jsonbOf(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func unmarshalSlice(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var s []string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return s
}

func isTransient(err error) bool {
	return !errors.Is(err, pgx.ErrNoRows)
}

// UpsertAssetVersion writes or updates the row keyed on
// (asset_id, purpose, variant, type).
func (s *Store) UpsertAssetVersion(ctx context.Context, v models.AssetVersion) (models.AssetVersion, error) {
	metadata, err := jsonbOf(v.Metadata)
	if err != nil {
		return models.AssetVersion{}, &errs.SerializationError{Message: "marshal metadata", Cause: err}
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO asset_versions (
			id, asset_id, tenant_id, batch_id, purpose, variant, type,
			bucket_label, storage_key, status, file_size, width, height,
			bit_depth, color_space, mime_type, checksum, checksum_algorithm,
			metadata, failed_reason, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,NOW(),NOW()
		)
		ON CONFLICT (asset_id, purpose, variant, type) DO UPDATE SET
			bucket_label = EXCLUDED.bucket_label,
			storage_key = EXCLUDED.storage_key,
			status = EXCLUDED.status,
			file_size = EXCLUDED.file_size,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			bit_depth = EXCLUDED.bit_depth,
			color_space = EXCLUDED.color_space,
			mime_type = EXCLUDED.mime_type,
			checksum = EXCLUDED.checksum,
			checksum_algorithm = EXCLUDED.checksum_algorithm,
			metadata = EXCLUDED.metadata,
			failed_reason = EXCLUDED.failed_reason,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		v.ID, v.AssetID, v.TenantID, textOrNil(v.BatchID), string(v.Purpose), v.Variant, v.Type,
		v.BucketLabel, v.StorageKey, string(v.Status), nullIfZero(v.FileSize), nullIfZero(int64(v.Width)),
		nullIfZero(int64(v.Height)), nullIfZero(int64(v.BitDepth)), textOrNil(v.ColorSpace),
		textOrNil(v.MimeType), textOrNil(v.Checksum), textOrNil(v.ChecksumAlgorithm), metadata,
		textOrNil(v.FailedReason),
	)
	if err := row.Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return models.AssetVersion{}, &errs.StoreError{Transient: isTransient(err), Message: "upsert asset_version", Cause: err}
	}
	return v, nil
}

// MarkAssetVersionFailed records a terminal failure for an in-flight
// derivative without requiring the full record.
func (s *Store) MarkAssetVersionFailed(ctx context.Context, assetID string, purpose models.FilePurpose, variant, typ, reason string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE asset_versions SET status = $1, failed_reason = $2, updated_at = NOW()
		WHERE asset_id = $3 AND purpose = $4 AND variant = $5 AND type = $6`,
		string(models.VersionFailed), reason, assetID, string(purpose), variant, typ)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "mark asset_version failed", Cause: err}
	}
	if ct.RowsAffected() == 0 {
		return &errs.ResourceError{Code: "not_found", Message: "asset_version not found"}
	}
	return nil
}

// GetAssetVersion fetches a single derivative record by its unique tuple.
func (s *Store) GetAssetVersion(ctx context.Context, assetID string, purpose models.FilePurpose, variant, typ string) (models.AssetVersion, error) {
	var v models.AssetVersion
	var batchID, colorSpace, mimeType, checksum, checksumAlg, failedReason pgtype.Text
	var metadata []byte
	var purposeStr, status string

	row := s.pool.QueryRow(ctx, `
		SELECT id, asset_id, tenant_id, batch_id, purpose, variant, type, bucket_label,
		       storage_key, status, COALESCE(file_size,0), COALESCE(width,0), COALESCE(height,0),
		       COALESCE(bit_depth,0), color_space, mime_type, checksum, checksum_algorithm,
		       metadata, failed_reason, created_at, updated_at
		FROM asset_versions WHERE asset_id=$1 AND purpose=$2 AND variant=$3 AND type=$4`,
		assetID, string(purpose), variant, typ)
	if err := row.Scan(&v.ID, &v.AssetID, &v.TenantID, &batchID, &purposeStr, &v.Variant, &v.Type,
		&v.BucketLabel, &v.StorageKey, &status, &v.FileSize, &v.Width, &v.Height, &v.BitDepth,
		&colorSpace, &mimeType, &checksum, &checksumAlg, &metadata, &failedReason,
		&v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AssetVersion{}, &errs.ResourceError{Code: "not_found", Message: "asset_version not found"}
		}
		return models.AssetVersion{}, &errs.StoreError{Transient: isTransient(err), Message: "get asset_version", Cause: err}
	}
	v.Purpose = models.FilePurpose(purposeStr)
	v.Status = models.AssetVersionStatus(status)
	v.BatchID = batchID.String
	v.ColorSpace = colorSpace.String
	v.MimeType = mimeType.String
	v.Checksum = checksum.String
	v.ChecksumAlgorithm = checksumAlg.String
	v.FailedReason = failedReason.String
	v.Metadata = unmarshalMap(metadata)
	return v, nil
}

// UpsertAIDescription writes or updates the row keyed on (tenant_id, asset_id).
func (s *Store) UpsertAIDescription(ctx context.Context, d models.AIDescription) (models.AIDescription, error) {
	keywords, err := jsonbOf(d.Keywords)
	if err != nil {
		return models.AIDescription{}, &errs.SerializationError{Message: "marshal keywords", Cause: err}
	}
	tags, err := jsonbOf(d.Tags)
	if err != nil {
		return models.AIDescription{}, &errs.SerializationError{Message: "marshal tags", Cause: err}
	}
	spatial, err := jsonbOf(d.Spatial)
	if err != nil {
		return models.AIDescription{}, &errs.SerializationError{Message: "marshal spatial", Cause: err}
	}
	temporal, err := jsonbOf(d.Temporal)
	if err != nil {
		return models.AIDescription{}, &errs.SerializationError{Message: "marshal temporal", Cause: err}
	}
	notes, err := jsonbOf(d.Notes)
	if err != nil {
		return models.AIDescription{}, &errs.SerializationError{Message: "marshal notes", Cause: err}
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO ai_descriptions (
			id, tenant_id, asset_id, batch_id, description, keywords, tags, spatial, temporal, notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
		ON CONFLICT (tenant_id, asset_id) DO UPDATE SET
			description = EXCLUDED.description,
			keywords = EXCLUDED.keywords,
			tags = EXCLUDED.tags,
			spatial = EXCLUDED.spatial,
			temporal = EXCLUDED.temporal,
			notes = EXCLUDED.notes,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		d.ID, d.TenantID, d.AssetID, textOrNil(d.BatchID), d.Description, keywords, tags, spatial, temporal, notes,
	)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return models.AIDescription{}, &errs.StoreError{Transient: isTransient(err), Message: "upsert ai_description", Cause: err}
	}
	return d, nil
}

// GetAIDescription fetches a single AI description row.
func (s *Store) GetAIDescription(ctx context.Context, tenantID, assetID string) (models.AIDescription, error) {
	var d models.AIDescription
	var batchID pgtype.Text
	var keywords, tags, spatial, temporal, notes []byte
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, asset_id, batch_id, description, keywords, tags, spatial, temporal, notes, created_at, updated_at
		FROM ai_descriptions WHERE tenant_id=$1 AND asset_id=$2`, tenantID, assetID)
	if err := row.Scan(&d.ID, &d.TenantID, &d.AssetID, &batchID, &d.Description, &keywords, &tags, &spatial, &temporal, &notes, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AIDescription{}, &errs.ResourceError{Code: "not_found", Message: "ai_description not found"}
		}
		return models.AIDescription{}, &errs.StoreError{Transient: isTransient(err), Message: "get ai_description", Cause: err}
	}
	d.BatchID = batchID.String
	d.Keywords = unmarshalSlice(keywords)
	d.Tags = unmarshalSlice(tags)
	d.Spatial = unmarshalMap(spatial)
	d.Temporal = unmarshalMap(temporal)
	d.Notes = unmarshalMap(notes)
	return d, nil
}

// UpdateAIDescriptionNotes merges additional notes into an existing row
// without touching the description/keywords/tags fields.
func (s *Store) UpdateAIDescriptionNotes(ctx context.Context, tenantID, assetID string, notes map[string]any) error {
	raw, err := jsonbOf(notes)
	if err != nil {
		return &errs.SerializationError{Message: "marshal notes", Cause: err}
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE ai_descriptions SET notes = $1, updated_at = NOW() WHERE tenant_id=$2 AND asset_id=$3`,
		raw, tenantID, assetID)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "update ai_description notes", Cause: err}
	}
	if ct.RowsAffected() == 0 {
		return &errs.ResourceError{Code: "not_found", Message: "ai_description not found"}
	}
	return nil
}

// CreateJobgroup inserts a new jobgroup row, defaulting to the created state.
func (s *Store) CreateJobgroup(ctx context.Context, g models.Jobgroup) (models.Jobgroup, error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	if g.Status == "" {
		g.Status = models.JobgroupCreated
	}
	notes, err := jsonbOf(g.Notes)
	if err != nil {
		return models.Jobgroup{}, &errs.SerializationError{Message: "marshal notes", Cause: err}
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobgroups (id, tenant_id, batch_id, external_jobgroup_id, input_file_id, output_file_id, status, request_count, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
		RETURNING id, created_at`,
		g.ID, g.TenantID, textOrNil(g.BatchID), g.ExternalJobgroupID, g.InputFileID, textOrNil(g.OutputFileID),
		string(g.Status), g.RequestCount, notes,
	)
	if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
		return models.Jobgroup{}, &errs.StoreError{Transient: isTransient(err), Message: "create jobgroup", Cause: err}
	}
	return g, nil
}

const jobgroupColumns = `id, tenant_id, batch_id, external_jobgroup_id, input_file_id, output_file_id, status, request_count, notes, created_at, completed_at, failed_at`

func scanJobgroup(row pgx.Row) (models.Jobgroup, error) {
	var g models.Jobgroup
	var batchID, outputFileID pgtype.Text
	var notes []byte
	var status string
	var completedAt, failedAt pgtype.Timestamptz
	if err := row.Scan(&g.ID, &g.TenantID, &batchID, &g.ExternalJobgroupID, &g.InputFileID, &outputFileID,
		&status, &g.RequestCount, &notes, &g.CreatedAt, &completedAt, &failedAt); err != nil {
		return models.Jobgroup{}, err
	}
	g.Status = models.JobgroupStatus(status)
	g.BatchID = batchID.String
	g.OutputFileID = outputFileID.String
	g.Notes = unmarshalMap(notes)
	if completedAt.Valid {
		t := completedAt.Time
		g.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		g.FailedAt = &t
	}
	return g, nil
}

// GetJobgroup fetches a single jobgroup by id.
func (s *Store) GetJobgroup(ctx context.Context, id string) (models.Jobgroup, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobgroupColumns+` FROM jobgroups WHERE id=$1`, id)
	g, err := scanJobgroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Jobgroup{}, &errs.ResourceError{Code: "not_found", Message: "jobgroup not found"}
	}
	if err != nil {
		return models.Jobgroup{}, &errs.StoreError{Transient: isTransient(err), Message: "get jobgroup", Cause: err}
	}
	return g, nil
}

// ListJobgroups lists jobgroups for a tenant, most recent first.
func (s *Store) ListJobgroups(ctx context.Context, tenantID string, limit int) ([]models.Jobgroup, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobgroupColumns+` FROM jobgroups WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, &errs.StoreError{Transient: isTransient(err), Message: "list jobgroups", Cause: err}
	}
	defer rows.Close()
	var out []models.Jobgroup
	for rows.Next() {
		g, err := scanJobgroup(rows)
		if err != nil {
			return nil, &errs.StoreError{Transient: isTransient(err), Message: "scan jobgroup", Cause: err}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListNonTerminalJobgroups lists jobgroups the poller must still advance.
func (s *Store) ListNonTerminalJobgroups(ctx context.Context) ([]models.Jobgroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobgroupColumns+` FROM jobgroups
		WHERE status NOT IN ($1,$2,$3,$4) ORDER BY created_at ASC`,
		string(models.JobgroupCompleted), string(models.JobgroupFailed), string(models.JobgroupExpired), string(models.JobgroupCancelled))
	if err != nil {
		return nil, &errs.StoreError{Transient: isTransient(err), Message: "list non-terminal jobgroups", Cause: err}
	}
	defer rows.Close()
	var out []models.Jobgroup
	for rows.Next() {
		g, err := scanJobgroup(rows)
		if err != nil {
			return nil, &errs.StoreError{Transient: isTransient(err), Message: "scan jobgroup", Cause: err}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CountNonTerminalJobgroupsForTenant supports the jobgroup creation rate
// limit: reject if any non-terminal jobgroup already exists for the tenant.
func (s *Store) CountNonTerminalJobgroupsForTenant(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jobgroups WHERE tenant_id=$1 AND status NOT IN ($2,$3,$4,$5)`,
		tenantID, string(models.JobgroupCompleted), string(models.JobgroupFailed), string(models.JobgroupExpired), string(models.JobgroupCancelled)).Scan(&n)
	if err != nil {
		return 0, &errs.StoreError{Transient: isTransient(err), Message: "count non-terminal jobgroups", Cause: err}
	}
	return n, nil
}

// CountJobgroupsCreatedSince supports the trailing-24h creation cap.
func (s *Store) CountJobgroupsCreatedSince(ctx context.Context, tenantID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobgroups WHERE tenant_id=$1 AND created_at >= $2`, tenantID, since).Scan(&n)
	if err != nil {
		return 0, &errs.StoreError{Transient: isTransient(err), Message: "count recent jobgroups", Cause: err}
	}
	return n, nil
}

// UpdateJobgroupStatus advances status, refusing to regress out of a
// terminal state -- terminal states are sticky per spec section 4.8.
func (s *Store) UpdateJobgroupStatus(ctx context.Context, id string, status models.JobgroupStatus) error {
	current, err := s.GetJobgroup(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return nil
	}
	var completedAt, failedAt any
	if status == models.JobgroupCompleted {
		completedAt = time.Now().UTC()
	}
	if status == models.JobgroupFailed {
		failedAt = time.Now().UTC()
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE jobgroups SET status=$1,
			completed_at = COALESCE($2, completed_at),
			failed_at = COALESCE($3, failed_at)
		WHERE id=$4`, string(status), completedAt, failedAt, id)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "update jobgroup status", Cause: err}
	}
	if ct.RowsAffected() == 0 {
		return &errs.ResourceError{Code: "not_found", Message: "jobgroup not found"}
	}
	return nil
}

// SetJobgroupOutputFile records the external batch output file id once the
// provider reports completion.
func (s *Store) SetJobgroupOutputFile(ctx context.Context, id, outputFileID string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE jobgroups SET output_file_id=$1 WHERE id=$2`, outputFileID, id)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "set jobgroup output file", Cause: err}
	}
	if ct.RowsAffected() == 0 {
		return &errs.ResourceError{Code: "not_found", Message: "jobgroup not found"}
	}
	return nil
}

// UpdateJobgroupNotes overwrites a jobgroup's notes, used to record the
// cancellation timestamp on operator-triggered cancel (submission notes
// are written by CreateJobgroup).
func (s *Store) UpdateJobgroupNotes(ctx context.Context, id string, notes map[string]any) error {
	raw, err := jsonbOf(notes)
	if err != nil {
		return &errs.SerializationError{Message: "marshal notes", Cause: err}
	}
	ct, err := s.pool.Exec(ctx, `UPDATE jobgroups SET notes=$1 WHERE id=$2`, raw, id)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "update jobgroup notes", Cause: err}
	}
	if ct.RowsAffected() == 0 {
		return &errs.ResourceError{Code: "not_found", Message: "jobgroup not found"}
	}
	return nil
}

// SetJobgroupCancelled force-sets status to cancelled, bypassing the
// terminal-state guard in UpdateJobgroupStatus -- cancellation is an
// explicit operator action, not a poller-derived transition.
func (s *Store) SetJobgroupCancelled(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE jobgroups SET status=$1 WHERE id=$2`, string(models.JobgroupCancelled), id)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "cancel jobgroup", Cause: err}
	}
	if ct.RowsAffected() == 0 {
		return &errs.ResourceError{Code: "not_found", Message: "jobgroup not found"}
	}
	return nil
}

// CountJobgroupResults counts processed results for a jobgroup, used to
// detect completion against the output file's line count.
func (s *Store) CountJobgroupResults(ctx context.Context, jobgroupID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobgroup_results WHERE jobgroup_id=$1`, jobgroupID).Scan(&n)
	if err != nil {
		return 0, &errs.StoreError{Transient: isTransient(err), Message: "count jobgroup results", Cause: err}
	}
	return n, nil
}

// GetJobgroupResult looks up a single line item. Used for the idempotency
// short-circuit during chunked result processing.
func (s *Store) GetJobgroupResult(ctx context.Context, jobgroupID, assetID string) (models.JobgroupResult, bool, error) {
	var r models.JobgroupResult
	var errCode, errMsg pgtype.Text
	var raw []byte
	var status string
	row := s.pool.QueryRow(ctx, `
		SELECT id, jobgroup_id, asset_id, status, error_code, error_message, raw_response, custom_id, created_at, updated_at
		FROM jobgroup_results WHERE jobgroup_id=$1 AND asset_id=$2`, jobgroupID, assetID)
	if err := row.Scan(&r.ID, &r.JobgroupID, &r.AssetID, &status, &errCode, &errMsg, &raw, &r.CustomID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.JobgroupResult{}, false, nil
		}
		return models.JobgroupResult{}, false, &errs.StoreError{Transient: isTransient(err), Message: "get jobgroup result", Cause: err}
	}
	r.Status = models.JobgroupResultStatus(status)
	r.ErrorCode = errCode.String
	r.ErrorMessage = errMsg.String
	r.RawResponse = unmarshalMap(raw)
	return r, true, nil
}

// UpsertJobgroupResult writes or updates the row keyed on
// (jobgroup_id, asset_id). Callers are expected to have already checked
// GetJobgroupResult for idempotency before doing side-effecting work.
func (s *Store) UpsertJobgroupResult(ctx context.Context, r models.JobgroupResult) (models.JobgroupResult, error) {
	raw, err := jsonbOf(r.RawResponse)
	if err != nil {
		return models.JobgroupResult{}, &errs.SerializationError{Message: "marshal raw_response", Cause: err}
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobgroup_results (id, jobgroup_id, asset_id, status, error_code, error_message, raw_response, custom_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
		ON CONFLICT (jobgroup_id, asset_id) DO UPDATE SET
			status = EXCLUDED.status,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			raw_response = EXCLUDED.raw_response,
			custom_id = EXCLUDED.custom_id,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		r.ID, r.JobgroupID, r.AssetID, string(r.Status), textOrNil(r.ErrorCode), textOrNil(r.ErrorMessage), raw, r.CustomID,
	)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.JobgroupResult{}, &errs.StoreError{Transient: isTransient(err), Message: "upsert jobgroup result", Cause: err}
	}
	return r, nil
}

// AppendAudit writes one audit event row.
func (s *Store) AppendAudit(ctx context.Context, refID, event, detail string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO audit_logs (ref_id, event, detail, ts) VALUES ($1,$2,$3,NOW())`, refID, event, detail)
	if err != nil {
		return &errs.StoreError{Transient: isTransient(err), Message: "append audit", Cause: err}
	}
	return nil
}

// ClaimIdempotencyKey atomically claims key for queueKey. It returns
// (true, nil) if this call claimed the key, (false, nil) if another
// enqueue already claimed it.
func (s *Store) ClaimIdempotencyKey(ctx context.Context, key, queueKey string, ttl time.Duration) (bool, error) {
	if key == "" {
		return true, nil
	}
	var expiresAt any
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, queue_key, enqueued_at, expires_at) VALUES ($1,$2,NOW(),$3)
		ON CONFLICT (key) DO NOTHING`, key, queueKey, expiresAt)
	if err != nil {
		return false, &errs.StoreError{Transient: isTransient(err), Message: "claim idempotency key", Cause: err}
	}
	return ct.RowsAffected() == 1, nil
}

// LookupAssetContext recovers tenant/batch context for an asset from any
// existing asset_versions row. Used by jobgroup result processing when the
// provider response carries only an asset id.
func (s *Store) LookupAssetContext(ctx context.Context, assetID string) (tenantID, batchID string, err error) {
	var batch pgtype.Text
	row := s.pool.QueryRow(ctx, `SELECT tenant_id, batch_id FROM asset_versions WHERE asset_id=$1 LIMIT 1`, assetID)
	if scanErr := row.Scan(&tenantID, &batch); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", "", &errs.ResourceError{Code: "not_found", Message: "asset context not found"}
		}
		return "", "", &errs.StoreError{Transient: isTransient(scanErr), Message: "lookup asset context", Cause: scanErr}
	}
	return tenantID, batch.String, nil
}
