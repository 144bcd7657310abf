// Package models holds the durable and transient record shapes the job
// substrate reads and writes: queue payloads, asset versions, AI
// descriptions, and jobgroups.
package models

import "time"

// Worker identifies which long-running process consumes a job.
type Worker string

const (
	WorkerMachinist Worker = "machinist"
	WorkerArchivist Worker = "archivist"
)

// Priority identifies the queue lane within a worker's namespace.
type Priority string

const (
	PriorityInstant  Priority = "instant"
	PriorityStandard Priority = "standard"
	PriorityJobgroup Priority = "jobgroup"
)

// FilePurpose enumerates the allowed machinist processing purposes.
type FilePurpose string

const (
	PurposePreservation FilePurpose = "preservation"
	PurposeViewing      FilePurpose = "viewing"
	PurposeProduction   FilePurpose = "production"
	PurposeRestoration  FilePurpose = "restoration"
)

// ValidFilePurposes is the enumerated allow-list from spec section 3.
var ValidFilePurposes = map[FilePurpose]bool{
	PurposePreservation: true,
	PurposeViewing:      true,
	PurposeProduction:   true,
	PurposeRestoration:  true,
}

// ValidInputExtensions is the bit-exact extension allow-list from spec
// section 6.
var ValidInputExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"tif":  true,
	"tiff": true,
}

// ValidMimeTypes is the bit-exact MIME allow-list from spec section 6.
var ValidMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/tiff": true,
}

// MachinistJob is the typed payload for jobs consumed by the Machinist
// worker. It replaces the dynamically-typed queue payload the distilled
// design inherited, per the design note that dynamic typing of queue
// payloads must become an explicit sum type.
type MachinistJob struct {
	JobType        string      `json:"job_type"`
	ProcessingType string      `json:"processing_type"`
	TenantID       string      `json:"tenant_id"`
	AssetID        string      `json:"asset_id"`
	BatchID        string      `json:"batch_id,omitempty"`
	FilePurpose    FilePurpose `json:"file_purpose"`
	InputExtension string      `json:"input_extension"`
}

// ArchivistJob is the typed payload for jobs consumed by the Archivist
// worker, individually or via the jobgroup subsystem.
type ArchivistJob struct {
	JobType        string `json:"job_type"`
	ProcessingType string `json:"processing_type"`
	TenantID       string `json:"tenant_id"`
	AssetID        string `json:"asset_id"`
	BatchID        string `json:"batch_id,omitempty"`
}

// RawJob is a self-describing job envelope pairing a Worker with its
// Payload. The queue layer does not use it: it pushes and pops plain JSON
// objects.
type RawJob struct {
	Worker  Worker         `json:"worker"`
	Payload map[string]any `json:"payload"`
}

// AssetVersionStatus enumerates lifecycle states for a derivative record.
type AssetVersionStatus string

const (
	VersionPending    AssetVersionStatus = "pending"
	VersionProcessing AssetVersionStatus = "processing"
	VersionSuccess    AssetVersionStatus = "success"
	VersionFailed     AssetVersionStatus = "failed"
)

// AssetVersion is one row per (asset_id, purpose, variant, type). Writes
// are upserts keyed on that unique tuple.
type AssetVersion struct {
	ID                string             `json:"id"`
	AssetID           string             `json:"asset_id"`
	TenantID          string             `json:"tenant_id"`
	BatchID           string             `json:"batch_id,omitempty"`
	Purpose           FilePurpose        `json:"purpose"`
	Variant           string             `json:"variant"`
	Type              string             `json:"type"`
	BucketLabel       string             `json:"bucket_label"`
	StorageKey        string             `json:"storage_key"`
	Status            AssetVersionStatus `json:"status"`
	FileSize          int64              `json:"file_size,omitempty"`
	Width             int                `json:"width,omitempty"`
	Height            int                `json:"height,omitempty"`
	BitDepth          int                `json:"bit_depth,omitempty"`
	ColorSpace        string             `json:"color_space,omitempty"`
	MimeType          string             `json:"mime_type,omitempty"`
	Checksum          string             `json:"checksum,omitempty"`
	ChecksumAlgorithm string             `json:"checksum_algorithm,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
	FailedReason      string             `json:"failed_reason,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// AIDescription is one row per (tenant_id, asset_id), upserted on
// completion of the archivist pipeline.
type AIDescription struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	AssetID     string         `json:"asset_id"`
	BatchID     string         `json:"batch_id,omitempty"`
	Description string         `json:"description"`
	Keywords    []string       `json:"keywords"`
	Tags        []string       `json:"tags"`
	Spatial     map[string]any `json:"spatial,omitempty"`
	Temporal    map[string]any `json:"temporal,omitempty"`
	Notes       map[string]any `json:"notes,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AuditLog is a simple audit event row, reused from the teacher's job
// audit trail for the jobgroup lifecycle (created/completed/failed).
type AuditLog struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
