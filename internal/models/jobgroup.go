package models

import "time"

// JobgroupStatus enumerates the jobgroup lifecycle. Terminal states are
// sticky: once set, status never regresses.
type JobgroupStatus string

const (
	JobgroupCreated    JobgroupStatus = "created"
	JobgroupValidating JobgroupStatus = "validating"
	JobgroupInProgress JobgroupStatus = "in_progress"
	JobgroupCompleted  JobgroupStatus = "completed"
	JobgroupFailed     JobgroupStatus = "failed"
	JobgroupExpired    JobgroupStatus = "expired"
	JobgroupCancelled  JobgroupStatus = "cancelled"
)

// IsTerminal reports whether status is one of the sticky terminal states.
func (s JobgroupStatus) IsTerminal() bool {
	switch s {
	case JobgroupCompleted, JobgroupFailed, JobgroupExpired, JobgroupCancelled:
		return true
	default:
		return false
	}
}

// Jobgroup is the durable record of a single offline batch submission.
type Jobgroup struct {
	ID                  string         `json:"id"`
	TenantID            string         `json:"tenant_id"`
	BatchID             string         `json:"batch_id,omitempty"`
	ExternalJobgroupID  string         `json:"external_jobgroup_id"`
	InputFileID         string         `json:"input_file_id"`
	OutputFileID        string         `json:"output_file_id,omitempty"`
	Status              JobgroupStatus `json:"status"`
	RequestCount        int            `json:"request_count"`
	Notes               map[string]any `json:"notes,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	FailedAt            *time.Time     `json:"failed_at,omitempty"`
}

// JobgroupResultStatus enumerates the outcome of one jobgroup line item.
type JobgroupResultStatus string

const (
	ResultCompleted JobgroupResultStatus = "completed"
	ResultFailed    JobgroupResultStatus = "failed"
)

// JobgroupResult is one row per (jobgroup_id, asset_id), upsert-only.
type JobgroupResult struct {
	ID           string               `json:"id"`
	JobgroupID   string               `json:"jobgroup_id"`
	AssetID      string               `json:"asset_id"`
	Status       JobgroupResultStatus `json:"status"`
	ErrorCode    string               `json:"error_code,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	RawResponse  map[string]any       `json:"raw_response,omitempty"`
	CustomID     string               `json:"custom_id"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// DLQEntry is the redacted record pushed onto dlq:<worker>. It carries
// only identifiers and a reason string -- never buffers or image data.
type DLQEntry struct {
	ID        string    `json:"id"`
	JobType   string    `json:"job_type"`
	TenantID  string    `json:"tenant_id,omitempty"`
	AssetID   string    `json:"asset_id,omitempty"`
	BatchID   string    `json:"batch_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchStatus is the vocabulary updateBatchStatus writes onto a batch
// record. Per the spec's resolved open question, the richer vocabulary
// is authoritative over the older {pending, complete, failed_with_errors}
// set.
type BatchStatus string

const (
	BatchNotStarted BatchStatus = "not_started"
	BatchInProgress BatchStatus = "in_progress"
	BatchComplete   BatchStatus = "complete"
	BatchCancelled  BatchStatus = "cancelled"
)
