// Package validate implements strict shape validation for machinist and
// archivist job payloads, producing the typed ValidationError spec
// section 7 requires.
package validate

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"archivehub/internal/errs"
	"archivehub/internal/models"
)

const maxExtensionLen = 256

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// isUUIDv4 reports whether s parses as a version-4 UUID.
func isUUIDv4(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 4
}

// SanitizeExtension strips control characters, lowercases, strips a
// leading dot, and rejects path-traversal or unsafe characters. It never
// returns an error for cosmetic issues -- callers still validate the
// result against the allow-list.
func SanitizeExtension(ext string) (string, error) {
	if len(ext) == 0 || len(ext) > maxExtensionLen {
		return "", &errs.ValidationError{Code: "INVALID_EXTENSION", Field: "input_extension", Message: "extension is empty or exceeds length limit"}
	}
	var b strings.Builder
	for _, r := range ext {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.ToLower(strings.TrimSpace(b.String()))
	clean = strings.TrimPrefix(clean, ".")
	if strings.Contains(clean, "..") || strings.ContainsAny(clean, "/\\") {
		return "", &errs.ValidationError{Code: "UNSAFE_EXTENSION", Field: "input_extension", Message: "extension contains path traversal characters"}
	}
	if unsafeChars.MatchString(clean) {
		return "", &errs.ValidationError{Code: "UNSAFE_EXTENSION", Field: "input_extension", Message: "extension contains disallowed characters"}
	}
	return clean, nil
}

// Machinist validates a raw machinist job payload and returns the typed
// job on success.
func Machinist(payload map[string]any) (models.MachinistJob, error) {
	var job models.MachinistJob

	tenantID, _ := payload["tenant_id"].(string)
	if !isUUIDv4(tenantID) {
		return job, &errs.ValidationError{Code: "INVALID_TENANT_ID", Field: "tenant_id", Message: "tenant_id must be a UUIDv4"}
	}
	assetID, _ := payload["asset_id"].(string)
	if !isUUIDv4(assetID) {
		return job, &errs.ValidationError{Code: "INVALID_ASSET_ID", Field: "asset_id", Message: "asset_id must be a UUIDv4"}
	}
	batchID, hasBatch := payload["batch_id"].(string)
	if hasBatch && batchID != "" && !isUUIDv4(batchID) {
		return job, &errs.ValidationError{Code: "INVALID_BATCH_ID", Field: "batch_id", Message: "batch_id must be a UUIDv4"}
	}

	purposeRaw, _ := payload["file_purpose"].(string)
	purpose := models.FilePurpose(purposeRaw)
	if !models.ValidFilePurposes[purpose] {
		return job, &errs.ValidationError{Code: "INVALID_FILE_PURPOSE", Field: "file_purpose", Message: "file_purpose is not in the allowed set"}
	}

	extRaw, _ := payload["input_extension"].(string)
	ext, err := SanitizeExtension(extRaw)
	if err != nil {
		return job, err
	}
	if !models.ValidInputExtensions[ext] {
		return job, &errs.ValidationError{Code: "INVALID_EXTENSION", Field: "input_extension", Message: "input_extension is not in the allowed set"}
	}

	jobType, _ := payload["job_type"].(string)
	if jobType == "" {
		jobType = "machinist"
	}
	processingType, _ := payload["processing_type"].(string)
	if strings.EqualFold(processingType, "jobgroup") || strings.EqualFold(processingType, "batch") {
		return job, &errs.ValidationError{Code: "unsupported_priority", Field: "processing_type", Message: "machinist jobs cannot use jobgroup priority"}
	}

	job = models.MachinistJob{
		JobType:        jobType,
		ProcessingType: processingType,
		TenantID:       tenantID,
		AssetID:        assetID,
		BatchID:        batchID,
		FilePurpose:    purpose,
		InputExtension: ext,
	}
	return job, nil
}

// Archivist validates a raw archivist job payload and returns the typed
// job on success. The deprecated "batch" processing_type is normalized to
// "jobgroup".
func Archivist(payload map[string]any) (models.ArchivistJob, error) {
	var job models.ArchivistJob

	tenantID, _ := payload["tenant_id"].(string)
	if !isUUIDv4(tenantID) {
		return job, &errs.ValidationError{Code: "INVALID_TENANT_ID", Field: "tenant_id", Message: "tenant_id must be a UUIDv4"}
	}
	assetID, _ := payload["asset_id"].(string)
	if !isUUIDv4(assetID) {
		return job, &errs.ValidationError{Code: "INVALID_ASSET_ID", Field: "asset_id", Message: "asset_id must be a UUIDv4"}
	}
	batchID, hasBatch := payload["batch_id"].(string)
	if hasBatch && batchID != "" && !isUUIDv4(batchID) {
		return job, &errs.ValidationError{Code: "INVALID_BATCH_ID", Field: "batch_id", Message: "batch_id must be a UUIDv4"}
	}

	processingType, _ := payload["processing_type"].(string)
	normalized := strings.ToLower(processingType)
	switch normalized {
	case "instant", "individual":
		normalized = "instant"
	case "standard":
		normalized = "standard"
	case "jobgroup", "batch":
		normalized = "jobgroup"
	default:
		return job, &errs.ValidationError{Code: "INVALID_PROCESSING_TYPE", Field: "processing_type", Message: "processing_type is not in the allowed set"}
	}

	jobType, _ := payload["job_type"].(string)
	if jobType == "" {
		jobType = "archivist"
	}

	job = models.ArchivistJob{
		JobType:        jobType,
		ProcessingType: normalized,
		TenantID:       tenantID,
		AssetID:        assetID,
		BatchID:        batchID,
	}
	return job, nil
}
