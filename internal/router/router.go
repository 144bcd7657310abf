// Package router resolves a validated job payload to its destination
// queue key using the (worker, priority) mapping spec section 4.2
// defines.
package router

import (
	"strings"

	"archivehub/internal/errs"
	"archivehub/internal/queue"
)

// ResolveQueue validates the base shape of payload, derives the worker
// and priority, and returns the destination queue key. It never mutates
// payload.
func ResolveQueue(payload map[string]any) (string, error) {
	tenantID, _ := payload["tenant_id"].(string)
	if tenantID == "" {
		return "", &errs.RoutingError{Code: "MISSING_TENANT_ID", Message: "job is missing tenant_id"}
	}

	jobType, hasJobType := payload["job_type"].(string)
	processingTypeRaw, _ := payload["processing_type"].(string)
	if !hasJobType && processingTypeRaw == "" {
		return "", &errs.RoutingError{Code: "MISSING_DISCRIMINATOR", Message: "job has neither job_type nor processing_type"}
	}
	if jobType == "" {
		jobType = "machinist"
	}

	worker, err := deriveWorker(jobType)
	if err != nil {
		return "", err
	}

	priority := derivePriority(processingTypeRaw)

	if worker == "machinist" && priority == "jobgroup" {
		return "", &errs.RoutingError{Code: "unsupported_priority", Message: "machinist jobs cannot be routed to the jobgroup lane"}
	}

	key, ok := queue.KeyFor(worker, priority)
	if !ok {
		return "", &errs.RoutingError{Code: "UNKNOWN_QUEUE", Message: "no queue key for worker=" + worker + " priority=" + priority}
	}
	return key, nil
}

func deriveWorker(jobType string) (string, error) {
	lower := strings.ToLower(jobType)
	switch {
	case strings.HasPrefix(lower, "machinist"):
		return "machinist", nil
	case strings.HasPrefix(lower, "archivist"):
		return "archivist", nil
	default:
		return "", &errs.RoutingError{Code: "UNKNOWN_WORKER", Message: "job_type prefix does not match a known worker: " + jobType}
	}
}

func derivePriority(processingType string) string {
	switch strings.ToLower(processingType) {
	case "instant", "individual":
		return "instant"
	case "jobgroup", "batch":
		return "jobgroup"
	case "standard":
		return "standard"
	default:
		return "standard"
	}
}
