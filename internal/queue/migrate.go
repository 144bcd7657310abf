package queue

import (
	"context"
	"encoding/json"
	"strings"
)

// MigrateLegacyQueues drains the legacy shared keys (jobs:instant,
// jobs:standard, jobs:jobgroup), classifies each entry by job_type/shape,
// and left-pushes it onto the appropriate namespaced key. It is a
// one-shot operator utility, not part of the steady-state worker path.
func (q *Queue) MigrateLegacyQueues(ctx context.Context) (migrated int, skipped int, err error) {
	legacyToDefaultPriority := map[string]string{
		LegacyInstant:  "instant",
		LegacyStandard: "standard",
		LegacyJobgroup: "jobgroup",
	}
	for legacyKey, defaultPriority := range legacyToDefaultPriority {
		for {
			raw, popErr := q.PopRaw(ctx, legacyKey)
			if popErr != nil {
				return migrated, skipped, popErr
			}
			if raw == "" {
				break
			}
			worker, priority, ok := classifyLegacyEntry(raw, defaultPriority)
			if !ok {
				skipped++
				continue
			}
			destKey, ok := KeyFor(worker, priority)
			if !ok {
				skipped++
				continue
			}
			if reqErr := q.RequeueRaw(ctx, destKey, raw); reqErr != nil {
				return migrated, skipped, reqErr
			}
			migrated++
		}
	}
	return migrated, skipped, nil
}

// classifyLegacyEntry inspects a raw legacy job document for a job_type or
// processing_type field and derives (worker, priority). defaultPriority is
// used when the entry carries no processing_type, matching the legacy
// key's implied priority.
func classifyLegacyEntry(raw string, defaultPriority string) (worker, priority string, ok bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", "", false
	}
	jobType, _ := doc["job_type"].(string)
	if jobType == "" {
		jobType = "machinist"
	}
	lower := strings.ToLower(jobType)
	switch {
	case strings.HasPrefix(lower, "archivist"):
		worker = "archivist"
	case strings.HasPrefix(lower, "machinist"):
		worker = "machinist"
	default:
		return "", "", false
	}

	priority = defaultPriority
	if processingType, has := doc["processing_type"].(string); has && processingType != "" {
		switch strings.ToLower(processingType) {
		case "instant", "individual":
			priority = "instant"
		case "jobgroup", "batch":
			priority = "jobgroup"
		case "standard":
			priority = "standard"
		}
	}
	if worker == "machinist" && priority == "jobgroup" {
		return "", "", false
	}
	return worker, priority, true
}
