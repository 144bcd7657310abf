package router

import (
	"errors"
	"testing"

	"archivehub/internal/errs"
)

func TestResolveQueueMachinistInstant(t *testing.T) {
	key, err := ResolveQueue(map[string]any{
		"tenant_id":       "t1",
		"job_type":        "machinist",
		"processing_type": "instant",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "jobs:machinist:instant" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestResolveQueueDefaultsToStandardPriority(t *testing.T) {
	key, err := ResolveQueue(map[string]any{
		"tenant_id": "t1",
		"job_type":  "archivist",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "jobs:archivist:standard" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestResolveQueueNormalizesBatchToJobgroup(t *testing.T) {
	key, err := ResolveQueue(map[string]any{
		"tenant_id":       "t1",
		"job_type":        "archivist",
		"processing_type": "batch",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "jobs:archivist:jobgroup" {
		t.Fatalf("unexpected key: %q", key)
	}
}

func TestResolveQueueRejectsMachinistJobgroup(t *testing.T) {
	_, err := ResolveQueue(map[string]any{
		"tenant_id":       "t1",
		"job_type":        "machinist",
		"processing_type": "jobgroup",
	})
	var re *errs.RoutingError
	if !errors.As(err, &re) || re.Code != "unsupported_priority" {
		t.Fatalf("expected unsupported_priority routing error, got %v", err)
	}
}

func TestResolveQueueRequiresTenantID(t *testing.T) {
	_, err := ResolveQueue(map[string]any{"job_type": "machinist"})
	var re *errs.RoutingError
	if !errors.As(err, &re) || re.Code != "MISSING_TENANT_ID" {
		t.Fatalf("expected MISSING_TENANT_ID routing error, got %v", err)
	}
}

func TestResolveQueueUnknownWorker(t *testing.T) {
	_, err := ResolveQueue(map[string]any{"tenant_id": "t1", "job_type": "mystery"})
	var re *errs.RoutingError
	if !errors.As(err, &re) || re.Code != "UNKNOWN_WORKER" {
		t.Fatalf("expected UNKNOWN_WORKER routing error, got %v", err)
	}
}
