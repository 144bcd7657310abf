package worker

import (
	"context"
	"testing"
	"time"
)

func TestStringFieldReturnsEmptyForMissingOrWrongType(t *testing.T) {
	m := map[string]any{"tenant_id": "t1", "count": 3}
	if got := stringField(m, "tenant_id"); got != "t1" {
		t.Fatalf("expected t1, got %q", got)
	}
	if got := stringField(m, "count"); got != "" {
		t.Fatalf("expected empty string for non-string field, got %q", got)
	}
	if got := stringField(m, "missing"); got != "" {
		t.Fatalf("expected empty string for missing field, got %q", got)
	}
}

func TestSleepOrDoneReturnsEarlyOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	sleepOrDone(ctx, time.Minute)
	if time.Since(start) > time.Second {
		t.Fatalf("expected sleepOrDone to return immediately on a cancelled context")
	}
}

func TestArchivistQueueOrderIsStrictPriority(t *testing.T) {
	want := []string{"jobs:archivist:instant", "jobs:archivist:standard", "jobs:archivist:jobgroup"}
	if len(archivistQueueOrder) != len(want) {
		t.Fatalf("unexpected queue order length: %v", archivistQueueOrder)
	}
	for i, k := range want {
		if archivistQueueOrder[i] != k {
			t.Fatalf("expected %q at position %d, got %q", k, i, archivistQueueOrder[i])
		}
	}
}
