package machinist

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuildDeterministicArchiveProducesStableChecksum(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, sumA, err := BuildDeterministicArchive(dir)
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}
	_, sumB, err := BuildDeterministicArchive(dir)
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}
	if sumA != sumB {
		t.Fatalf("expected stable checksum across runs, got %s and %s", sumA, sumB)
	}
}
