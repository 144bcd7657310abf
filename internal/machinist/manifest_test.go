package machinist

import (
	"bytes"
	"testing"

	"archivehub/internal/models"
)

func TestManifestMarshalIsDeterministic(t *testing.T) {
	job := models.MachinistJob{
		TenantID:    "tenant-1",
		AssetID:     "asset-1",
		BatchID:     "batch-1",
		FilePurpose: models.PurposeViewing,
	}
	exifData := ExifGroups{
		Camera: map[string]any{"make": "Canon", "model": "5D"},
		Image:  map[string]any{"orientation": 1, "pixel_x_dimension": 4000},
	}
	versions := map[string]models.AssetVersion{
		"viewing":     {Variant: "viewing", StorageKey: "k1", FileSize: 100, Width: 2000, Height: 1500},
		"thumb_small": {Variant: "thumb_small", StorageKey: "k2", FileSize: 10, Width: 200, Height: 150},
	}

	a, err := BuildManifest(exifData, job, versions).Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	b, err := BuildManifest(exifData, job, versions).Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical manifest bytes for identical input")
	}
}

func TestManifestDropsEmptyExifGroups(t *testing.T) {
	job := models.MachinistJob{AssetID: "asset-1", TenantID: "tenant-1", FilePurpose: models.PurposeProduction}
	m := BuildManifest(ExifGroups{}, job, map[string]models.AssetVersion{})
	raw, err := m.Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if bytes.Contains(raw, []byte(`"camera"`)) {
		t.Fatal("expected empty exif groups to be omitted from manifest")
	}
}
