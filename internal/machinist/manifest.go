package machinist

import (
	"encoding/json"

	"archivehub/internal/models"
)

// Manifest is the per-asset manifest.json written alongside derivatives,
// merging normalized EXIF groups with the system fields spec section 4.6
// step 9 requires. Field order is fixed by struct declaration order and
// encoding/json sorts map keys, so Marshal is byte-for-byte deterministic
// for a given input -- required since the manifest itself becomes part of
// the idempotent, hash-checked preservation record.
type Manifest struct {
	AssetID     string                          `json:"asset_id"`
	TenantID    string                          `json:"tenant_id"`
	BatchID     string                          `json:"batch_id,omitempty"`
	FilePurpose models.FilePurpose              `json:"file_purpose"`
	Exif        ExifGroups                      `json:"exif"`
	Versions    map[string]manifestVersionEntry `json:"versions"`
}

type manifestVersionEntry struct {
	Variant  string `json:"variant"`
	Key      string `json:"storage_key"`
	FileSize int64  `json:"file_size"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// BuildManifest assembles a Manifest from the pipeline's intermediate
// state.
func BuildManifest(exifData ExifGroups, job models.MachinistJob, versions map[string]models.AssetVersion) Manifest {
	entries := make(map[string]manifestVersionEntry, len(versions))
	for name, v := range versions {
		entries[name] = manifestVersionEntry{
			Variant:  v.Variant,
			Key:      v.StorageKey,
			FileSize: v.FileSize,
			Width:    v.Width,
			Height:   v.Height,
		}
	}
	return Manifest{
		AssetID:     job.AssetID,
		TenantID:    job.TenantID,
		BatchID:     job.BatchID,
		FilePurpose: job.FilePurpose,
		Exif:        exifData,
		Versions:    entries,
	}
}

// Marshal renders the manifest as indented, deterministic JSON.
func (m Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
