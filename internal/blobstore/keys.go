package blobstore

import "fmt"

// LandingKey is the original-upload key an asset lands at before any
// derivative work runs.
func LandingKey(tenantID, batchID, assetID, ext string) string {
	return fmt.Sprintf("tenant-%s/batch-%s/asset-%s/original.%s", tenantID, batchID, assetID, ext)
}

// DerivativeKey builds a standard-bucket derivative key. purpose is one of
// preservation/viewing/production/restoration/ai/thumbnails/metadata;
// filename is already normalized to kebab-case (viewing.jpg, ai.jpg,
// thumb-small.jpg, manifest.json, ...).
func DerivativeKey(tenantID, batchID, assetID, purpose, filename string) string {
	return fmt.Sprintf("tenant-%s/batch-%s/asset-%s/%s/%s", tenantID, batchID, assetID, purpose, filename)
}

// PreservationBundleKey is the archive-bucket key for an asset's
// deterministic preservation tarball.
func PreservationBundleKey(tenantID, assetID string) string {
	return fmt.Sprintf("archive/tenant-%s/asset-%s/preservation/preservation.tar.gz", tenantID, assetID)
}

const (
	ThumbSmall  = "thumb-small.jpg"
	ThumbMedium = "thumb-medium.jpg"
	ThumbLarge  = "thumb-large.jpg"
	Manifest    = "manifest.json"
	Viewing     = "viewing.jpg"
	AIDerivative = "ai.jpg"
)
