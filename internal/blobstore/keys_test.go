package blobstore

import "testing"

func TestLandingKey(t *testing.T) {
	got := LandingKey("t1", "b1", "a1", "jpg")
	want := "tenant-t1/batch-b1/asset-a1/original.jpg"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDerivativeKey(t *testing.T) {
	got := DerivativeKey("t1", "b1", "a1", "thumbnails", ThumbSmall)
	want := "tenant-t1/batch-b1/asset-a1/thumbnails/thumb-small.jpg"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPreservationBundleKey(t *testing.T) {
	got := PreservationBundleKey("t1", "a1")
	want := "archive/tenant-t1/asset-a1/preservation/preservation.tar.gz"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
