package machinist

import (
	"errors"
	"image"
	"testing"

	"archivehub/internal/config"
	"archivehub/internal/errs"
)

func TestSniffFormatAcceptsKnownMagicBytes(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	if format, err := sniffFormat(jpeg); err != nil || format != "jpeg" {
		t.Fatalf("expected jpeg, got %q err=%v", format, err)
	}

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A}
	if format, err := sniffFormat(png); err != nil || format != "png" {
		t.Fatalf("expected png, got %q err=%v", format, err)
	}
}

func TestSniffFormatRejectsUnknownBuffer(t *testing.T) {
	_, err := sniffFormat([]byte{0x00, 0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected error for unrecognized buffer")
	}
	var media *errs.UnsupportedMediaError
	if !errors.As(err, &media) {
		t.Fatalf("expected UnsupportedMediaError, got %T", err)
	}
}

func fakeImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestCheckDimensionsEnforcesMinimumAndMaximum(t *testing.T) {
	p := &Pipeline{cfg: config.Config{MinWidth: 300, MinHeight: 300, MaxWidth: 12000, MaxHeight: 12000}}
	if err := p.checkDimensions(fakeImage(100, 100)); err == nil {
		t.Fatal("expected error for image below minimum dimensions")
	}
	if err := p.checkDimensions(fakeImage(20000, 20000)); err == nil {
		t.Fatal("expected error for image above maximum dimensions")
	}
	if err := p.checkDimensions(fakeImage(1000, 1000)); err != nil {
		t.Fatalf("expected no error for in-range image, got %v", err)
	}
}

func TestCheckDimensionsEnforcesPixelCeiling(t *testing.T) {
	p := &Pipeline{cfg: config.Config{MinWidth: 1, MinHeight: 1, MaxWidth: 100000, MaxHeight: 100000, SharpMaxPixels: 100}}
	if err := p.checkDimensions(fakeImage(50, 50)); err == nil {
		t.Fatal("expected pixel-ceiling error for 2500px image against a 100px ceiling")
	}
}
