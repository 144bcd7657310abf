package machinist

import (
	"bytes"
	"context"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ExifGroups is the normalized EXIF shape spec section 4.6 step 5 names:
// identity/capture/camera/exposure/image/software/file, each a flat map
// with null fields dropped rather than emitted as JSON null.
type ExifGroups struct {
	Identity map[string]any `json:"identity,omitempty"`
	Capture  map[string]any `json:"capture,omitempty"`
	Camera   map[string]any `json:"camera,omitempty"`
	Exposure map[string]any `json:"exposure,omitempty"`
	Image    map[string]any `json:"image,omitempty"`
	Software map[string]any `json:"software,omitempty"`
	File     map[string]any `json:"file,omitempty"`
}

// extractEXIF decodes EXIF tags from buf and normalizes them into the
// fixed group layout, bounded by timeout. Decode failure (no EXIF segment,
// corrupt segment) yields an empty ExifGroups rather than an error -- EXIF
// extraction is best-effort and must never fail the pipeline.
func extractEXIF(ctx context.Context, buf []byte, timeout time.Duration) ExifGroups {
	done := make(chan ExifGroups, 1)
	go func() {
		done <- decodeEXIF(buf)
	}()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case groups := <-done:
		return groups
	case <-time.After(timeout):
		return ExifGroups{}
	case <-ctx.Done():
		return ExifGroups{}
	}
}

func decodeEXIF(buf []byte) ExifGroups {
	x, err := exif.Decode(bytes.NewReader(buf))
	if err != nil {
		return ExifGroups{}
	}

	groups := ExifGroups{
		Identity: map[string]any{},
		Capture:  map[string]any{},
		Camera:   map[string]any{},
		Exposure: map[string]any{},
		Image:    map[string]any{},
		Software: map[string]any{},
	}

	putString(groups.Identity, "image_unique_id", x, exif.ImageUniqueID)
	putString(groups.Capture, "date_time_original", x, exif.DateTimeOriginal)
	putString(groups.Capture, "offset_time_original", x, exif.OffsetTimeOriginal)
	putString(groups.Camera, "make", x, exif.Make)
	putString(groups.Camera, "model", x, exif.Model)
	putString(groups.Camera, "lens_model", x, exif.LensModel)
	putRational(groups.Exposure, "exposure_time", x, exif.ExposureTime)
	putRational(groups.Exposure, "f_number", x, exif.FNumber)
	putInt(groups.Exposure, "iso_speed", x, exif.ISOSpeedRatings)
	putRational(groups.Exposure, "focal_length", x, exif.FocalLength)
	putInt(groups.Image, "pixel_x_dimension", x, exif.PixelXDimension)
	putInt(groups.Image, "pixel_y_dimension", x, exif.PixelYDimension)
	putInt(groups.Image, "orientation", x, exif.Orientation)
	putString(groups.Image, "color_space", x, exif.ColorSpace)
	putString(groups.Software, "software", x, exif.Software)

	groups.Identity = dropEmpty(groups.Identity)
	groups.Capture = dropEmpty(groups.Capture)
	groups.Camera = dropEmpty(groups.Camera)
	groups.Exposure = dropEmpty(groups.Exposure)
	groups.Image = dropEmpty(groups.Image)
	groups.Software = dropEmpty(groups.Software)

	return groups
}

func putString(group map[string]any, key string, x *exif.Exif, field exif.FieldName) {
	tag, err := x.Get(field)
	if err != nil {
		return
	}
	if s, err := tag.StringVal(); err == nil {
		group[key] = s
	}
}

func putInt(group map[string]any, key string, x *exif.Exif, field exif.FieldName) {
	tag, err := x.Get(field)
	if err != nil {
		return
	}
	if v, err := tag.Int(0); err == nil {
		group[key] = v
	}
}

func putRational(group map[string]any, key string, x *exif.Exif, field exif.FieldName) {
	tag, err := x.Get(field)
	if err != nil {
		return
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return
	}
	group[key] = float64(num) / float64(den)
}

func dropEmpty(group map[string]any) map[string]any {
	if len(group) == 0 {
		return nil
	}
	return group
}
