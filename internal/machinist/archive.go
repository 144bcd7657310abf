package machinist

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"archivehub/internal/errs"
)

// BuildDeterministicArchive tars and gzips every file under workDir into a
// reproducible byte stream -- sorted entry order, zeroed mtimes/uid/gid,
// portable mode bits -- so the same inputs always produce the same bytes
// and checksum. No third-party archiver appears anywhere in the retrieval
// pack, so this stays on archive/tar + compress/gzip.
func BuildDeterministicArchive(workDir string) (data []byte, checksum string, err error) {
	var paths []string
	walkErr := filepath.Walk(workDir, func(path string, info os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		if info.IsDir() {
			return nil
		}
		rel, rerr := filepath.Rel(workDir, path)
		if rerr != nil {
			return rerr
		}
		paths = append(paths, rel)
		return nil
	})
	if walkErr != nil {
		return nil, "", &errs.ResourceError{Code: "archive_walk_failed", Message: walkErr.Error()}
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, "", &errs.SerializationError{Message: "create gzip writer", Cause: err}
	}
	tw := tar.NewWriter(gz)

	for _, rel := range paths {
		full := filepath.Join(workDir, rel)
		content, rerr := os.ReadFile(full)
		if rerr != nil {
			return nil, "", &errs.ResourceError{Code: "archive_read_failed", Message: rerr.Error()}
		}
		hdr := &tar.Header{
			Name:     filepath.ToSlash(rel),
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, "", &errs.SerializationError{Message: "write tar header", Cause: err}
		}
		if _, err := tw.Write(content); err != nil {
			return nil, "", &errs.SerializationError{Message: "write tar content", Cause: err}
		}
	}

	if err := tw.Close(); err != nil {
		return nil, "", &errs.SerializationError{Message: "close tar writer", Cause: err}
	}
	if err := gz.Close(); err != nil {
		return nil, "", &errs.SerializationError{Message: "close gzip writer", Cause: err}
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}
