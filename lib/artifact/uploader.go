// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// UploadOptions describes a new artifact to publish: what local path to
// read its payload from and the metadata to attach to it. Grounded in the
// original CLI's upload command's argument set.
type UploadOptions struct {
	LocalPath   string // file or directory on the uploading host
	Type        string
	Name        string // defaults to filepath.Base(LocalPath)
	Description string
	Attributes  map[string]string
	Env         map[string]string
	PubDate     time.Time // zero value means time.Now()

	// Compress controls whether the payload is gzipped (file) or
	// tar-gzipped (directory) before publication. The zero value (false)
	// publishes the payload uncompressed; the "ampm upload" command sets
	// it to true unless --uncompressed is given, matching the original's
	// --compressed/--uncompressed default.
	Compress bool
	// RemotePath, if set, overrides the computed remote payload
	// location — the original's --remote-path, used to publish artifacts
	// that must live at a fixed, predictable path rather than the
	// fingerprint-derived default.
	RemotePath string
}

// Upload packages opts.LocalPath, computes its fingerprint, and publishes
// both payload and metadata to gw. Publication is idempotent: uploading
// byte-identical content a second time (even from a different host)
// produces the same fingerprint and is a no-op, not an error — only the
// CLI surface chooses to report that distinctly when useful.
//
// The returned Record is also written into cache (when non-nil), so the
// artifact is immediately resolvable locally without a round trip
// through gw.
func Upload(ctx context.Context, gw *Gateway, cache *Cache, opts UploadOptions) (*Record, error) {
	if err := ValidateType(opts.Type); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = filepath.Base(opts.LocalPath)
	}

	info, err := os.Stat(opts.LocalPath)
	if err != nil {
		return nil, &IOError{Path: opts.LocalPath, Err: err}
	}

	pubDate := opts.PubDate
	if pubDate.IsZero() {
		pubDate = time.Now()
	}

	rec := &Record{
		Name:         name,
		Description:  opts.Description,
		PubDate:      pubDate,
		Type:         opts.Type,
		Attributes:   copyStringMap(opts.Attributes),
		Env:          copyStringMap(opts.Env),
		PathLocation: opts.RemotePath,
	}

	stagingDir, err := os.MkdirTemp("", "ampm-upload-*")
	if err != nil {
		return nil, &IOError{Path: os.TempDir(), Err: err}
	}
	defer os.RemoveAll(stagingDir)

	stagedPayload, err := stagePayload(rec, opts, info, stagingDir)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := gw.PublishPayload(ctx, rec, stagedPayload); err != nil {
		return nil, err
	}
	if err := gw.PublishMetadata(ctx, rec); err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.WriteMetadata(rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// stagePayload prepares rec's payload in stagingDir, sets rec.PathType
// and rec.PathHash, and returns the staged file's path. For an
// uncompressed directory there is nothing to stage — the gateway is
// asked to publish the original directory tree directly and no hash is
// recorded, matching the original's path_hash=None for "dir" artifacts.
func stagePayload(rec *Record, opts UploadOptions, info os.FileInfo, stagingDir string) (string, error) {
	switch {
	case info.IsDir() && opts.Compress:
		rec.PathType = PathTypeTarGz
		staged := filepath.Join(stagingDir, rec.Name+".tar.gz")
		hash, err := compressDir(opts.LocalPath, staged)
		if err != nil {
			return "", err
		}
		rec.PathHash = hash
		return staged, nil

	case info.IsDir():
		rec.PathType = PathTypeDir
		return opts.LocalPath, nil

	case opts.Compress:
		rec.PathType = PathTypeGz
		staged := filepath.Join(stagingDir, rec.Name+".gz")
		hash, err := compressFile(opts.LocalPath, staged)
		if err != nil {
			return "", err
		}
		rec.PathHash = hash
		return staged, nil

	default:
		rec.PathType = PathTypeFile
		hash, err := hashFile(opts.LocalPath)
		if err != nil {
			return "", err
		}
		rec.PathHash = hash
		return opts.LocalPath, nil
	}
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
