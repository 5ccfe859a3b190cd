// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// hashFile streams a file's content through SHA-256 and returns its hex
// digest, matching the original implementation's hash_local_file: a
// single streaming pass, 1 MiB at a time, with no intermediate buffering
// of the whole file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.CopyBuffer(hasher, f, make([]byte, 1<<20)); err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// compressFile gzips src into dst (a plain file, not a directory),
// returning the compressed file's SHA-256 hash — the hash recorded in
// the metadata record is always of the stored (compressed) bytes, so
// verifying a fetched payload never requires decompressing it first.
func compressFile(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", &IOError{Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", &IOError{Path: dst, Err: err}
	}
	defer out.Close()

	hasher := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hasher))
	if _, err := io.CopyBuffer(gz, in, make([]byte, 1<<20)); err != nil {
		return "", &IOError{Path: dst, Err: fmt.Errorf("compressing: %w", err)}
	}
	if err := gz.Close(); err != nil {
		return "", &IOError{Path: dst, Err: fmt.Errorf("closing gzip writer: %w", err)}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// compressDir tars and gzips the contents of dir into dst, returning the
// resulting file's SHA-256 hash. Archive entries are relative to dir's
// own contents, not dir itself, matching tarfile.add(path,
// arcname=path.relative_to(local_path)) in the original upload command.
func compressDir(dir, dst string) (string, error) {
	out, err := os.Create(dst)
	if err != nil {
		return "", &IOError{Path: dst, Err: err}
	}
	defer out.Close()

	hasher := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, hasher))
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		linkTarget := ""
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		header.Name = relPath
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if entry.IsDir() || header.Typeflag == tar.TypeSymlink {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.CopyBuffer(tw, f, make([]byte, 1<<20))
		return err
	})
	if walkErr != nil {
		return "", &IOError{Path: dir, Err: fmt.Errorf("archiving: %w", walkErr)}
	}
	if err := tw.Close(); err != nil {
		return "", &IOError{Path: dst, Err: fmt.Errorf("closing tar writer: %w", err)}
	}
	if err := gz.Close(); err != nil {
		return "", &IOError{Path: dst, Err: fmt.Errorf("closing gzip writer: %w", err)}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// extractTarGz unpacks a .tar.gz file at src into destination directory
// dst, which must already exist.
func extractTarGz(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return &IOError{Path: src, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &IOError{Path: src, Err: fmt.Errorf("opening gzip stream: %w", err)}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &IOError{Path: src, Err: fmt.Errorf("reading tar entry: %w", err)}
		}

		target := filepath.Join(dst, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &IOError{Path: target, Err: err}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return &IOError{Path: target, Err: err}
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return &IOError{Path: target, Err: err}
			}
			_, copyErr := io.CopyBuffer(out, tr, make([]byte, 1<<20))
			closeErr := out.Close()
			if copyErr != nil {
				return &IOError{Path: target, Err: copyErr}
			}
			if closeErr != nil {
				return &IOError{Path: target, Err: closeErr}
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return &IOError{Path: target, Err: err}
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return &IOError{Path: target, Err: err}
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return &IOError{Path: target, Err: err}
			}
		}
	}
}

// extractGz unpacks a single-file .gz at src into dst.
func extractGz(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return &IOError{Path: src, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &IOError{Path: src, Err: fmt.Errorf("opening gzip stream: %w", err)}
	}
	defer gz.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &IOError{Path: dst, Err: err}
	}
	defer out.Close()

	if _, err := io.CopyBuffer(out, gz, make([]byte, 1<<20)); err != nil {
		return &IOError{Path: dst, Err: err}
	}
	return nil
}
