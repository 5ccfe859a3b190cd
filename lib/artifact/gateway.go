// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Gateway is the remote artifact repository: an NFS-mounted directory
// tree, reached through ordinary filesystem calls rather than a network
// protocol, matching the original implementation's assumption that the
// remote store is just another mounted filesystem. Every method accepts
// a context and checks it before (and, while walking metadata, between)
// filesystem calls; the underlying os calls themselves are not
// context-aware, so a call already in progress is not interrupted.
type Gateway struct {
	root string
}

// NewGateway returns a Gateway rooted at an existing directory. The
// directory is not created: a missing remote root is treated as a
// configuration error, not something this package should paper over.
func NewGateway(root string) (*Gateway, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &IOError{Path: root, Err: fmt.Errorf("opening remote repository: %w", err)}
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: remote repository root %q is not a directory", ErrMalformed, root)
	}
	return &Gateway{root: root}, nil
}

func (g *Gateway) metadataPath(artifactType, fingerprint string) string {
	return filepath.Join(g.root, metadataDirName, artifactType, fingerprint+".toml")
}

func (g *Gateway) payloadPath(rec *Record) string {
	if rec.PathLocation != "" {
		return filepath.Join(g.root, rec.PathLocation)
	}
	return filepath.Join(g.root, artifactsDirName, rec.Type, rec.Fingerprint(), rec.Name+rec.PathType.Suffix())
}

// SyncMetadata returns every published record whose type is artifactType
// or has artifactType as a prefix segment (artifactType "foo" matches a
// record typed "foo/bar"), matching the type hierarchy's listing-by-prefix
// semantics — read directly from the remote repository. There is no local
// caching of this listing — callers that want a persistent mirror write
// the results into a [Cache] themselves via [Cache.WriteMetadata].
func (g *Gateway) SyncMetadata(ctx context.Context, artifactType string) ([]*Record, error) {
	dir := filepath.Join(g.root, metadataDirName, artifactType)
	var records []*Record
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ".toml" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &IOError{Path: path, Err: err}
		}
		rec, err := ParseRecord(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// FetchMetadata reads one exact record straight from the remote
// repository, bypassing any local cache.
func (g *Gateway) FetchMetadata(ctx context.Context, artifactType, fingerprint string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := g.metadataPath(artifactType, fingerprint)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, artifactType, fingerprint)
		}
		return nil, &IOError{Path: path, Err: err}
	}
	return ParseRecord(data)
}

// FetchPayload copies rec's payload from the remote repository to dst.
// For a PathTypeDir artifact, dst is a directory copied as a tree; every
// other path type copies a single file. Unpacking a compressed payload
// (if rec.PathType requires it) is the caller's job, matching
// [Cache.EnsureLocal]'s staging-then-unpack split.
func (g *Gateway) FetchPayload(ctx context.Context, rec *Record, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := g.payloadPath(rec)

	if rec.PathType == PathTypeDir {
		if err := copyDir(src, dst); err != nil {
			return fmt.Errorf("fetching payload: %w", err)
		}
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return &IOError{Path: src, Err: fmt.Errorf("fetching payload: %w", err)}
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return &IOError{Path: dst, Err: err}
	}
	defer out.Close()

	if _, err := io.CopyBuffer(out, in, make([]byte, 1<<20)); err != nil {
		return &IOError{Path: dst, Err: fmt.Errorf("fetching payload: %w", err)}
	}

	if rec.PathHash != "" {
		digest, err := hashFile(dst)
		if err != nil {
			return err
		}
		if digest != rec.PathHash {
			return fmt.Errorf("%w: payload for %s has hash %s, metadata records %s", ErrIntegrity, rec.Identifier(), digest, rec.PathHash)
		}
	}
	return nil
}

// PublishMetadata atomically publishes rec's canonical record to the
// remote repository. If a record with the same fingerprint already
// exists, publication is a no-op — two uploads of byte-identical content
// produce the same fingerprint and therefore the same artifact, so the
// second publish is expected, not an error.
func (g *Gateway) PublishMetadata(ctx context.Context, rec *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := g.metadataPath(rec.Type, rec.Fingerprint())
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &IOError{Path: filepath.Dir(path), Err: err}
	}
	return publishAtomic(path, rec.Canonicalize())
}

// PublishPayload atomically publishes a local payload (already
// compressed, if rec.PathType calls for it) to its remote location.
// Republishing the same fingerprint's payload is a no-op, matching
// PublishMetadata's idempotence and letting a partially-failed upload be
// retried safely. An uncompressed directory artifact (PathTypeDir) is
// copied as a tree rather than a single file; every other path type is a
// plain file.
func (g *Gateway) PublishPayload(ctx context.Context, rec *Record, localPayload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst := g.payloadPath(rec)

	if rec.PathType == PathTypeDir {
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return &IOError{Path: filepath.Dir(dst), Err: err}
		}
		return publishDirAtomic(dst, localPayload)
	}

	if _, err := os.Stat(dst); err == nil {
		if rec.PathHash != "" {
			existingHash, err := hashFile(dst)
			if err != nil {
				return err
			}
			if existingHash != rec.PathHash {
				return fmt.Errorf("%w: %s already holds content hashing to %s, not %s", ErrAlreadyPublished, dst, existingHash, rec.PathHash)
			}
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &IOError{Path: filepath.Dir(dst), Err: err}
	}
	return publishFileAtomic(dst, localPayload)
}

// RemoveArtifact deletes a published artifact's metadata and payload from
// the remote repository. Metadata is removed first: a payload without a
// metadata record is invisible to every query and fast-path lookup, so
// this ordering never leaves a reachable-but-broken artifact, even if the
// process is interrupted between the two removals.
func (g *Gateway) RemoveArtifact(ctx context.Context, id Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !id.Exact() {
		return fmt.Errorf("%w: remote-rm requires an exact type:fingerprint identifier, got %q", ErrMalformed, id)
	}

	rec, err := g.FetchMetadata(ctx, id.Type, id.Fingerprint)
	if err != nil {
		return err
	}

	metaPath := g.metadataPath(id.Type, id.Fingerprint)
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return &IOError{Path: metaPath, Err: err}
	}

	payloadPath := g.payloadPath(rec)
	if err := os.RemoveAll(payloadPath); err != nil && !os.IsNotExist(err) {
		return &IOError{Path: payloadPath, Err: err}
	}
	// The payload directory (artifacts/<type>/<fingerprint>/) is left
	// behind if non-empty for any other reason; an empty one is tidied up
	// as a courtesy but its absence is never load-bearing.
	os.Remove(filepath.Dir(payloadPath))
	return nil
}

// publishAtomic writes data to a temp file beside path, then renames it
// into place. os.Rename replaces a file already at path, so if a
// concurrent publisher won the race to the same fingerprint, its record
// is replaced by identical bytes; see [ErrAlreadyPublished]'s doc comment
// for why concurrent identical publishes are not an error.
func publishAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return &IOError{Path: filepath.Dir(path), Err: err}
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &IOError{Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &IOError{Path: path, Err: fmt.Errorf("publishing: %w", err)}
	}
	success = true
	return nil
}

// publishFileAtomic streams src into a temp file beside dst, then
// renames it into place, without ever holding the whole payload in
// memory.
func publishFileAtomic(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return &IOError{Path: src, Err: err}
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return &IOError{Path: filepath.Dir(dst), Err: err}
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.CopyBuffer(tmp, in, make([]byte, 1<<20)); err != nil {
		tmp.Close()
		return &IOError{Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return &IOError{Path: dst, Err: fmt.Errorf("publishing: %w", err)}
	}
	success = true
	return nil
}

// publishDirAtomic copies the directory tree at src into a temp
// directory beside dst, then renames it into place, giving directory
// artifacts the same publish-or-nothing guarantee file artifacts get
// from publishFileAtomic.
func publishDirAtomic(dst, src string) error {
	tmpDir := dst + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return &IOError{Path: tmpDir, Err: err}
	}
	if err := copyDir(src, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		return err
	}
	if err := os.Rename(tmpDir, dst); err != nil {
		os.RemoveAll(tmpDir)
		return &IOError{Path: dst, Err: fmt.Errorf("publishing: %w", err)}
	}
	return nil
}
