// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directory names within a Cache root.
const (
	metadataDirName  = "metadata"
	artifactsDirName = "artifacts"
	locksDirName     = "locks"
)

// Cache owns a local, on-disk mirror of published artifacts: metadata
// records, fetched payloads, and the side files (.env, .target) that
// make repeated resolution fast. Safe for concurrent use — writes to the
// same fingerprint are serialized by an advisory file lock; different
// fingerprints never contend.
//
// Grounded in lib/artifact/store.go's directory bootstrap and
// tmp-then-rename write discipline, adapted from that package's
// hex-sharded, chunked container layout to the flat
// metadata/<type>/<fingerprint> layout this format uses.
type Cache struct {
	root   string
	logger *slog.Logger
}

// NewCache creates a Cache rooted at root, creating the metadata,
// artifacts and locks subdirectories if needed.
func NewCache(root string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{
		filepath.Join(root, metadataDirName),
		filepath.Join(root, artifactsDirName),
		filepath.Join(root, locksDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &IOError{Path: dir, Err: fmt.Errorf("creating cache directory: %w", err)}
		}
	}
	return &Cache{root: root, logger: logger}, nil
}

// Root returns the cache's root directory.
func (c *Cache) Root() string { return c.root }

func (c *Cache) metadataPath(artifactType, fingerprint, suffix string) string {
	return filepath.Join(c.root, metadataDirName, artifactType, fingerprint+suffix)
}

// MetadataPath returns the path of the canonical TOML record for an
// artifact.
func (c *Cache) MetadataPath(artifactType, fingerprint string) string {
	return c.metadataPath(artifactType, fingerprint, ".toml")
}

// EnvPath returns the path of the generated .env side file.
func (c *Cache) EnvPath(artifactType, fingerprint string) string {
	return c.metadataPath(artifactType, fingerprint, ".env")
}

// TargetPath returns the path of the .target symlink the fast-path
// launcher reads directly.
func (c *Cache) TargetPath(artifactType, fingerprint string) string {
	return c.metadataPath(artifactType, fingerprint, ".target")
}

// LockPath returns the path of the advisory lock file guarding fetches
// of this artifact.
func (c *Cache) LockPath(artifactType, fingerprint string) string {
	return filepath.Join(c.root, locksDirName, artifactType, fingerprint+".lock")
}

// ArtifactDir returns the directory an artifact's payload is unpacked
// into.
func (c *Cache) ArtifactDir(artifactType, fingerprint string) string {
	return filepath.Join(c.root, artifactsDirName, artifactType, fingerprint)
}

// ArtifactPath returns the path of the payload itself within its
// artifact directory.
func (c *Cache) ArtifactPath(rec *Record) string {
	return filepath.Join(c.ArtifactDir(rec.Type, rec.Fingerprint()), rec.Name)
}

// WriteMetadata atomically publishes rec's canonical TOML record into
// the cache, via a temp file in the same directory followed by
// os.Rename — the rename is only atomic within one filesystem, so the
// temp file must never live anywhere else.
func (c *Cache) WriteMetadata(rec *Record) error {
	finalPath := c.MetadataPath(rec.Type, rec.Fingerprint())
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return &IOError{Path: filepath.Dir(finalPath), Err: err}
	}
	return writeFileAtomic(finalPath, rec.Canonicalize())
}

// ReadMetadata loads the cached record for an exact identifier. Returns
// an error wrapping ErrNotFound if no such record is cached locally.
func (c *Cache) ReadMetadata(artifactType, fingerprint string) (*Record, error) {
	data, err := os.ReadFile(c.MetadataPath(artifactType, fingerprint))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, artifactType, fingerprint)
		}
		return nil, &IOError{Path: c.MetadataPath(artifactType, fingerprint), Err: err}
	}
	return ParseRecord(data)
}

// ScanType returns every cached metadata record whose type is
// artifactType or has artifactType as a prefix segment (artifactType
// "foo" matches a record typed "foo/bar"), matching the type hierarchy's
// listing-by-prefix semantics. Used by the query engine for non-exact
// (attribute) queries. There is no persisted index: every call walks the
// metadata directory tree fresh, so the result always reflects current
// on-disk state, at the cost of a directory walk per query.
func (c *Cache) ScanType(artifactType string) ([]*Record, error) {
	dir := filepath.Join(c.root, metadataDirName, artifactType)
	records, err := walkMetadataTOML(dir, c.logger)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// walkMetadataTOML recursively collects every ".toml" record under dir,
// at any depth, so a scan rooted at a type directory also picks up every
// nested subtype — the type hierarchy's prefix-segment matching. Skips
// and warns on a malformed record rather than aborting the whole scan,
// since one corrupt cache entry should never make every other artifact
// of the type unresolvable.
func walkMetadataTOML(dir string, logger *slog.Logger) ([]*Record, error) {
	var records []*Record
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".toml") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &IOError{Path: path, Err: err}
		}
		rec, err := ParseRecord(data)
		if err != nil {
			logger.Warn("skipping malformed cached record", "path", path, "error", err)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// EnsureLocal guarantees rec's payload is present under its
// ArtifactDir, fetching it from gw if necessary, and returns the path to
// the (decompressed) artifact. Safe for concurrent callers resolving the
// same fingerprint: the double-checked-locking pattern below ensures the
// payload is fetched at most once.
//
// If gw is nil, a cache miss is reported as ErrOfflineMiss rather than
// attempted over the network.
func (c *Cache) EnsureLocal(ctx context.Context, gw *Gateway, rec *Record) (string, error) {
	finalPath := c.ArtifactPath(rec)

	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	lockPath := c.LockPath(rec.Type, rec.Fingerprint())
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return "", &IOError{Path: filepath.Dir(lockPath), Err: err}
	}
	lock, err := acquireLock(lockPath)
	if err != nil {
		return "", err
	}
	defer lock.release()

	// Re-check now that the lock is held: another process may have
	// finished fetching while we were waiting.
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	if gw == nil {
		return "", fmt.Errorf("%w: %s:%s", ErrOfflineMiss, rec.Type, rec.Fingerprint())
	}

	artifactDir := c.ArtifactDir(rec.Type, rec.Fingerprint())
	partialDir := artifactDir + ".partial"
	if err := os.RemoveAll(partialDir); err != nil {
		return "", &IOError{Path: partialDir, Err: err}
	}
	if err := os.MkdirAll(partialDir, 0o755); err != nil {
		return "", &IOError{Path: partialDir, Err: err}
	}
	defer os.RemoveAll(partialDir)

	unpackedDir := filepath.Join(partialDir, "unpacked")
	if err := os.MkdirAll(unpackedDir, 0o755); err != nil {
		return "", &IOError{Path: unpackedDir, Err: err}
	}

	if rec.PathType == PathTypeDir {
		// Directory artifacts are never compressed, so the gateway can
		// fetch straight into their final shape with no staging step.
		if err := gw.FetchPayload(ctx, rec, filepath.Join(unpackedDir, rec.Name)); err != nil {
			return "", err
		}
	} else {
		stagedPayload := filepath.Join(partialDir, payloadStagingName(rec))
		if err := gw.FetchPayload(ctx, rec, stagedPayload); err != nil {
			return "", err
		}
		if err := unpackPayload(rec, stagedPayload, unpackedDir); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(artifactDir), 0o755); err != nil {
		return "", &IOError{Path: filepath.Dir(artifactDir), Err: err}
	}
	if err := os.Rename(unpackedDir, artifactDir); err != nil {
		if os.IsExist(err) {
			// Another process published it between our re-check and
			// this rename; the existing directory wins.
			return finalPath, c.generateSideFiles(rec)
		}
		return "", &IOError{Path: artifactDir, Err: fmt.Errorf("publishing fetched artifact: %w", err)}
	}

	if err := c.generateSideFiles(rec); err != nil {
		return "", err
	}
	return finalPath, nil
}

// payloadStagingName returns the staged filename for a fetched payload,
// before it is unpacked. file/dir artifacts stage under their own name;
// compressed artifacts stage under their name plus the compression
// suffix, matching the remote layout.
func payloadStagingName(rec *Record) string {
	return rec.Name + rec.PathType.Suffix()
}

// unpackPayload places a fetched payload into dir in its final,
// ready-to-use form: a plain file is copied as it is, gz is
// gunzipped, tar.gz is untarred-and-gunzipped. PathTypeDir never reaches
// here — see EnsureLocal, which fetches directory artifacts straight
// into their final shape.
func unpackPayload(rec *Record, stagedPath, dir string) error {
	switch rec.PathType {
	case PathTypeFile:
		return copyFile(stagedPath, filepath.Join(dir, rec.Name))
	case PathTypeGz:
		return extractGz(stagedPath, filepath.Join(dir, rec.Name))
	case PathTypeTarGz:
		target := filepath.Join(dir, rec.Name)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return &IOError{Path: target, Err: err}
		}
		return extractTarGz(stagedPath, target)
	default:
		return fmt.Errorf("%w: unknown path type %q", ErrFormat, rec.PathType)
	}
}

// generateSideFiles writes the .env file and atomically republishes the
// .target symlink for rec, matching
// LocalRepo.generate_caches_for_artifact in the original implementation.
func (c *Cache) generateSideFiles(rec *Record) error {
	envPath := c.EnvPath(rec.Type, rec.Fingerprint())
	if err := os.MkdirAll(filepath.Dir(envPath), 0o755); err != nil {
		return &IOError{Path: filepath.Dir(envPath), Err: err}
	}
	if err := writeFileAtomic(envPath, []byte(FormatEnvFile(rec, c.ArtifactPath(rec)))); err != nil {
		return err
	}

	targetPath := c.TargetPath(rec.Type, rec.Fingerprint())
	tmpTarget := targetPath + ".tmp"
	os.Remove(tmpTarget)
	if err := os.Symlink(c.ArtifactPath(rec), tmpTarget); err != nil {
		return &IOError{Path: tmpTarget, Err: err}
	}
	if err := os.Rename(tmpTarget, targetPath); err != nil {
		return &IOError{Path: targetPath, Err: fmt.Errorf("publishing target symlink: %w", err)}
	}
	return nil
}

// FormatEnvFile renders an artifact's Env map as shell "export" lines,
// substituting "${BASE_DIR}" in each value with baseDir. Every value is
// wrapped in single quotes, with an embedded single quote written as
// '\'', so the file is safe to `source`; names go through shellQuote.
func FormatEnvFile(rec *Record, baseDir string) string {
	var b strings.Builder
	for _, k := range sortedKeys(rec.Env) {
		v := strings.ReplaceAll(rec.Env[k], "${BASE_DIR}", baseDir)
		fmt.Fprintf(&b, "export %s='%s'\n", shellQuote(k), strings.ReplaceAll(v, "'", `'\''`))
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shellQuote renders s as a POSIX shell word, matching the effect of
// Python's shlex.quote: a string made only of shell-safe characters is
// returned bare, anything else is single-quoted with any embedded single
// quotes escaped.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	needsQuoting := false
	for _, r := range s {
		if !isShellSafe(r) {
			needsQuoting = true
			break
		}
	}
	if !needsQuoting {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("@%_-+=:,./", r):
		return true
	default:
		return false
	}
}

// writeFileAtomic writes data to a temp file beside path, then renames
// it into place, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &IOError{Path: dir, Err: err}
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

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &IOError{Path: src, Err: err}
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return &IOError{Path: src, Err: err}
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return &IOError{Path: dst, Err: err}
	}
	defer out.Close()
	if _, err := io.CopyBuffer(out, in, make([]byte, 1<<20)); err != nil {
		return &IOError{Path: dst, Err: err}
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
