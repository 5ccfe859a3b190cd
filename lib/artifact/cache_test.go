// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache
}

func TestCacheWriteReadMetadataRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	r := sampleRecord()

	if err := cache.WriteMetadata(r); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	got, err := cache.ReadMetadata(r.Type, r.Fingerprint())
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got.Fingerprint() != r.Fingerprint() {
		t.Errorf("ReadMetadata fingerprint mismatch: %s vs %s", got.Fingerprint(), r.Fingerprint())
	}
}

func TestCacheReadMetadataMissingIsNotFound(t *testing.T) {
	cache := newTestCache(t)
	_, err := cache.ReadMetadata("compiler", "nonexistentfingerprint0000000000"[:32])
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadMetadata error = %v, want ErrNotFound", err)
	}
}

func TestCacheScanType(t *testing.T) {
	cache := newTestCache(t)
	a := sampleRecord()
	b := sampleRecord()
	b.Description = "a different one, different fingerprint"

	if err := cache.WriteMetadata(a); err != nil {
		t.Fatalf("WriteMetadata(a): %v", err)
	}
	if err := cache.WriteMetadata(b); err != nil {
		t.Fatalf("WriteMetadata(b): %v", err)
	}

	records, err := cache.ScanType(a.Type)
	if err != nil {
		t.Fatalf("ScanType: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ScanType returned %d records, want 2", len(records))
	}
}

func TestCacheScanTypeIncludesNestedSubtypes(t *testing.T) {
	cache := newTestCache(t)
	parent := sampleRecord()
	child := sampleRecord()
	child.Type = "compiler/cross"
	child.Description = "a cross compiler, distinct fingerprint"

	if err := cache.WriteMetadata(parent); err != nil {
		t.Fatalf("WriteMetadata(parent): %v", err)
	}
	if err := cache.WriteMetadata(child); err != nil {
		t.Fatalf("WriteMetadata(child): %v", err)
	}

	records, err := cache.ScanType("compiler")
	if err != nil {
		t.Fatalf("ScanType: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ScanType(%q) returned %d records, want 2 (parent + nested subtype)", "compiler", len(records))
	}

	// Scanning the subtype directly must not see the parent's records.
	nested, err := cache.ScanType("compiler/cross")
	if err != nil {
		t.Fatalf("ScanType(nested): %v", err)
	}
	if len(nested) != 1 || nested[0].Fingerprint() != child.Fingerprint() {
		t.Fatalf("ScanType(%q) = %v, want only the child record", "compiler/cross", nested)
	}
}

func TestCacheScanTypeOfUnknownTypeIsEmpty(t *testing.T) {
	cache := newTestCache(t)
	records, err := cache.ScanType("never-uploaded")
	if err != nil {
		t.Fatalf("ScanType: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("ScanType = %v, want empty", records)
	}
}

func TestEnsureLocalFetchesAndGeneratesSideFiles(t *testing.T) {
	remoteRoot := t.TempDir()
	gateway, err := NewGateway(remoteRoot)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "binary"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	uploaded, err := Upload(context.Background(), gateway, nil, UploadOptions{
		LocalPath: filepath.Join(srcDir, "binary"),
		Type:      "tool",
		Name:      "greeter",
		Env:       map[string]string{"GREETER_BIN": "${BASE_DIR}/greeter"},
		Compress:  true,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	cache := newTestCache(t)
	path, err := cache.EnsureLocal(context.Background(), gateway, uploaded)
	if err != nil {
		t.Fatalf("EnsureLocal: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if string(data) != "#!/bin/sh\necho hi\n" {
		t.Errorf("fetched payload = %q, want the original script", data)
	}

	// A second call must be satisfied entirely from the fast path (no
	// gateway access) — pass a nil gateway to prove it.
	path2, err := cache.EnsureLocal(context.Background(), nil, uploaded)
	if err != nil {
		t.Fatalf("EnsureLocal (cached): %v", err)
	}
	if path2 != path {
		t.Errorf("EnsureLocal returned %q on second call, want %q", path2, path)
	}

	envPath := cache.EnvPath(uploaded.Type, uploaded.Fingerprint())
	envData, err := os.ReadFile(envPath)
	if err != nil {
		t.Fatalf("ReadFile(env): %v", err)
	}
	if !strings.Contains(string(envData), "GREETER_BIN=") {
		t.Errorf("env file %q missing GREETER_BIN export", envData)
	}

	targetPath := cache.TargetPath(uploaded.Type, uploaded.Fingerprint())
	link, err := os.Readlink(targetPath)
	if err != nil {
		t.Fatalf("Readlink(target): %v", err)
	}
	if link != path {
		t.Errorf(".target link = %q, want %q", link, path)
	}
}

func TestEnsureLocalOfflineMissWithoutGateway(t *testing.T) {
	cache := newTestCache(t)
	r := sampleRecord()
	r.PathType = PathTypeGz

	_, err := cache.EnsureLocal(context.Background(), nil, r)
	if !errors.Is(err, ErrOfflineMiss) {
		t.Fatalf("EnsureLocal error = %v, want ErrOfflineMiss", err)
	}
}

func TestFormatEnvFileSubstitutesBaseDirAndQuotes(t *testing.T) {
	r := &Record{Env: map[string]string{
		"PATH_VAR": "${BASE_DIR}/bin",
		"PLAIN":    "value with spaces",
	}}
	out := FormatEnvFile(r, "/var/ampm/artifacts/tool/abc/greeter")
	if !strings.Contains(out, `export PATH_VAR='/var/ampm/artifacts/tool/abc/greeter/bin'`) {
		t.Errorf("output missing substituted PATH_VAR:\n%s", out)
	}
	if !strings.Contains(out, `export PLAIN='value with spaces'`) {
		t.Errorf("output missing quoted PLAIN:\n%s", out)
	}
}
