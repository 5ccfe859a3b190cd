// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	a, err := hashFile(path)
	if err != nil {
		t.Fatalf("hashFile: %v", err)
	}
	b, err := hashFile(path)
	if err != nil {
		t.Fatalf("hashFile: %v", err)
	}
	if a != b {
		t.Fatalf("hashFile not deterministic: %s vs %s", a, b)
	}
}

func TestCompressFileAndExtractGzRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.bin")
	want := []byte("the quick brown fox jumps over the lazy dog")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	compressed := filepath.Join(dir, "payload.gz")
	hash, err := compressFile(src, compressed)
	if err != nil {
		t.Fatalf("compressFile: %v", err)
	}
	wantHash, err := hashFile(compressed)
	if err != nil {
		t.Fatalf("hashFile(compressed): %v", err)
	}
	if hash != wantHash {
		t.Fatalf("compressFile returned hash %s, want %s", hash, wantHash)
	}

	extracted := filepath.Join(dir, "payload.out")
	if err := extractGz(compressed, extracted); err != nil {
		t.Fatalf("extractGz: %v", err)
	}
	got, err := os.ReadFile(extracted)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, want)
	}
}

func TestCompressDirAndExtractTarGzRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "nested.txt"), []byte("nested"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	archive := filepath.Join(dir, "tree.tar.gz")
	if _, err := compressDir(src, archive); err != nil {
		t.Fatalf("compressDir: %v", err)
	}

	extracted := filepath.Join(dir, "extracted")
	if err := os.MkdirAll(extracted, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := extractTarGz(archive, extracted); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}

	top, err := os.ReadFile(filepath.Join(extracted, "top.txt"))
	if err != nil || string(top) != "top" {
		t.Errorf("top.txt = %q, %v, want %q, nil", top, err, "top")
	}
	nested, err := os.ReadFile(filepath.Join(extracted, "sub", "nested.txt"))
	if err != nil || string(nested) != "nested" {
		t.Errorf("sub/nested.txt = %q, %v, want %q, nil", nested, err, "nested")
	}
}

func TestCompressDirAndExtractTarGzPreservesSymlinks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "real.txt"), []byte("real"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink("real.txt", filepath.Join(src, "link.txt")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	archive := filepath.Join(dir, "tree.tar.gz")
	if _, err := compressDir(src, archive); err != nil {
		t.Fatalf("compressDir: %v", err)
	}

	extracted := filepath.Join(dir, "extracted")
	if err := os.MkdirAll(extracted, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := extractTarGz(archive, extracted); err != nil {
		t.Fatalf("extractTarGz: %v", err)
	}

	linkPath := filepath.Join(extracted, "link.txt")
	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "real.txt" {
		t.Errorf("link.txt target = %q, want %q", target, "real.txt")
	}
	data, err := os.ReadFile(linkPath)
	if err != nil || string(data) != "real" {
		t.Errorf("reading through link.txt = %q, %v, want %q, nil", data, err, "real")
	}
}
