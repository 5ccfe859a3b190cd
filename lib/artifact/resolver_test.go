// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestResolver(t *testing.T, offline bool) (*Resolver, *Gateway) {
	t.Helper()
	gateway, err := NewGateway(t.TempDir())
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	cache, err := NewCache(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return NewResolver(cache, gateway, offline), gateway
}

func TestResolverResolveExactFromRemote(t *testing.T) {
	resolver, gateway := newTestResolver(t, false)
	ctx := context.Background()
	r := sampleRecord()
	if err := gateway.PublishMetadata(ctx, r); err != nil {
		t.Fatalf("PublishMetadata: %v", err)
	}

	got, err := resolver.Resolve(ctx, ExactQuery(r.Identifier()))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Fingerprint() != r.Fingerprint() {
		t.Errorf("Resolve fingerprint mismatch: %s vs %s", got.Fingerprint(), r.Fingerprint())
	}
}

func TestResolverResolveExactNotFound(t *testing.T) {
	resolver, _ := newTestResolver(t, false)
	id := Identifier{Type: "compiler", Fingerprint: "abcdefghijklmnopqrstuvwxyz234567"}
	_, err := resolver.Resolve(context.Background(), ExactQuery(id))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve error = %v, want ErrNotFound", err)
	}
}

func TestResolverOfflineMissWhenNotCached(t *testing.T) {
	resolver, gateway := newTestResolver(t, true)
	ctx := context.Background()
	r := sampleRecord()
	if err := gateway.PublishMetadata(ctx, r); err != nil {
		t.Fatalf("PublishMetadata: %v", err)
	}

	// Offline resolver must never consult the gateway, even though the
	// record exists there.
	_, err := resolver.Resolve(ctx, ExactQuery(r.Identifier()))
	if !errors.Is(err, ErrOfflineMiss) {
		t.Fatalf("Resolve error = %v, want ErrOfflineMiss", err)
	}
}

func TestResolverAttributeQuerySyncsFromRemote(t *testing.T) {
	resolver, gateway := newTestResolver(t, false)
	ctx := context.Background()
	r := rec("gcc", "12.2.0", "x86_64", "2025-01-01T00:00:00Z")
	if err := gateway.PublishMetadata(ctx, r); err != nil {
		t.Fatalf("PublishMetadata: %v", err)
	}

	got, err := resolver.Resolve(ctx, AttributeQuery("compiler", map[string]string{"arch": "x86_64"}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Fingerprint() != r.Fingerprint() {
		t.Errorf("Resolve fingerprint mismatch: %s vs %s", got.Fingerprint(), r.Fingerprint())
	}
}

func TestResolverAttributeQueryAmbiguousErrors(t *testing.T) {
	resolver, gateway := newTestResolver(t, false)
	ctx := context.Background()
	a := rec("gcc", "12.2.0", "x86_64", "2025-01-01T00:00:00Z")
	b := rec("gcc", "11.0.0", "arm64", "2025-01-01T00:00:00Z")
	for _, r := range []*Record{a, b} {
		if err := gateway.PublishMetadata(ctx, r); err != nil {
			t.Fatalf("PublishMetadata: %v", err)
		}
	}

	_, err := resolver.Resolve(ctx, AttributeQuery("compiler", map[string]string{"version": "@semver:newest"}))
	var ambiguous *AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("Resolve error = %v, want *AmbiguousError", err)
	}
}

func TestResolverGetFetchesPayload(t *testing.T) {
	resolver, gateway := newTestResolver(t, false)
	ctx := context.Background()

	stagingDir := t.TempDir()
	localFile := filepath.Join(stagingDir, "data.bin")
	if err := os.WriteFile(localFile, []byte("payload bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	uploaded, err := Upload(ctx, gateway, nil, UploadOptions{
		LocalPath: localFile,
		Type:      "tool",
		Name:      "widget",
		Compress:  true,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	rec, path, err := resolver.Get(ctx, ExactQuery(uploaded.Identifier()))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Fingerprint() != uploaded.Fingerprint() {
		t.Errorf("Get record fingerprint mismatch")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload bytes" {
		t.Errorf("Get payload = %q, want %q", data, "payload bytes")
	}
}

func TestParseQueryExactIgnoresAttrs(t *testing.T) {
	fp := computeFingerprint([]byte("x"))
	q, err := ParseQuery("compiler:"+fp, map[string]string{"arch": "x86_64"})
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if !q.Identifier.Exact() || q.Identifier.Fingerprint != fp {
		t.Fatalf("ParseQuery = %+v, want an exact identifier", q)
	}
}

func TestParseQueryBareTypeBuildsAttributeQuery(t *testing.T) {
	q, err := ParseQuery("compiler", map[string]string{"arch": "x86_64"})
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.Identifier.Exact() || q.Type != "compiler" || q.Attrs["arch"] != "x86_64" {
		t.Fatalf("ParseQuery = %+v, want an attribute query for type compiler", q)
	}
}
