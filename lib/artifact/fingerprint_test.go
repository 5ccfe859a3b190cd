// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import "testing"

func TestComputeFingerprintIsDeterministic(t *testing.T) {
	a := computeFingerprint([]byte("hello"))
	b := computeFingerprint([]byte("hello"))
	if a != b {
		t.Fatalf("computeFingerprint not deterministic: %q vs %q", a, b)
	}
	if len(a) != fingerprintLength {
		t.Fatalf("fingerprint length = %d, want %d", len(a), fingerprintLength)
	}
	if err := ValidateFingerprint(a); err != nil {
		t.Fatalf("ValidateFingerprint(%q): %v", a, err)
	}
}

func TestComputeFingerprintDiffersOnContent(t *testing.T) {
	a := computeFingerprint([]byte("hello"))
	b := computeFingerprint([]byte("world"))
	if a == b {
		t.Fatalf("distinct inputs produced the same fingerprint %q", a)
	}
}

func TestValidateFingerprintRejectsBadShapes(t *testing.T) {
	cases := []string{
		"",
		"too-short",
		"UPPERCASE0123456789012345678901",
		"contains-a-hyphen-and-is-32chars",
		"01234567890123456789012345678901", // digits 0/1/8/9 not valid base32
	}
	for _, c := range cases {
		if err := ValidateFingerprint(c); err == nil {
			t.Errorf("ValidateFingerprint(%q): expected error, got nil", c)
		}
	}
}

func TestParseIdentifier(t *testing.T) {
	fp := computeFingerprint([]byte("anything"))

	id, err := ParseIdentifier("compiler:" + fp)
	if err != nil {
		t.Fatalf("ParseIdentifier: %v", err)
	}
	if id.Type != "compiler" || id.Fingerprint != fp || !id.Exact() {
		t.Fatalf("ParseIdentifier = %+v, want type=compiler fingerprint=%s exact=true", id, fp)
	}
	if got := id.String(); got != "compiler:"+fp {
		t.Errorf("String() = %q, want %q", got, "compiler:"+fp)
	}

	bare, err := ParseIdentifier("compiler")
	if err != nil {
		t.Fatalf("ParseIdentifier(bare type): %v", err)
	}
	if bare.Exact() {
		t.Errorf("bare type identifier reported Exact() = true")
	}
	if bare.String() != "compiler" {
		t.Errorf("String() = %q, want %q", bare.String(), "compiler")
	}
}

func TestParseIdentifierRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		":" + computeFingerprint([]byte("x")),
		".hidden:" + computeFingerprint([]byte("x")),
		"compiler:not-a-fingerprint",
	}
	for _, c := range cases {
		if _, err := ParseIdentifier(c); err == nil {
			t.Errorf("ParseIdentifier(%q): expected error, got nil", c)
		}
	}
}

func TestValidateType(t *testing.T) {
	valid := []string{"compiler", "dataset-v2", "a/b"}
	for _, v := range valid {
		if err := ValidateType(v); err != nil {
			t.Errorf("ValidateType(%q): unexpected error: %v", v, err)
		}
	}
	invalid := []string{"", "has:colon", ".hidden", "a/.hidden"}
	for _, v := range invalid {
		if err := ValidateType(v); err == nil {
			t.Errorf("ValidateType(%q): expected error, got nil", v)
		}
	}
}
