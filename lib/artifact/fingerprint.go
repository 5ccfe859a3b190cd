// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"regexp"
	"strings"
)

// fingerprintLength is the length, in characters, of a rendered
// fingerprint: the first 160 bits (20 bytes) of a SHA-256 digest,
// base32-encoded without padding.
const fingerprintLength = 32

// fingerprintEncoding is RFC 4648 base32 with no padding, lower-cased on
// output. Padding is meaningless here since 20 bytes divides evenly into
// 5-bit groups (160 / 5 = 32), but no-padding is used regardless so a
// fingerprint never contains a stray "=".
var fingerprintEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

var fingerprintPattern = regexp.MustCompile(`^[a-z2-7]{32}$`)

// computeFingerprint hashes canonical with SHA-256, keeps the first 20
// bytes, and renders them as lowercase base32. This is the sole place a
// Record's identity is derived from its bytes; callers never construct a
// fingerprint any other way, so two records that canonicalize to the same
// bytes always fingerprint identically regardless of the platform's map
// iteration order.
func computeFingerprint(canonical []byte) string {
	digest := sha256.Sum256(canonical)
	return strings.ToLower(fingerprintEncoding.EncodeToString(digest[:20]))
}

// ValidateFingerprint reports whether s has the shape of a fingerprint:
// exactly 32 lowercase base32 characters. It does not verify that any
// artifact with this fingerprint actually exists.
func ValidateFingerprint(s string) error {
	if !fingerprintPattern.MatchString(s) {
		return fmt.Errorf("%w: fingerprint %q must be 32 lowercase base32 characters", ErrFormat, s)
	}
	return nil
}

// Identifier is the parsed form of an artifact identifier: "<type>" or
// "<type>:<fingerprint>". A bare type with no fingerprint is a valid,
// very broad attribute query, not an error — matching the original
// implementation's `identifier.partition(':')` semantics.
type Identifier struct {
	Type        string
	Fingerprint string // empty when the identifier names only a type
}

// Exact reports whether this identifier names a single, specific
// artifact rather than a query over a type.
func (id Identifier) Exact() bool {
	return id.Fingerprint != ""
}

// String renders the identifier back to its canonical textual form.
func (id Identifier) String() string {
	if id.Fingerprint == "" {
		return id.Type
	}
	return id.Type + ":" + id.Fingerprint
}

// ParseIdentifier splits "<type>" or "<type>:<fingerprint>" into an
// Identifier, validating the type and, if present, the fingerprint shape.
func ParseIdentifier(raw string) (Identifier, error) {
	artifactType, fingerprint, _ := strings.Cut(raw, ":")
	if err := ValidateType(artifactType); err != nil {
		return Identifier{}, err
	}
	if fingerprint != "" {
		if err := ValidateFingerprint(fingerprint); err != nil {
			return Identifier{}, err
		}
	}
	return Identifier{Type: artifactType, Fingerprint: fingerprint}, nil
}

// ValidateType checks an artifact type string against the same rules the
// original implementation's CLI enforced at upload time: no colon (it
// would be ambiguous with the "<type>:<fingerprint>" separator), no path
// segment starting with a dot, and no leading dot.
func ValidateType(artifactType string) error {
	if artifactType == "" {
		return fmt.Errorf("%w: artifact type must not be empty", ErrFormat)
	}
	if strings.Contains(artifactType, ":") {
		return fmt.Errorf("%w: artifact type %q must not contain \":\"", ErrFormat, artifactType)
	}
	if strings.Contains(artifactType, "/.") || strings.HasPrefix(artifactType, ".") {
		return fmt.Errorf("%w: artifact type %q must not contain a path segment starting with \".\"", ErrFormat, artifactType)
	}
	return nil
}
