// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact implements a content-addressed artifact store backed
// by a plain, possibly network-mounted, filesystem.
//
// Producers publish build artifacts (files, directories, or gzip/tar.gz
// payloads) tagged with free-form attributes to a shared remote root.
// Consumers resolve an artifact either by its exact fingerprint or by an
// attribute query, and this package guarantees a local, on-disk copy
// exists before handing back a path — fetching once and caching under a
// local root for every later resolution of the same content.
//
// The pieces:
//
//   - [Record] and its [Record.Fingerprint] are the identity layer: a
//     canonical textual serialization hashed to a stable, content-derived
//     identifier.
//   - [Gateway] talks to the remote root, using the same atomic-rename
//     publish discipline for uploads that the local cache uses for its
//     own writes — rename within a directory is the only
//     atomicity primitive a network filesystem mount can be trusted to
//     provide.
//   - [Cache] owns the local on-disk layout: metadata, payloads, and the
//     side files (`.env`, `.target`) that make repeated resolution fast.
//   - [Match] and the [Expression] family implement the attribute query
//     language: exact filters, comparator-driven selection (`@semver`,
//     `@glob`, `@regex`, `@num`, `@date`), and the ambiguity rules that
//     keep a query from silently picking the wrong artifact.
//   - [Resolver] ties the cache and the gateway together into the single
//     operation callers actually want: resolve, fetch, return a path.
package artifact
