// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
)

// Resolver ties a local [Cache] and an optional remote [Gateway] together
// into the single operation most callers actually want: given a query,
// produce a usable local path. It is the Go equivalent of the original
// implementation's Repo facade over LocalRepo and RemoteRepo.
type Resolver struct {
	cache   *Cache
	gateway *Gateway
	offline bool
}

// NewResolver builds a Resolver. gateway may be nil (cache-only,
// effectively offline); offline forces every lookup to be satisfied from
// the cache even when a gateway is configured.
func NewResolver(cache *Cache, gateway *Gateway, offline bool) *Resolver {
	return &Resolver{cache: cache, gateway: gateway, offline: offline}
}

func (r *Resolver) effectiveGateway() *Gateway {
	if r.offline {
		return nil
	}
	return r.gateway
}

// Query identifies an artifact to resolve: either an exact
// "type:fingerprint" identifier, or an artifact type together with a set
// of attribute-match expressions (see [Match]).
type Query struct {
	Identifier Identifier        // set when this is an exact lookup
	Type       string            // artifact type, required for attribute queries
	Attrs      map[string]string // attribute expressions, e.g. {"version": "@semver:newest"}
}

// ExactQuery builds a Query for a fully-qualified "type:fingerprint"
// identifier.
func ExactQuery(id Identifier) Query {
	return Query{Identifier: id}
}

// AttributeQuery builds a Query that selects among every artifact of
// artifactType by matching attrs.
func AttributeQuery(artifactType string, attrs map[string]string) Query {
	return Query{Type: artifactType, Attrs: attrs}
}

// ParseQuery builds a Query from an identifier string ("<type>" or
// "<type>:<fingerprint>") together with any attribute expressions
// gathered from repeated "-a key=value" flags. A fingerprint-bearing
// identifier ignores attrs entirely — an exact lookup needs no further
// narrowing, matching the original implementation's ArtifactQuery
// behavior for a fully-qualified identifier.
func ParseQuery(rawIdentifier string, attrs map[string]string) (Query, error) {
	id, err := ParseIdentifier(rawIdentifier)
	if err != nil {
		return Query{}, err
	}
	if id.Exact() {
		return ExactQuery(id), nil
	}
	return AttributeQuery(id.Type, attrs), nil
}

func (q Query) String() string {
	if q.Identifier.Exact() {
		return q.Identifier.String()
	}
	return describeQuery(q.Attrs)
}

// Resolve finds the single metadata record matching q. An exact
// identifier is looked up in the local cache first, falling back to the
// remote repository; an attribute query first copies the type's remote
// records into the cache and then matches against the cache. Offline,
// only the cache is ever consulted: an exact identifier that is not
// cached, or an attribute query for a type with no cached records,
// becomes ErrOfflineMiss rather than ErrNotFound, so callers can tell
// "doesn't exist" apart from "exists, but not available offline".
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if q.Identifier.Exact() {
		return r.resolveExact(ctx, q.Identifier.Type, q.Identifier.Fingerprint)
	}
	if q.Type == "" {
		return nil, fmt.Errorf("%w: attribute query requires an artifact type", ErrMalformed)
	}

	records, err := r.allRecords(ctx, q.Type)
	if err != nil {
		return nil, err
	}
	matches, err := Match(records, q.Attrs)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no artifact of type %q matches %s", ErrNotFound, q.Type, describeQuery(q.Attrs))
	case 1:
		return matches[0], nil
	default:
		return nil, &AmbiguousError{Query: describeQuery(q.Attrs), Options: matches}
	}
}

func (r *Resolver) resolveExact(ctx context.Context, artifactType, fingerprint string) (*Record, error) {
	rec, err := r.cache.ReadMetadata(artifactType, fingerprint)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	gw := r.effectiveGateway()
	if gw == nil {
		if r.offline {
			return nil, fmt.Errorf("%w: %s:%s", ErrOfflineMiss, artifactType, fingerprint)
		}
		return nil, err
	}

	rec, err = gw.FetchMetadata(ctx, artifactType, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := r.cache.WriteMetadata(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// allRecords returns every known record of artifactType: the cached set,
// refreshed from the remote repository first unless running offline.
func (r *Resolver) allRecords(ctx context.Context, artifactType string) ([]*Record, error) {
	gw := r.effectiveGateway()
	if gw != nil {
		remote, err := gw.SyncMetadata(ctx, artifactType)
		if err != nil {
			return nil, err
		}
		for _, rec := range remote {
			if err := r.cache.WriteMetadata(rec); err != nil {
				return nil, err
			}
		}
	}
	records, err := r.cache.ScanType(artifactType)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 && gw == nil && r.offline {
		return nil, fmt.Errorf("%w: no cached artifacts of type %q and offline mode is set", ErrOfflineMiss, artifactType)
	}
	return records, nil
}

// Fetch guarantees rec's payload is present locally, returning its path.
func (r *Resolver) Fetch(ctx context.Context, rec *Record) (string, error) {
	return r.cache.EnsureLocal(ctx, r.effectiveGateway(), rec)
}

// Get is the combined Resolve+Fetch operation the "ampm get" and
// "ampm env" commands build on: locate the artifact matching q, then
// ensure its payload is present locally, returning both the resolved
// record and its local path.
func (r *Resolver) Get(ctx context.Context, q Query) (*Record, string, error) {
	rec, err := r.Resolve(ctx, q)
	if err != nil {
		return nil, "", err
	}
	path, err := r.Fetch(ctx, rec)
	if err != nil {
		return nil, "", err
	}
	return rec, path, nil
}

// List returns every record matching q's filters without requiring a
// unique winner — the "ampm list" command's primitive. With no attrs it
// returns every record of the type; a plain-literal query returns every
// record that matches. A comparator-tagged query goes through the same
// selection as [Match]: only the best-ranked records of each group are
// returned (all of them when the groups tie), and groups whose best
// values disagree yield an *AmbiguousError. It does not list every
// record that merely passes a comparator's filter.
func (r *Resolver) List(ctx context.Context, artifactType string, attrs map[string]string) ([]*Record, error) {
	records, err := r.allRecords(ctx, artifactType)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return records, nil
	}
	return Match(records, attrs)
}
