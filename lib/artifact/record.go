// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// PathType enumerates the shapes an artifact's payload can take on disk.
type PathType string

const (
	PathTypeFile  PathType = "file"
	PathTypeDir   PathType = "dir"
	PathTypeTarGz PathType = "tar.gz"
	PathTypeGz    PathType = "gz"
)

func (t PathType) valid() bool {
	switch t {
	case PathTypeFile, PathTypeDir, PathTypeTarGz, PathTypeGz:
		return true
	default:
		return false
	}
}

// Suffix returns the filename suffix this path type adds to the
// artifact's name when it is stored compressed. File and directory
// artifacts are stored under their own name verbatim.
func (t PathType) Suffix() string {
	switch t {
	case PathTypeGz:
		return ".gz"
	case PathTypeTarGz:
		return ".tar.gz"
	default:
		return ""
	}
}

// Record is a metadata record describing one published artifact: what it
// is, where its payload lives, and the attributes a query can select it
// by. Two records that canonicalize to the same bytes are the same
// artifact, by construction — see [Record.Fingerprint].
type Record struct {
	Name        string
	Description string
	PubDate     time.Time
	Type        string
	Attributes  map[string]string
	Env         map[string]string

	PathType     PathType
	PathHash     string // hex SHA-256, present for file/gz/tar.gz
	PathLocation string // remote path override, optional
}

// document is the intermediate shape used for TOML decoding (encoding is
// done by hand in Canonicalize).
// Keeping it separate from Record lets Record carry a time.Time while the
// wire format uses an RFC 3339 string, matching the original
// implementation's to_dict/from_dict split.
type document struct {
	Artifact struct {
		Name        string `toml:"name"`
		Description string `toml:"description"`
		PubDate     string `toml:"pubdate"`
		Type        string `toml:"type"`
	} `toml:"artifact"`
	Attributes map[string]string `toml:"attributes"`
	Env        map[string]string `toml:"env"`
	Path       struct {
		Type     string `toml:"type"`
		Location string `toml:"location,omitempty"`
		Hash     string `toml:"hash,omitempty"`
	} `toml:"path"`
}

// Canonicalize renders the record as its canonical TOML text: fixed
// section order ([artifact], [attributes], [env], [path]) and
// lexicographically sorted keys within the attribute and env tables.
// Sorting those keys makes the output — and therefore the fingerprint —
// independent of Go's randomized map iteration order.
func (r *Record) Canonicalize() []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[artifact]\nname = %s\ndescription = %s\npubdate = %s\ntype = %s\n\n",
		tomlString(r.Name), tomlString(r.Description), tomlString(r.PubDate.UTC().Format(time.RFC3339)), tomlString(r.Type))

	buf.WriteString("[attributes]\n")
	writeSortedStringMap(&buf, r.Attributes)
	buf.WriteString("\n[env]\n")
	writeSortedStringMap(&buf, r.Env)

	buf.WriteString("\n[path]\n")
	fmt.Fprintf(&buf, "type = %s\n", tomlString(string(r.PathType)))
	if r.PathLocation != "" {
		fmt.Fprintf(&buf, "location = %s\n", tomlString(r.PathLocation))
	}
	if r.PathHash != "" {
		fmt.Fprintf(&buf, "hash = %s\n", tomlString(r.PathHash))
	}

	return buf.Bytes()
}

// Fingerprint returns the record's content-derived identifier.
func (r *Record) Fingerprint() string {
	return computeFingerprint(r.Canonicalize())
}

// Identifier returns the record's full "<type>:<fingerprint>" identifier.
func (r *Record) Identifier() Identifier {
	return Identifier{Type: r.Type, Fingerprint: r.Fingerprint()}
}

// CombinedAttrs returns the attribute set the query engine matches
// against: the free-form Attributes map plus the always-present
// "name", "description" and "pubdate" pseudo-attributes, and a
// "location" pseudo-attribute when PathLocation is set, matching the
// original implementation's combined_attrs property.
func (r *Record) CombinedAttrs() map[string]string {
	combined := make(map[string]string, len(r.Attributes)+3)
	combined["name"] = r.Name
	combined["description"] = r.Description
	combined["pubdate"] = r.PubDate.Local().Format("2006-01-02 15:04:05-07:00")
	if r.PathLocation != "" {
		combined["location"] = r.PathLocation
	}
	for k, v := range r.Attributes {
		combined[k] = v
	}
	return combined
}

// ParseRecord decodes a canonical TOML metadata record. Parsing is
// deliberately permissive about key order and whitespace — only
// Canonicalize's output needs to be in the fixed order that determines
// the fingerprint.
func ParseRecord(data []byte) (*Record, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata record: %v", ErrFormat, err)
	}

	pathType := PathType(doc.Path.Type)
	if !pathType.valid() {
		return nil, fmt.Errorf("%w: unknown path type %q", ErrFormat, doc.Path.Type)
	}

	pubDate, err := time.Parse(time.RFC3339, doc.Artifact.PubDate)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing pubdate %q: %v", ErrFormat, doc.Artifact.PubDate, err)
	}

	return &Record{
		Name:         doc.Artifact.Name,
		Description:  doc.Artifact.Description,
		PubDate:      pubDate,
		Type:         doc.Artifact.Type,
		Attributes:   doc.Attributes,
		Env:          doc.Env,
		PathType:     pathType,
		PathHash:     doc.Path.Hash,
		PathLocation: doc.Path.Location,
	}, nil
}

// tomlString quotes s as a TOML basic string. TOML basic strings use the
// same backslash-escaping rules as JSON strings for the characters that
// matter here (quote, backslash, control characters), so
// strconv-style quoting via fmt's %q is reused as is.
func tomlString(s string) string {
	return fmt.Sprintf("%q", s)
}

func writeSortedStringMap(buf *bytes.Buffer, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s = %s\n", k, tomlString(m[k]))
	}
}
