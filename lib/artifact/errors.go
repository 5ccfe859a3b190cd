// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import "errors"

// Sentinel errors wrapped (via fmt.Errorf's %w) at every layer that
// returns them. Callers use errors.Is/errors.As against these, never
// string matching, to decide how to react — in particular, the CLI
// surface maps each to an exit code via ExitCode.
var (
	// ErrNotFound means a query (exact or attribute-based) matched no
	// artifact, locally or on the remote.
	ErrNotFound = errors.New("artifact not found")

	// ErrAmbiguous means an attribute query matched more than one
	// distinct artifact and the query engine could not select a single
	// winner. See AmbiguousError for the detailed collision report.
	ErrAmbiguous = errors.New("ambiguous artifact query")

	// ErrMalformed means a query expression or identifier could not be
	// parsed.
	ErrMalformed = errors.New("malformed expression")

	// ErrTypeMismatch means a comparator was asked to compare or filter
	// a value that does not have the shape it expects (e.g. @num against
	// a non-numeric attribute).
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrFormat means a metadata record failed to parse or validate.
	ErrFormat = errors.New("format error")

	// ErrOfflineMiss means a resolution required a network fetch but the
	// caller requested offline mode.
	ErrOfflineMiss = errors.New("artifact not cached locally and offline mode is set")

	// ErrIntegrity means a fetched payload's hash did not match its
	// metadata record.
	ErrIntegrity = errors.New("artifact integrity check failed")

	// ErrAlreadyPublished means an upload targeted a remote path that
	// already holds different content. Re-publishing identical content
	// (same fingerprint) is not an error — this is.
	ErrAlreadyPublished = errors.New("artifact already published with different content")

	// ErrInterrupted means an operation was canceled via its context
	// before it completed.
	ErrInterrupted = errors.New("interrupted")
)

// IOError wraps a filesystem error with the path that caused it, so
// callers and log lines can report exactly where an I/O failure occurred
// without re-parsing an error string.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return "I/O error at " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// AmbiguousError reports the set of artifacts an attribute query matched
// when it should have matched exactly one, along with the relevant
// attribute names that would need to be pinned or ignored to disambiguate.
// Modeled on the original implementation's AmbiguousComparisonError
// message, which names the offending attributes and suggests the
// "-a <attr>=@ignore" remedy.
type AmbiguousError struct {
	Query         string
	RelevantAttrs []string
	Options       []*Record
}

func (e *AmbiguousError) Error() string {
	msg := "ambiguous artifact query " + e.Query + ": "
	if len(e.RelevantAttrs) > 0 {
		msg += "attribute(s) not unique: "
		for i, a := range e.RelevantAttrs {
			if i > 0 {
				msg += ", "
			}
			msg += a
		}
	} else {
		msg += "multiple matching artifacts"
	}
	return msg
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguous
}

// ExitCode maps an error returned from a top-level operation to the
// process exit code the CLI should use: 0 success, 1 generic failure, 2
// not found, 3 ambiguous, 4 malformed expression, 5 I/O error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNotFound):
		return 2
	case errors.Is(err, ErrAmbiguous):
		return 3
	case errors.Is(err, ErrMalformed):
		return 4
	case errors.As(err, new(*IOError)):
		return 5
	default:
		return 1
	}
}
