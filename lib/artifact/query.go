// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
)

// Expression is a parsed attribute-query value: either a plain literal
// to match exactly, or one of the tagged forms ("@tag:param") that select
// a single "best" artifact out of a group via a [Comparator].
type Expression struct {
	Tag     string // "" for a plain literal, else e.g. "@semver"
	Param   string // the text after the ":", if any
	Literal string // populated when Tag == ""
}

// IsIgnore reports whether this expression is the "@ignore" tag, which
// removes an attribute from grouping consideration entirely rather than
// filtering or comparing on it.
func (e Expression) IsIgnore() bool {
	return e.Tag == "@ignore"
}

// ParseExpression parses the "@tag:param" mini-syntax used in attribute
// query values. A value with no leading "@" is a plain literal.
func ParseExpression(raw string) (Expression, error) {
	if !strings.HasPrefix(raw, "@") {
		return Expression{Literal: raw}, nil
	}
	tag, param, _ := strings.Cut(raw, ":")
	if tag == "@ignore" && param != "" {
		return Expression{}, fmt.Errorf("%w: @ignore takes no parameters, got %q", ErrMalformed, raw)
	}
	if tag != "@ignore" {
		if _, ok := comparators[tag]; !ok {
			return Expression{}, fmt.Errorf("%w: unknown comparator tag %q (known: %s)", ErrMalformed, tag, knownComparatorTags())
		}
	}
	return Expression{Tag: tag, Param: param}, nil
}

// Comparator implements one attribute-comparison scheme: Filter decides
// whether a candidate value is eligible at all, Compare orders two
// eligible values (negative if a ranks before b — "better", i.e. should
// be preferred).
type Comparator interface {
	Filter(param, value string) bool
	Compare(param, a, b string) int
}

var comparators = map[string]Comparator{
	"@num":    numberComparator{},
	"@date":   dateComparator{},
	"@semver": semverComparator{},
	"@glob":   globComparator{},
	"@regex":  regexComparator{},
}

func knownComparatorTags() string {
	tags := make([]string, 0, len(comparators))
	for t := range comparators {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return strings.Join(tags, ", ")
}

// numberComparator implements "@num:biggest" / "@num:smallest".
type numberComparator struct{}

func (numberComparator) Filter(_, value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func (numberComparator) Compare(param, a, b string) int {
	fa, _ := strconv.ParseFloat(a, 64)
	fb, _ := strconv.ParseFloat(b, 64)
	switch param {
	case "biggest":
		return cmpFloat(fb, fa)
	case "smallest":
		return cmpFloat(fa, fb)
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// dateComparator implements "@date:latest" / "@date:earliest", over
// RFC 3339 timestamps.
type dateComparator struct{}

func (dateComparator) Filter(_, value string) bool {
	_, err := parseFlexibleDate(value)
	return err == nil
}

func (dateComparator) Compare(param, a, b string) int {
	ta, errA := parseFlexibleDate(a)
	tb, errB := parseFlexibleDate(b)
	if errA != nil || errB != nil {
		return 0
	}
	result := 0
	switch {
	case ta.After(tb):
		result = -1
	case ta.Before(tb):
		result = 1
	}
	if param == "earliest" {
		result = -result
	}
	return result
}

// parseFlexibleDate accepts RFC 3339 and the "2006-01-02 15:04:05-07:00"
// form CombinedAttrs emits for "pubdate", matching the original
// implementation's use of Python's permissive datetime.fromisoformat.
func parseFlexibleDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05-07:00", value)
}

// semverComparator implements "@semver:newest", "@semver:oldest",
// "@semver:^1.2.3", "@semver:~1.2.3", "@semver:>1.2.3", "@semver:<1.2.3",
// each optionally suffixed with ",prerelease" to allow prerelease
// versions through the filter.
type semverComparator struct{}

func splitSemverParam(param string) (sortOrder string, allowPrerelease bool) {
	sortOrder, rest, _ := strings.Cut(param, ",")
	return sortOrder, rest == "prerelease"
}

func (semverComparator) Filter(param, value string) bool {
	sortOrder, allowPrerelease := splitSemverParam(param)
	v, err := semver.NewVersion(strings.TrimPrefix(value, "v"))
	if err != nil {
		return false
	}
	if !allowPrerelease && v.Prerelease() != "" {
		return false
	}
	switch {
	case strings.HasPrefix(sortOrder, "^"):
		low, err := semver.NewVersion(strings.TrimPrefix(sortOrder[1:], "v"))
		if err != nil {
			return false
		}
		high := low.IncMajor()
		return !v.LessThan(low) && v.LessThan(&high)
	case strings.HasPrefix(sortOrder, "~"):
		low, err := semver.NewVersion(strings.TrimPrefix(sortOrder[1:], "v"))
		if err != nil {
			return false
		}
		high := low.IncMinor()
		return !v.LessThan(low) && v.LessThan(&high)
	case strings.HasPrefix(sortOrder, ">"):
		low, err := semver.NewVersion(strings.TrimPrefix(sortOrder[1:], "v"))
		if err != nil {
			return false
		}
		return v.GreaterThan(low)
	case strings.HasPrefix(sortOrder, "<"):
		high, err := semver.NewVersion(strings.TrimPrefix(sortOrder[1:], "v"))
		if err != nil {
			return false
		}
		return v.LessThan(high)
	default:
		return true
	}
}

func (semverComparator) Compare(param, a, b string) int {
	sortOrder, _ := splitSemverParam(param)
	va, errA := semver.NewVersion(strings.TrimPrefix(a, "v"))
	vb, errB := semver.NewVersion(strings.TrimPrefix(b, "v"))
	if errA != nil || errB != nil {
		return 0
	}
	result := va.Compare(vb)
	if sortOrder == "oldest" {
		return result
	}
	// "newest" or a range prefix (^, ~, >, <): highest version wins.
	return -result
}

// globComparator implements "@glob:<pattern>": a pure filter, no
// ordering preference between matches (Compare always ties).
type globComparator struct{}

func (globComparator) Filter(param, value string) bool {
	g, err := glob.Compile(param)
	if err != nil {
		return false
	}
	return g.Match(value)
}

func (globComparator) Compare(_, _, _ string) int { return 0 }

// regexComparator implements "@regex:<pattern>", anchored at the start
// of the value like Python's re.match (which requires only a prefix
// match, not a full match).
type regexComparator struct{}

func (regexComparator) Filter(param, value string) bool {
	re, err := regexp.Compile(param)
	if err != nil {
		return false
	}
	loc := re.FindStringIndex(value)
	return loc != nil && loc[0] == 0
}

func (regexComparator) Compare(_, _, _ string) int { return 0 }

// AlwaysIgnoredAttrs are pseudo-attributes never used for grouping
// unless explicitly named as the comparison target.
var AlwaysIgnoredAttrs = []string{"name", "description", "pubdate"}

// compared describes the single @-tagged attribute a query compares on.
type compared struct {
	attr       string
	comparator Comparator
	param      string
}

// Match implements the attribute query algorithm: exact literal filters
// narrow the candidate set, then — if the query names a comparator — the
// survivors are grouped by their remaining "relevant" attributes and the
// best-ranked artifact in each group is kept. Ambiguity across groups
// with different best values is reported rather than resolved by
// guessing, mirroring ampm/repo/local.py's lookup().
func Match(records []*Record, query map[string]string) ([]*Record, error) {
	hasTagged := false
	for k, v := range query {
		if strings.HasPrefix(k, "@") || strings.HasPrefix(v, "@") {
			hasTagged = true
			break
		}
	}
	if !hasTagged {
		return matchExact(records, query), nil
	}
	return matchTagged(records, query)
}

func matchExact(records []*Record, query map[string]string) []*Record {
	var results []*Record
	for _, rec := range records {
		attrs := rec.CombinedAttrs()
		if attrsSatisfy(attrs, query) {
			results = append(results, rec)
		}
	}
	return results
}

func attrsSatisfy(attrs, query map[string]string) bool {
	for k, v := range query {
		if attrs[k] != v {
			return false
		}
	}
	return true
}

func matchTagged(records []*Record, query map[string]string) ([]*Record, error) {
	filters := map[string]string{}
	ignored := map[string]bool{}
	for _, a := range AlwaysIgnoredAttrs {
		ignored[a] = true
	}
	var cmp *compared
	anyIgnored := false

	for attr, rawValue := range query {
		switch {
		case attr == "@any":
			anyIgnored = true
		case strings.HasPrefix(attr, "@"):
			return nil, fmt.Errorf("%w: invalid attribute name %q", ErrMalformed, attr)
		case strings.HasPrefix(rawValue, "@"):
			expr, err := ParseExpression(rawValue)
			if err != nil {
				return nil, err
			}
			if expr.IsIgnore() {
				ignored[attr] = true
				continue
			}
			if cmp != nil {
				return nil, fmt.Errorf("%w: only one attribute can be compared: %q, already comparing using %q", ErrMalformed, attr, cmp.attr)
			}
			cmp = &compared{attr: attr, comparator: comparators[expr.Tag], param: expr.Param}
		default:
			filters[attr] = rawValue
		}
	}

	if cmp == nil {
		return nil, fmt.Errorf("%w: query has @-tagged attributes but no comparator to select with; try one of: %s", ErrMalformed, knownComparatorTags())
	}

	var matched []*Record
	allSeenAttrs := map[string]bool{}
	for _, rec := range records {
		attrs := rec.CombinedAttrs()
		if !attrsSatisfy(attrs, filters) {
			continue
		}
		value, ok := attrs[cmp.attr]
		if !ok || !cmp.comparator.Filter(cmp.param, value) {
			continue
		}
		for k := range attrs {
			allSeenAttrs[k] = true
		}
		matched = append(matched, rec)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	groupAttrs := make([]string, 0, len(allSeenAttrs))
	for attr := range allSeenAttrs {
		if ignored[attr] || attr == cmp.attr {
			continue
		}
		if _, isFilter := filters[attr]; isFilter {
			continue
		}
		groupAttrs = append(groupAttrs, attr)
	}
	sort.Strings(groupAttrs)
	if anyIgnored {
		groupAttrs = nil
	}

	type member struct {
		rec   *Record
		value string
	}
	groups := map[string][]member{}
	var groupOrder []string
	for _, rec := range matched {
		attrs := rec.CombinedAttrs()
		key := groupKey(attrs, groupAttrs)
		if _, exists := groups[key]; !exists {
			groupOrder = append(groupOrder, key)
		}
		groups[key] = append(groups[key], member{rec: rec, value: attrs[cmp.attr]})
	}

	// Sort each group's members so the best-ranked value comes first.
	for key := range groups {
		members := groups[key]
		sort.SliceStable(members, func(i, j int) bool {
			return cmp.comparator.Compare(cmp.param, members[i].value, members[j].value) < 0
		})
		groups[key] = members
	}

	// If more than one group produced a result, their best values must
	// agree, or the query is ambiguous: the grouping attributes failed
	// to separate genuinely different artifacts into genuinely
	// different answers.
	firstKey := groupOrder[0]
	firstBest := groups[firstKey][0].value
	if len(groupOrder) > 1 {
		for _, key := range groupOrder[1:] {
			if cmp.comparator.Compare(cmp.param, groups[key][0].value, firstBest) != 0 {
				return nil, &AmbiguousError{
					Query:         describeQuery(query),
					RelevantAttrs: groupAttrs,
					Options:       []*Record{groups[firstKey][0].rec, groups[key][0].rec},
				}
			}
		}
	}

	var results []*Record
	for _, key := range groupOrder {
		members := groups[key]
		best := members[0].value
		for _, m := range members {
			if cmp.comparator.Compare(cmp.param, m.value, best) != 0 {
				break
			}
			results = append(results, m.rec)
		}
	}
	return results, nil
}

func describeQuery(query map[string]string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%q", k, query[k])
	}
	return b.String()
}

func groupKey(attrs map[string]string, groupAttrs []string) string {
	var b strings.Builder
	for _, attr := range groupAttrs {
		b.WriteString(attr)
		b.WriteByte('=')
		b.WriteString(attrs[attr])
		b.WriteByte('\x00')
	}
	return b.String()
}

