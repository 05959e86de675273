// Package tagstore implements the in-memory representation of an
// object's tags: the mapping between a dotted tag name and its string
// value, and the filesystem path conventions that tag name implies.
package tagstore

import (
	"sort"
	"strings"
)

// Leaf splits a dotted tag name into the namespace's directory segments
// and the final leaf component. "foo.bar.baz" splits into
// ([]string{"foo", "bar"}, "baz"). A bare leaf tag name such as "baz"
// splits into (nil, "baz").
func Leaf(name string) (dirs []string, leaf string) {
	parts := strings.Split(name, ".")
	if len(parts) == 1 {
		return nil, parts[0]
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// Join is the inverse of Leaf: it concatenates directory segments and a
// leaf component back into a dotted tag name.
func Join(dirs []string, leaf string) string {
	if len(dirs) == 0 {
		return leaf
	}
	return strings.Join(dirs, ".") + "." + leaf
}

// IsGlob reports whether a tag name pattern is a namespace wildcard,
// i.e. it ends in the literal suffix ".*".
func IsGlob(pattern string) bool {
	return strings.HasSuffix(pattern, ".*")
}

// GlobPrefix returns the dotted prefix a ".*" pattern binds under. For
// "proj.cfg.*" it returns "proj.cfg". Calling it on a non-glob pattern
// returns the pattern unchanged.
func GlobPrefix(pattern string) string {
	if !IsGlob(pattern) {
		return pattern
	}
	return strings.TrimSuffix(pattern, ".*")
}

// Object is the in-memory representation of one object: its root
// directory path and the best-known mapping from dotted tag name to
// value. The absent tag is distinct from the empty-string tag, so Tags
// uses a map rather than a zero-value-defaulting structure.
type Object struct {
	Path string
	Tags map[string]string
}

// New returns an Object rooted at path with an empty tag map.
func New(path string) *Object {
	return &Object{Path: path, Tags: make(map[string]string)}
}

// Has reports whether name is present in the tag map, exact match only.
func (o *Object) Has(name string) bool {
	_, ok := o.Tags[name]
	return ok
}

// Match returns every tag name bound by pattern against the current
// tags: an exact match for a literal pattern, or every key under the
// dotted prefix for a ".*" pattern. The result is sorted for
// determinism (map iteration order is not).
func (o *Object) Match(pattern string) []string {
	return MatchTags(o.Tags, pattern)
}

// MatchTags returns every tag name in tags bound by pattern: an exact
// match for a literal pattern, or every key under the dotted prefix
// for a ".*" pattern. The result is sorted for determinism (map
// iteration order is not). It is the shared core of Object.Match and
// of the engine package's own input binding, so both operate on the
// same namespace-prefix rule.
func MatchTags(tags map[string]string, pattern string) []string {
	if !IsGlob(pattern) {
		if _, ok := tags[pattern]; ok {
			return []string{pattern}
		}
		return nil
	}
	prefix := GlobPrefix(pattern) + "."
	var matches []string
	for name := range tags {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}

// Diff returns the subset of current whose value differs from initial,
// or that is absent from initial entirely -- the "changed" set of
// spec §4.5's result pruning step.
func Diff(initial, current map[string]string) map[string]string {
	changed := make(map[string]string)
	for name, value := range current {
		if old, ok := initial[name]; !ok || old != value {
			changed[name] = value
		}
	}
	return changed
}
