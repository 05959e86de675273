package engine

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/karlgluck/tagengine/tagstore"
)

// matchesGlobPattern reports whether a ".*"-suffixed input pattern
// binds tagName. It is used by the registry's reverse index, which
// must answer "does writing this tag reactivate that rule" for
// patterns it has never seen a concrete tag for yet, so it builds a
// regexp2 expression on the fly rather than requiring a pre-populated
// tag map the way match.go's BindInputs does. regexp2's negative
// lookahead lets the prefix match stop exactly at a dot boundary
// without a second manual prefix+"." check, matching the rest of the
// dependency surface's use of regexp2 for pattern work that plain
// pattern-splitting can't express as a single expression.
func matchesGlobPattern(pattern, tagName string) bool {
	if !tagstore.IsGlob(pattern) {
		return pattern == tagName
	}
	prefix := tagstore.GlobPrefix(pattern)
	expr := "^" + regexp2.Escape(prefix) + `\.(?!$)`
	re := regexp2.MustCompile(expr, regexp2.None)
	matched, err := re.MatchString(tagName)
	if err != nil {
		return strings.HasPrefix(tagName, prefix+".")
	}
	return matched
}

// BindInputs resolves every `in` pattern of r against the current tag
// context, per spec.md §4.5 step 1. It returns the concrete tag names
// bound (exact patterns bind themselves; ".*" patterns bind every
// matching tag under the prefix), the same tag names in r.In's
// declared order (used by map rules to reconstruct their lookup
// tuple), and the subset of patterns that matched nothing at all.
func BindInputs(r *Rule, tags map[string]string) (bound map[string]string, inOrder []string, missing []string) {
	bound = make(map[string]string)
	inOrder = make([]string, len(r.In))
	for i, pattern := range r.In {
		if tagstore.IsGlob(pattern) {
			matches := matchGlobAgainst(pattern, tags)
			if len(matches) == 0 {
				missing = append(missing, pattern)
				continue
			}
			for _, m := range matches {
				bound[m] = tags[m]
			}
			inOrder[i] = matches[0]
			continue
		}
		v, ok := tags[pattern]
		if !ok {
			missing = append(missing, pattern)
			continue
		}
		bound[pattern] = v
		inOrder[i] = pattern
	}
	return bound, inOrder, missing
}

func matchGlobAgainst(pattern string, tags map[string]string) []string {
	return tagstore.MatchTags(tags, pattern)
}
