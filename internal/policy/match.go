package policy

import (
	"errors"
	"regexp"
	"strings"
)

const wildcard = "*"

// compileAction turns an action alternation such as "(show)|(list)" into a
// regexp that must match the whole action. The bare pattern "*" allows any
// non-empty action.
func compileAction(pattern string) (*regexp.Regexp, error) {
	if pattern == wildcard {
		return regexp.Compile(`^.+$`)
	}
	return regexp.Compile(`^(?:` + pattern + `)$`)
}

func validateResourcePattern(pattern string) error {
	if pattern == wildcard {
		return nil
	}
	for _, seg := range strings.Split(pattern, "/") {
		if seg != wildcard && strings.Contains(seg, wildcard) {
			return errors.New("wildcard must span a whole resource segment")
		}
	}
	return nil
}

// matchResource compares resource with pattern segment by segment. Segments
// are separated by "/" and compared case-sensitively. A "*" segment matches
// exactly one non-empty segment, except in last position where it matches
// every remaining segment. The pattern "*" matches any resource.
func matchResource(pattern, resource string) bool {
	if resource == "" {
		return false
	}
	if pattern == wildcard {
		return true
	}
	if pattern == resource {
		return true
	}
	ps := strings.Split(pattern, "/")
	rs := strings.Split(resource, "/")
	for i, p := range ps {
		if p == wildcard && i == len(ps)-1 {
			return len(rs) > i && strings.Join(rs[i:], "") != ""
		}
		if i >= len(rs) {
			return false
		}
		if p == wildcard {
			if rs[i] == "" {
				return false
			}
			continue
		}
		if p != rs[i] {
			return false
		}
	}
	return len(ps) == len(rs)
}

// MatchResource reports whether resource satisfies pattern.
func MatchResource(pattern, resource string) bool {
	return matchResource(pattern, resource)
}
