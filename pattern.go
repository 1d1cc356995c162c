package xcaller

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Pattern selects actions by name. The source string is split on "|" and
// every segment is a regular expression that must match the whole name.
// A Pattern is immutable and safe for concurrent use.
type Pattern struct {
	source   string
	segments []*regexp.Regexp
}

// patternCache holds compiled patterns keyed by source string.
var patternCache sync.Map

// CompilePattern compiles p, reusing a cached result when p was seen before.
// The empty pattern matches nothing. An empty segment ("a|") matches only
// the empty name.
func CompilePattern(p string) (*Pattern, error) {
	if v, ok := patternCache.Load(p); ok {
		return v.(*Pattern), nil
	}

	pt := &Pattern{source: p}
	if p != "" {
		parts := strings.Split(p, "|")
		pt.segments = make([]*regexp.Regexp, 0, len(parts))
		for _, seg := range parts {
			re, err := regexp.Compile(`^(?:` + seg + `)$`)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidArgument, p, err)
			}
			pt.segments = append(pt.segments, re)
		}
	}

	v, _ := patternCache.LoadOrStore(p, pt)
	return v.(*Pattern), nil
}

// MustCompilePattern is like CompilePattern but panics on an invalid expression.
func MustCompilePattern(p string) *Pattern {
	pt, err := CompilePattern(p)
	if err != nil {
		panic(err)
	}
	return pt
}

// MatchName reports whether name fully matches any segment.
func (p *Pattern) MatchName(name string) bool {
	for _, re := range p.segments {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// Matches implements Selector.
func (p *Pattern) Matches(a Action) bool {
	return !a.IsZero() && p.MatchName(a.Name())
}

func (p *Pattern) String() string { return p.source }
