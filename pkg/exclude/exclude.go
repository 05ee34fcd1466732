// Package exclude compiles glob-like exclude patterns into a single matcher
// applied to catalog-relative paths during the backup walk.
//
// Pattern semantics:
//   - `**` matches any run of characters, including `/`
//   - `*` matches any run of characters except `/`
//   - `?` matches a single character except `/`
//   - `[...]` character classes pass through unchanged
//   - a leading `/` anchors the pattern at the source root
//   - without a leading `/`, the pattern matches a trailing path segment at
//     any depth (`name` excludes every entry whose final segment is `name`)
package exclude

import (
	"regexp"
	"strings"
)

// metaPattern finds glob operators and regexp metacharacters that need
// translation or escaping.
var metaPattern = regexp.MustCompile(`\*\*|\*|\?|\.|\^|\$|\+|\{|\\|\[|\||\(`)

// Pattern matches relative paths against a set of compiled exclude patterns.
type Pattern struct {
	re *regexp.Regexp
}

// translate converts one glob-like pattern into a regexp fragment.
func translate(name string) string {
	if strings.ContainsAny(name, "*?[") {
		name = metaPattern.ReplaceAllStringFunc(name, func(m string) string {
			switch m {
			case "**":
				return ".*"
			case "*":
				return "[^/]*"
			case "?":
				return "[^/]"
			case "[":
				return "["
			}
			return `\` + m
		})
	}
	if strings.HasPrefix(name, "/") {
		return "^" + name + "$"
	}
	return "/" + name + "$"
}

// Compile builds a Pattern from the given glob-like patterns. A nil Pattern
// is returned when no patterns are given; a nil Pattern matches nothing.
func Compile(patterns []string) (*Pattern, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	fragments := make([]string, 0, len(patterns))
	for _, name := range patterns {
		fragments = append(fragments, translate(name))
	}

	re, err := regexp.Compile(strings.Join(fragments, "|"))
	if err != nil {
		return nil, err
	}
	return &Pattern{re: re}, nil
}

// Match reports whether the relative path is excluded. The path is matched as
// a substring search, so an anchored fragment binds to the start of the path
// and an unanchored one to any trailing segment.
func (p *Pattern) Match(relativePath string) bool {
	if p == nil {
		return false
	}
	return p.re.MatchString(relativePath)
}
