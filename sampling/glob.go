// Copyright The ByteHook Authors
// SPDX-License-Identifier: Apache-2.0

package sampling

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher matches strings against a glob pattern supporting "*" (any run
// of characters, including none) and "?" (exactly one character). All
// other characters match literally.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// NewMatcher compiles pattern into a Matcher. Character classes and
// escapes are not part of the supported grammar, so patterns containing
// "[", "]" or "\" are rejected.
func NewMatcher(pattern string) (*Matcher, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '[', ']', '\\':
			return nil, fmt.Errorf("unsupported glob pattern character %q in %q", r, pattern)
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile glob pattern %q: %w", pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// Match reports whether s matches the pattern.
func (m *Matcher) Match(s string) bool {
	return m.re.MatchString(s)
}

// Pattern returns the source glob pattern.
func (m *Matcher) Pattern() string {
	return m.pattern
}
