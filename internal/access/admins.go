// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

// Package access decides who may operate the bot.
package access

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeInvalidPattern is returned for admin patterns that do not compile.
const CodeInvalidPattern = "ADMIN_PATTERN_INVALID"

// Checker reports whether a nick may run operator commands.
type Checker interface {
	Allowed(nick string) bool
}

// compiledPattern holds an admin pattern and its compiled glob.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// AdminList is an allow-list of nick patterns. Patterns are globs matched
// case-insensitively: "alice" matches only alice, "ops-*" matches any nick
// starting with "ops-", and "*" matches everyone.
//
// AdminList is immutable after construction and safe for concurrent use.
type AdminList struct {
	patterns []compiledPattern
}

// NewAdminList compiles patterns. It fails on an empty or malformed pattern.
func NewAdminList(patterns []string) (*AdminList, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for i, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			return nil, oops.In("access").Code(CodeInvalidPattern).With("index", i).
				Errorf("admin pattern %d is empty", i)
		}
		g, err := glob.Compile(strings.ToLower(pattern))
		if err != nil {
			return nil, oops.In("access").Code(CodeInvalidPattern).With("pattern", pattern).Wrap(err)
		}
		compiled = append(compiled, compiledPattern{pattern: pattern, glob: g})
	}
	return &AdminList{patterns: compiled}, nil
}

// Allowed reports whether nick matches any admin pattern. The empty nick is
// never allowed.
func (a *AdminList) Allowed(nick string) bool {
	if a == nil || nick == "" {
		return false
	}
	folded := strings.ToLower(nick)
	for _, p := range a.patterns {
		if p.glob.Match(folded) {
			return true
		}
	}
	return false
}

// Patterns returns the configured patterns.
func (a *AdminList) Patterns() []string {
	out := make([]string, len(a.patterns))
	for i, p := range a.patterns {
		out[i] = p.pattern
	}
	return out
}
