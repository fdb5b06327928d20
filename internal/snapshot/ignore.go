package snapshot

import "github.com/mcpcontext/browser/internal/gitignore"

// Matcher is the ignore-rule evaluator snapshot consumers use to decide
// which paths belong in a manifest at all. It is the gitignore pattern
// matcher unchanged: most-specific-pattern-wins, directory vs file pattern
// distinction, already matches the ignore-rule contract this package needs.
type Matcher = gitignore.Matcher

// NewMatcher returns an empty ignore-rule matcher.
func NewMatcher() *Matcher {
	return gitignore.New()
}
