// Package gitctx validates a git repository and generates the scoped diff
// that feeds the review prompt.
//
// [Prepare] resolves the base branch (preferring origin/<base> over a
// possibly stale local pointer), the merge base, and change statistics into
// an immutable [Info] snapshot. [Diff] produces a unified diff for either the
// committed range only or the full committed/staged/unstaged union with
// section headers. All git interaction is subprocess-based; any command
// failure aborts the call, there is no partial-diff mode.
package gitctx
