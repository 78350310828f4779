// Package prompt loads the YAML review template and populates its
// $repo_context and $diff placeholders. Substitution is a single literal
// pass; values are never re-scanned for placeholders.
package prompt
