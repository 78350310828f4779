package config

import (
	"fmt"
	"strings"
)

// Validate checks a merged configuration mapping against the schema. It runs
// on the raw mapping rather than the decoded struct so the error can name the
// exact field path the offending value came from.
func Validate(m map[string]any) error {
	for _, key := range []string{"models", "defaults", "git", "paths"} {
		if _, ok := m[key]; !ok {
			return &Error{Field: key, Reason: "missing required section"}
		}
	}

	models, ok := m["models"].([]any)
	if !ok {
		return &Error{Field: "models", Reason: "must be a sequence"}
	}
	seen := make(map[string]bool, len(models))
	for i, entry := range models {
		em, ok := entry.(map[string]any)
		if !ok {
			return &Error{Field: fmt.Sprintf("models[%d]", i), Reason: "must be a mapping"}
		}
		name, ok := em["name"].(string)
		if !ok || name == "" {
			return &Error{Field: fmt.Sprintf("models[%d].name", i), Reason: "must be a non-empty string"}
		}
		if seen[name] {
			return &Error{Field: fmt.Sprintf("models[%d].name", i), Reason: fmt.Sprintf("duplicate model %q", name)}
		}
		seen[name] = true
		if opts, present := em["options"]; present && opts != nil {
			seq, ok := opts.([]any)
			if !ok {
				return &Error{Field: fmt.Sprintf("models[%d].options", i), Reason: "must be a sequence of strings"}
			}
			for j, o := range seq {
				if _, ok := o.(string); !ok {
					return &Error{Field: fmt.Sprintf("models[%d].options[%d]", i, j), Reason: "must be a string"}
				}
			}
		}
	}

	defaults, ok := m["defaults"].(map[string]any)
	if !ok {
		return &Error{Field: "defaults", Reason: "must be a mapping"}
	}
	if v, present := defaults["timeout"]; present && v != nil {
		if n, ok := asInt(v); !ok || n <= 0 {
			return &Error{Field: "defaults.timeout", Reason: "must be a positive integer"}
		}
	}
	if v, present := defaults["retries"]; present && v != nil {
		if n, ok := asInt(v); !ok || n < 0 {
			return &Error{Field: "defaults.retries", Reason: "must be a non-negative integer"}
		}
	}
	if v, present := defaults["outdir"]; present && v != nil {
		if _, ok := v.(string); !ok {
			return &Error{Field: "defaults.outdir", Reason: "must be a string path"}
		}
	}

	git, ok := m["git"].(map[string]any)
	if !ok {
		return &Error{Field: "git", Reason: "must be a mapping"}
	}
	if v, present := git["context_lines"]; present && v != nil {
		if n, ok := asInt(v); !ok || n < 0 {
			return &Error{Field: "git.context_lines", Reason: "must be a non-negative integer"}
		}
	}
	if v, present := git["base_branch"]; present {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return &Error{Field: "git.base_branch", Reason: "must be a non-empty string"}
		}
	}
	if v, present := git["diff_scope"]; present {
		s, _ := v.(string)
		if s != ScopeAll && s != ScopeCommitted {
			return &Error{Field: "git.diff_scope", Reason: fmt.Sprintf("must be %q or %q", ScopeAll, ScopeCommitted)}
		}
	}

	paths, ok := m["paths"].(map[string]any)
	if !ok {
		return &Error{Field: "paths", Reason: "must be a mapping"}
	}
	if v, present := paths["template"]; present && v != nil {
		if s, ok := v.(string); !ok || s == "" {
			return &Error{Field: "paths.template", Reason: "must be a non-empty path"}
		}
	}

	return nil
}

// asInt accepts the integer shapes yaml.v3 produces when decoding into any.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}
