package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed review.template.yml
var builtinTemplate []byte

// Template is a two-part review prompt loaded from a YAML file with `system`
// and `prompt` keys.
type Template struct {
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`
}

// TemplateError reports a template that could not be loaded or rendered.
type TemplateError struct {
	Path   string
	Reason string
	Err    error
}

func (e *TemplateError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("template %s: %s", e.Path, e.Reason)
	}
	return "template: " + e.Reason
}

func (e *TemplateError) Unwrap() error { return e.Err }

// placeholder matches $name and ${name} tokens.
var placeholder = regexp.MustCompile(`\$(?:\{(\w+)\}|(\w+))`)

// Load reads a template file. Missing files, invalid YAML, a non-mapping
// document, and missing or non-string system/prompt values all fail with a
// TemplateError.
func Load(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, &TemplateError{Path: path, Reason: "cannot read file", Err: err}
	}
	return parse(data, path)
}

// Builtin returns the embedded default review template, used when no
// template file exists on disk.
func Builtin() Template {
	tpl, err := parse(builtinTemplate, "<builtin>")
	if err != nil {
		panic(err)
	}
	return tpl
}

func parse(data []byte, path string) (Template, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Template{}, &TemplateError{Path: path, Reason: "invalid YAML", Err: err}
	}
	if raw == nil {
		return Template{}, &TemplateError{Path: path, Reason: "document is empty"}
	}

	var tpl Template
	for key, dst := range map[string]*string{"system": &tpl.System, "prompt": &tpl.Prompt} {
		v, present := raw[key]
		if !present {
			return Template{}, &TemplateError{Path: path, Reason: fmt.Sprintf("missing %q key", key)}
		}
		s, ok := v.(string)
		if !ok {
			return Template{}, &TemplateError{Path: path, Reason: fmt.Sprintf("%q must be a string", key)}
		}
		*dst = s
	}
	return tpl, nil
}

// Populate substitutes $repo_context and $diff (in both $name and ${name}
// forms) into the system and prompt sections in a single literal pass.
// Placeholder-like tokens inside the substituted values are left alone, never
// re-expanded. Any other $identifier token in the template produces a warning
// but does not fail the call.
func (t Template) Populate(repoContext, diff string) (Template, []string) {
	values := map[string]string{
		"repo_context": repoContext,
		"diff":         diff,
	}

	var warnings []string
	warned := make(map[string]bool)
	expand := func(section string) string {
		return placeholder.ReplaceAllStringFunc(section, func(tok string) string {
			m := placeholder.FindStringSubmatch(tok)
			name := m[1]
			if name == "" {
				name = m[2]
			}
			if v, ok := values[name]; ok {
				return v
			}
			if !warned[name] {
				warned[name] = true
				warnings = append(warnings, fmt.Sprintf("unresolved template placeholder $%s", name))
			}
			return tok
		})
	}

	out := Template{System: expand(t.System), Prompt: expand(t.Prompt)}
	return out, warnings
}

// Render joins the two sections into the single prompt string handed to each
// model. An empty prompt section is an error; an empty system section just
// renders the prompt alone.
func (t Template) Render() (string, error) {
	prompt := strings.TrimSpace(t.Prompt)
	if prompt == "" {
		return "", &TemplateError{Reason: "prompt section is empty"}
	}
	system := strings.TrimSpace(t.System)
	if system == "" {
		return prompt, nil
	}
	return system + "\n\n" + prompt, nil
}
