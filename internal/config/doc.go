// Package config loads and merges revmux configuration from layered YAML
// sources.
//
// Precedence (highest to lowest):
//  1. CLI/programmatic overrides
//  2. Local config file (<dir>/.revmux.yaml)
//  3. Global config file ($XDG_CONFIG_HOME/revmux/config.yaml)
//  4. Built-in defaults
//
// Merging is recursive on mappings only: sequences and scalars are replaced
// wholesale by higher-precedence layers, never concatenated. Every section
// key present in the built-in defaults survives the merge; overrides can only
// change leaves, not delete them. Validation runs on the merged mapping and
// reports the offending field path.
package config
