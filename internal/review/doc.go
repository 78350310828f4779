// Package review orchestrates the end-to-end pipeline and is the
// programmatic entry point: resolve configuration, inspect the repository,
// aggregate context files, populate the prompt template, and dispatch to all
// configured models in parallel.
package review
