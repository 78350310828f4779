// Package cli wires the cobra command tree: review, init-config, config
// show, check, and version. Handlers set the package exit code; Run returns
// it to main.
package cli
