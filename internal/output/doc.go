// Package output renders the per-model review results to the terminal.
package output
