// Package contextfile aggregates user-supplied context files into the single
// text blob substituted into the review prompt. Failures to read a file are
// reported inline in the blob rather than aborting the run.
package contextfile
