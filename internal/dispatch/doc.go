// Package dispatch submits the assembled review prompt to every configured
// model in parallel through the external llm CLI. Each model runs in its own
// subprocess with a per-attempt timeout and optional retries. A failing model
// is recorded in its Result rather than failing the run; only dispatcher
// setup problems return errors.
package dispatch
