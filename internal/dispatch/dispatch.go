package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dshills/revmux/internal/config"
)

// DefaultBin is the external model CLI the dispatcher shells out to.
const DefaultBin = "llm"

// Status classifies the outcome of one model invocation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Error reports a dispatcher-level failure, as opposed to a per-model
// failure, which is recorded in its Result.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Err }

// Result holds the outcome of a single model invocation. Per-model failures
// are data, not errors; the run as a whole succeeds when at least one model
// does.
type Result struct {
	Model      string
	Status     Status
	Duration   time.Duration
	Attempts   int
	ExitCode   int
	Text       string         // raw model output
	Payload    map[string]any // parsed structured payload, nil when absent
	StderrTail string
	Command    []string
}

// OK reports whether the invocation produced usable output.
func (r Result) OK() bool { return r.Status == StatusOK }

// Results aggregates all model outcomes for one run, in the order the models
// were configured, plus the directory the raw outputs were written to.
type Results struct {
	Dir     string
	Results []Result
}

// Succeeded counts models with usable output.
func (rs *Results) Succeeded() int {
	n := 0
	for _, r := range rs.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed counts models that errored or timed out.
func (rs *Results) Failed() int { return len(rs.Results) - rs.Succeeded() }

// Runner submits a prompt to the external model CLI, one subprocess per
// model, all in parallel.
type Runner struct {
	Bin     string
	Timeout time.Duration // per attempt, per model
	Retries int           // extra attempts after the first failure
	Outdir  string        // parent of the timestamped run directory
}

// NewRunner builds a Runner from resolved configuration.
func NewRunner(cfg config.Config, outdir string) *Runner {
	return &Runner{
		Bin:     DefaultBin,
		Timeout: time.Duration(cfg.Defaults.Timeout) * time.Second,
		Retries: cfg.Defaults.Retries,
		Outdir:  outdir,
	}
}

// Available checks that the model CLI is on PATH.
func (r *Runner) Available() error {
	if _, err := exec.LookPath(r.Bin); err != nil {
		return &Error{Msg: fmt.Sprintf("%s command not found on PATH; install it with: pip install llm", r.Bin), Err: err}
	}
	return nil
}

// Run submits the prompt to every model at once and blocks until all
// invocations finish. Raw outputs and a manifest are written to a fresh
// timestamped subdirectory of Outdir.
func (r *Runner) Run(ctx context.Context, models []config.Model, prompt string) (*Results, error) {
	if len(models) == 0 {
		return nil, &Error{Msg: "no models to dispatch"}
	}
	if err := r.Available(); err != nil {
		return nil, err
	}

	dir := filepath.Join(r.Outdir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Msg: fmt.Sprintf("creating output directory %s", dir), Err: err}
	}

	results := make([]Result, len(models))
	var wg sync.WaitGroup
	for i, m := range models {
		wg.Add(1)
		go func(i int, m config.Model) {
			defer wg.Done()
			results[i] = r.runModel(ctx, m, prompt)
		}(i, m)
	}
	wg.Wait()

	rs := &Results{Dir: dir, Results: results}
	if err := writeOutputs(dir, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// runModel invokes one model, retrying failed attempts. A cancelled parent
// context stops the retry loop; a per-attempt timeout does not.
func (r *Runner) runModel(ctx context.Context, m config.Model, prompt string) Result {
	var res Result
	for attempt := 1; attempt <= r.Retries+1; attempt++ {
		res = r.invoke(ctx, m, prompt)
		res.Attempts = attempt
		if res.OK() || ctx.Err() != nil {
			break
		}
	}
	return res
}

func (r *Runner) invoke(ctx context.Context, m config.Model, prompt string) Result {
	args := append([]string{"-m", m.Name}, m.Options...)
	args = append(args, prompt)

	cctx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, r.Bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Model:    m.Name,
		Duration: time.Since(start),
		Command:  append([]string{r.Bin}, args...),
	}

	if cctx.Err() == context.DeadlineExceeded {
		res.Status = StatusTimeout
		res.ExitCode = -1
		res.StderrTail = tail(stderr.String())
		return res
	}
	if err != nil {
		res.Status = StatusError
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		res.StderrTail = tail(stderr.String())
		if res.StderrTail == "" {
			res.StderrTail = err.Error()
		}
		return res
	}

	res.Status = StatusOK
	res.Text = strings.TrimSpace(stdout.String())
	res.Payload = parsePayload(res.Text)
	return res
}

var fenceRe = regexp.MustCompile("^```(?:json)?\\s*\\n?|\\n?```$")

// parsePayload extracts a structured JSON object from model output. Models
// often wrap JSON in markdown code fences; those are stripped first. Output
// that is not a JSON object stays raw text.
func parsePayload(text string) map[string]any {
	cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(text), ""))
	if !strings.HasPrefix(cleaned, "{") {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil
	}
	return payload
}

// tail keeps the last few lines of stderr for error reporting.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	return strings.Join(lines, "\n")
}

type manifestEntry struct {
	Model      string `json:"model"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Attempts   int    `json:"attempts"`
	ExitCode   int    `json:"exit_code,omitempty"`
	TextFile   string `json:"text_file,omitempty"`
	JSONFile   string `json:"json_file,omitempty"`
}

// writeOutputs persists per-model raw text, structured payloads, and a
// manifest into the run directory.
func writeOutputs(dir string, rs *Results) error {
	entries := make([]manifestEntry, 0, len(rs.Results))
	for i := range rs.Results {
		res := &rs.Results[i]
		entry := manifestEntry{
			Model:      res.Model,
			Status:     res.Status,
			DurationMS: res.Duration.Milliseconds(),
			Attempts:   res.Attempts,
			ExitCode:   res.ExitCode,
		}
		if res.Text != "" {
			name := sanitizeName(res.Model) + ".txt"
			if err := os.WriteFile(filepath.Join(dir, name), []byte(res.Text+"\n"), 0o644); err != nil {
				return &Error{Msg: fmt.Sprintf("writing %s", name), Err: err}
			}
			entry.TextFile = name
		}
		if res.Payload != nil {
			name := sanitizeName(res.Model) + ".json"
			data, err := json.MarshalIndent(res.Payload, "", "  ")
			if err != nil {
				return &Error{Msg: fmt.Sprintf("encoding payload for %s", res.Model), Err: err}
			}
			if err := os.WriteFile(filepath.Join(dir, name), append(data, '\n'), 0o644); err != nil {
				return &Error{Msg: fmt.Sprintf("writing %s", name), Err: err}
			}
			entry.JSONFile = name
		}
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return &Error{Msg: "encoding manifest", Err: err}
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), append(data, '\n'), 0o644); err != nil {
		return &Error{Msg: "writing manifest.json", Err: err}
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeName turns a model name into a safe file name.
func sanitizeName(model string) string {
	s := unsafeName.ReplaceAllString(model, "-")
	return strings.Trim(s, "-.")
}
