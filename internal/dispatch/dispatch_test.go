package dispatch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revmux/internal/config"
)

// fakeBin writes an executable shell script standing in for the llm CLI.
func fakeBin(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-llm")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func runner(t *testing.T, script string) *Runner {
	t.Helper()
	return &Runner{
		Bin:     fakeBin(t, script),
		Timeout: 5 * time.Second,
		Outdir:  t.TempDir(),
	}
}

func TestRun_StructuredOutput(t *testing.T) {
	r := runner(t, `echo '{"summary":"looks fine","findings":[]}'`)

	rs, err := r.Run(context.Background(), []config.Model{{Name: "gpt-4.1"}}, "prompt")
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)

	res := rs.Results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "gpt-4.1", res.Model)
	require.NotNil(t, res.Payload)
	assert.Equal(t, "looks fine", res.Payload["summary"])
	assert.Equal(t, 1, rs.Succeeded())
	assert.Equal(t, 0, rs.Failed())
}

func TestRun_PlainTextOutput(t *testing.T) {
	r := runner(t, `echo "just prose, no JSON"`)

	rs, err := r.Run(context.Background(), []config.Model{{Name: "m"}}, "p")
	require.NoError(t, err)
	res := rs.Results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "just prose, no JSON", res.Text)
	assert.Nil(t, res.Payload)
}

func TestRun_FailureIsData(t *testing.T) {
	r := runner(t, `echo "model exploded" >&2; exit 3`)

	rs, err := r.Run(context.Background(), []config.Model{{Name: "bad"}, {Name: "bad2"}}, "p")
	require.NoError(t, err) // per-model failures never fail the run

	for _, res := range rs.Results {
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, 3, res.ExitCode)
		assert.Contains(t, res.StderrTail, "model exploded")
	}
	assert.Equal(t, 2, rs.Failed())
}

func TestRun_Retries(t *testing.T) {
	r := runner(t, `exit 1`)
	r.Retries = 2

	rs, err := r.Run(context.Background(), []config.Model{{Name: "m"}}, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, rs.Results[0].Attempts)
}

func TestRun_Timeout(t *testing.T) {
	r := runner(t, `sleep 10`)
	r.Timeout = 100 * time.Millisecond

	rs, err := r.Run(context.Background(), []config.Model{{Name: "slow"}}, "p")
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, rs.Results[0].Status)
}

func TestRun_ModelOptionsAndPromptPassed(t *testing.T) {
	r := runner(t, `echo "$@"`)

	rs, err := r.Run(context.Background(),
		[]config.Model{{Name: "m", Options: []string{"-o", "temperature", "0.2"}}},
		"the prompt")
	require.NoError(t, err)
	assert.Equal(t, "-m m -o temperature 0.2 the prompt", rs.Results[0].Text)
}

func TestRun_WritesOutputsAndManifest(t *testing.T) {
	r := runner(t, `echo '{"summary":"s","findings":[]}'`)

	rs, err := r.Run(context.Background(), []config.Model{{Name: "org/model:v1"}}, "p")
	require.NoError(t, err)

	txt, err := os.ReadFile(filepath.Join(rs.Dir, "org-model-v1.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(txt), `"summary"`)

	var payload map[string]any
	data, err := os.ReadFile(filepath.Join(rs.Dir, "org-model-v1.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "s", payload["summary"])

	var manifest []map[string]any
	data, err = os.ReadFile(filepath.Join(rs.Dir, "manifest.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, "org/model:v1", manifest[0]["model"])
	assert.Equal(t, "ok", manifest[0]["status"])
}

func TestRun_NoModels(t *testing.T) {
	r := runner(t, `true`)
	_, err := r.Run(context.Background(), nil, "p")
	var derr *Error
	require.ErrorAs(t, err, &derr)
}

func TestAvailable(t *testing.T) {
	r := &Runner{Bin: "definitely-not-a-real-binary-xyz"}
	err := r.Available()
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, err.Error(), "not found on PATH")
}

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // expected summary, "" means nil payload
	}{
		{"bare object", `{"summary":"a"}`, "a"},
		{"fenced", "```json\n{\"summary\":\"b\"}\n```", "b"},
		{"fenced no lang", "```\n{\"summary\":\"c\"}\n```", "c"},
		{"prose", "no json here", ""},
		{"invalid json", "{broken", ""},
		{"array", `[1, 2]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePayload(tt.in)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got["summary"])
		})
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "gpt-4.1", sanitizeName("gpt-4.1"))
	assert.Equal(t, "org-model-v2", sanitizeName("org/model:v2"))
	assert.Equal(t, "a-b", sanitizeName("  a b  "))
}
