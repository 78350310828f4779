package review

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revmux/internal/config"
	"github.com/dshills/revmux/internal/dispatch"
	"github.com/dshills/revmux/internal/gitctx"
	"github.com/dshills/revmux/internal/prompt"
)

func runGit(t *testing.T, repo string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = repo
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test",
		"GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test",
		"GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
}

// setupPipeline builds a git repo with a reviewable change, a local config
// naming one model, a fake llm binary on PATH that echoes its arguments, and
// an isolated XDG config home.
func setupPipeline(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures need a POSIX shell")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()
	runGit(t, repo, "init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n"), 0o644))
	runGit(t, repo, "add", "main.go")
	runGit(t, repo, "commit", "-m", "initial commit")
	runGit(t, repo, "checkout", "-b", "feature")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	runGit(t, repo, "add", "main.go")
	runGit(t, repo, "commit", "-m", "add main func")

	require.NoError(t, os.WriteFile(config.LocalPath(repo), []byte("models:\n  - name: fake-model\n"), 0o644))

	binDir := t.TempDir()
	script := "#!/bin/sh\necho \"$@\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(binDir, dispatch.DefaultBin), []byte(script), 0o755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	return repo
}

func TestRun_EndToEnd(t *testing.T) {
	repo := setupPipeline(t)
	var log bytes.Buffer

	rs, err := Run(context.Background(), Request{RepoPath: repo, Log: &log})
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)

	res := rs.Results[0]
	assert.True(t, res.OK())
	assert.Equal(t, "fake-model", res.Model)
	// the echoed prompt carries the diff and the empty-context sentinel
	assert.Contains(t, res.Text, "+func main() {}")
	assert.Contains(t, res.Text, "=== COMMITTED CHANGES ===")
	assert.Contains(t, res.Text, "(No additional context provided)")
	assert.NotContains(t, res.Text, "$diff")
	assert.NotContains(t, res.Text, "$repo_context")

	// default output dir lives inside the repo
	assert.True(t, strings.HasPrefix(rs.Dir, filepath.Join(repo, "revmux-results")))
	_, err = os.Stat(filepath.Join(rs.Dir, "manifest.json"))
	assert.NoError(t, err)

	assert.Contains(t, log.String(), "Reviewing feature against main")
	assert.Contains(t, log.String(), "Dispatching to 1 model(s)")
}

func TestRun_ContextFiles(t *testing.T) {
	repo := setupPipeline(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "notes.md"), []byte("uses the builder pattern"), 0o644))

	rs, err := Run(context.Background(), Request{
		RepoPath:     repo,
		ContextFiles: []string{"notes.md"},
	})
	require.NoError(t, err)
	assert.Contains(t, rs.Results[0].Text, "File: notes.md")
	assert.Contains(t, rs.Results[0].Text, "uses the builder pattern")
	assert.NotContains(t, rs.Results[0].Text, "(No additional context provided)")
}

func TestRun_OutputDirPrecedence(t *testing.T) {
	repo := setupPipeline(t)
	outdir := filepath.Join(t.TempDir(), "runs")

	rs, err := Run(context.Background(), Request{RepoPath: repo, OutputDir: outdir})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rs.Dir, outdir))
}

func TestRun_ModelSelection(t *testing.T) {
	repo := setupPipeline(t)
	require.NoError(t, os.WriteFile(config.LocalPath(repo),
		[]byte("models:\n  - name: alpha\n  - name: beta\n"), 0o644))

	rs, err := Run(context.Background(), Request{RepoPath: repo, Models: []string{"beta"}})
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)
	assert.Equal(t, "beta", rs.Results[0].Model)
}

func TestRun_UnknownModel(t *testing.T) {
	repo := setupPipeline(t)

	_, err := Run(context.Background(), Request{RepoPath: repo, Models: []string{"nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope" not found`)
}

func TestRun_NoModelsConfigured(t *testing.T) {
	repo := setupPipeline(t)
	require.NoError(t, os.Remove(config.LocalPath(repo)))

	_, err := Run(context.Background(), Request{RepoPath: repo})
	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "no models configured")
}

func TestRun_NotARepository(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.LocalPath(dir), []byte("models:\n  - name: m\n"), 0o644))

	_, err := Run(context.Background(), Request{RepoPath: dir})
	var rerr *gitctx.RepositoryError
	require.ErrorAs(t, err, &rerr)
}

func TestRun_ExplicitTemplateMustExist(t *testing.T) {
	repo := setupPipeline(t)

	_, err := Run(context.Background(), Request{RepoPath: repo, TemplatePath: "missing.yml"})
	var terr *prompt.TemplateError
	require.ErrorAs(t, err, &terr)
}

func TestRun_CommittedScopeWorktreeWarning(t *testing.T) {
	repo := setupPipeline(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n// dirty\n"), 0o644))

	var log bytes.Buffer
	_, err := Run(context.Background(), Request{
		RepoPath:  repo,
		Overrides: map[string]any{"git": map[string]any{"diff_scope": "committed"}},
		Log:       &log,
	})
	require.NoError(t, err)
	assert.Contains(t, log.String(), "Warning: repository has")
	assert.Contains(t, log.String(), "unstaged changes")
}

func TestResolveOutdir(t *testing.T) {
	repo := "/some/repo"

	got, err := resolveOutdir(Request{OutputDir: "/explicit"}, config.Config{}, repo)
	require.NoError(t, err)
	assert.Equal(t, "/explicit", got)

	cfg := config.Config{}
	cfg.Defaults.Outdir = "/from/config"
	got, err = resolveOutdir(Request{}, cfg, repo)
	require.NoError(t, err)
	assert.Equal(t, "/from/config", got)

	got, err = resolveOutdir(Request{}, config.Config{}, repo)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(repo, "revmux-results"), got)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/reviews")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "reviews"), got)

	got, err = expandHome("/absolute/path")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path", got)
}
