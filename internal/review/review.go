package review

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/revmux/internal/config"
	"github.com/dshills/revmux/internal/contextfile"
	"github.com/dshills/revmux/internal/dispatch"
	"github.com/dshills/revmux/internal/gitctx"
	"github.com/dshills/revmux/internal/prompt"
)

// Request describes one review run. Zero values fall back to resolved
// configuration; Overrides is merged into the configuration at the highest
// precedence before anything else happens.
type Request struct {
	RepoPath     string
	Models       []string // model names to run; nil means all configured
	ContextFiles []string
	OutputDir    string
	BaseBranch   string // overrides git.base_branch when non-empty
	TemplatePath string // overrides paths.template; must exist when set
	Overrides    map[string]any
	Verbose      bool
	Log          io.Writer // status and warning lines; nil discards
}

// Run executes the full pipeline: configuration resolution, repository
// inspection, context aggregation, template population, and parallel model
// dispatch. The dispatcher aggregate is returned unmodified; per-model
// failures live inside it rather than in the error return.
func Run(ctx context.Context, req Request) (*dispatch.Results, error) {
	log := req.Log
	if log == nil {
		log = io.Discard
	}

	repo := req.RepoPath
	if repo == "" {
		repo = "."
	}
	repo, err := filepath.Abs(repo)
	if err != nil {
		return nil, fmt.Errorf("resolving repository path: %w", err)
	}

	cfg, err := config.Load(config.Source{Dir: repo}, req.Overrides)
	if err != nil {
		return nil, err
	}
	models, err := config.Select(cfg, req.Models)
	if err != nil {
		return nil, err
	}

	baseBranch := cfg.Git.BaseBranch
	if req.BaseBranch != "" {
		baseBranch = req.BaseBranch
	}

	info, err := gitctx.Prepare(repo, baseBranch)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(log, "Reviewing %s against %s (%d files, +%d/-%d)\n",
		info.Branch, info.BaseRef, info.Stats.Files, info.Stats.Insertions, info.Stats.Deletions)
	if req.Verbose {
		fmt.Fprintf(log, "Commit range: %s\n", info.CommitRange)
	}

	scope := gitctx.Scope(cfg.Git.DiffScope)
	if scope == gitctx.ScopeCommitted {
		if msg, werr := gitctx.CheckWorktree(repo); werr == nil && msg != "" {
			fmt.Fprintf(log, "Warning: %s; these are not included in a committed-only review\n", msg)
		}
	}

	diff, err := gitctx.Diff(repo, info, cfg.Git.ContextLines, scope)
	if err != nil {
		return nil, err
	}

	repoContext := contextfile.Aggregate(req.ContextFiles, repo)

	tpl, err := loadTemplate(req, cfg, repo, log)
	if err != nil {
		return nil, err
	}
	populated, warnings := tpl.Populate(repoContext, diff)
	for _, w := range warnings {
		fmt.Fprintf(log, "Warning: %s\n", w)
	}
	rendered, err := populated.Render()
	if err != nil {
		return nil, err
	}

	outdir, err := resolveOutdir(req, cfg, repo)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fmt.Fprintf(log, "Dispatching to %d model(s)...\n", len(models))
	runner := dispatch.NewRunner(cfg, outdir)
	return runner.Run(ctx, models, rendered)
}

// loadTemplate picks the template for this run. An explicit request path must
// exist; the configured path falls back to the embedded default when missing.
func loadTemplate(req Request, cfg config.Config, repo string, log io.Writer) (prompt.Template, error) {
	if req.TemplatePath != "" {
		return prompt.Load(resolvePath(req.TemplatePath, repo))
	}

	path := resolvePath(cfg.Paths.Template, repo)
	if _, err := os.Stat(path); err != nil {
		if req.Verbose {
			fmt.Fprintf(log, "No template at %s, using built-in default\n", path)
		}
		return prompt.Builtin(), nil
	}
	return prompt.Load(path)
}

func resolvePath(path, repo string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repo, path)
}

// resolveOutdir applies the output directory precedence: request, then
// defaults.outdir with ~ expansion, then revmux-results inside the repo.
func resolveOutdir(req Request, cfg config.Config, repo string) (string, error) {
	switch {
	case req.OutputDir != "":
		return req.OutputDir, nil
	case cfg.Defaults.Outdir != "":
		return expandHome(cfg.Defaults.Outdir)
	default:
		return filepath.Join(repo, "revmux-results"), nil
	}
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding ~ in output directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
