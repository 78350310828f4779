package gitctx

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Scope selects which change categories a diff covers.
type Scope string

const (
	ScopeAll       Scope = "all"       // committed + staged + unstaged
	ScopeCommitted Scope = "committed" // merge-base..HEAD only
)

// Section headers emitted when the scope is ScopeAll.
const (
	HeaderCommitted = "=== COMMITTED CHANGES ==="
	HeaderStaged    = "=== STAGED CHANGES ==="
	HeaderUnstaged  = "=== UNSTAGED CHANGES ==="
)

// Stats summarizes the committed change set against the merge base.
type Stats struct {
	Files      int
	Insertions int
	Deletions  int
}

// Info is a read-only snapshot of repository state, captured once per run by
// Prepare and never mutated afterwards.
type Info struct {
	Branch      string
	Head        string
	BaseBranch  string
	BaseRef     string // resolved ref used for the merge base, e.g. "origin/main"
	MergeBase   string
	CommitRange string
	Stats       Stats
}

// RepositoryError reports a failed repository validation or git command.
// Branches, when set, lists refs that do exist so the message can steer the
// user toward a valid base branch.
type RepositoryError struct {
	Msg      string
	Branches []string
	Err      error
}

func (e *RepositoryError) Error() string {
	if len(e.Branches) > 0 {
		return fmt.Sprintf("%s (available branches: %s)", e.Msg, strings.Join(e.Branches, ", "))
	}
	return e.Msg
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Prepare validates repoPath and captures the repository snapshot used by the
// rest of the run.
func Prepare(repoPath, baseBranch string) (Info, error) {
	if err := validateRepo(repoPath); err != nil {
		return Info{}, err
	}

	branch, err := currentBranch(repoPath)
	if err != nil {
		return Info{}, err
	}

	head, err := git(repoPath, "rev-parse", "HEAD")
	if err != nil {
		return Info{}, &RepositoryError{Msg: "cannot resolve HEAD; does the repository have any commits?", Err: err}
	}

	baseRef, err := resolveBaseRef(repoPath, baseBranch)
	if err != nil {
		return Info{}, err
	}

	base, err := mergeBase(repoPath, baseRef)
	if err != nil {
		return Info{}, err
	}

	stats, err := diffStats(repoPath, base)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Branch:      branch,
		Head:        head,
		BaseBranch:  baseBranch,
		BaseRef:     baseRef,
		MergeBase:   base,
		CommitRange: base + ".." + head,
		Stats:       stats,
	}, nil
}

// Diff generates the unified diff for the requested scope. All sections use
// the same context-line count, no color, and no external diff driver. With
// ScopeAll, each non-empty section is preceded by its header and empty
// sections are omitted entirely; with ScopeCommitted the diff is returned
// bare. An entirely empty diff is an error.
func Diff(repoPath string, info Info, contextLines int, scope Scope) (string, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff", fmt.Sprintf("-U%d", contextLines)}

	committed, err := git(repoPath, append(args, info.MergeBase+"..HEAD")...)
	if err != nil {
		return "", &RepositoryError{Msg: fmt.Sprintf("generating committed diff: %v", err), Err: err}
	}

	if scope == ScopeCommitted {
		if committed == "" {
			return "", &RepositoryError{Msg: fmt.Sprintf("no committed changes between %s and HEAD", info.BaseRef)}
		}
		return committed, nil
	}

	staged, err := git(repoPath, append(args, "--cached")...)
	if err != nil {
		return "", &RepositoryError{Msg: fmt.Sprintf("generating staged diff: %v", err), Err: err}
	}

	unstaged, err := git(repoPath, args...)
	if err != nil {
		return "", &RepositoryError{Msg: fmt.Sprintf("generating unstaged diff: %v", err), Err: err}
	}

	var sections []string
	if committed != "" {
		sections = append(sections, HeaderCommitted, committed)
	}
	if staged != "" {
		sections = append(sections, HeaderStaged, staged)
	}
	if unstaged != "" {
		sections = append(sections, HeaderUnstaged, unstaged)
	}
	if len(sections) == 0 {
		return "", &RepositoryError{Msg: fmt.Sprintf("no committed, staged, or unstaged changes against %s", info.BaseRef)}
	}
	return strings.Join(sections, "\n\n"), nil
}

// CheckWorktree reports uncommitted state that a committed-only diff would
// miss. The returned message is empty when the worktree is clean.
func CheckWorktree(repoPath string) (string, error) {
	var parts []string

	_, err := git(repoPath, "diff", "--cached", "--quiet")
	switch {
	case err == nil:
	case isExitCode(err, 1):
		parts = append(parts, "staged changes")
	default:
		return "", &RepositoryError{Msg: fmt.Sprintf("checking staged changes: %v", err), Err: err}
	}

	_, err = git(repoPath, "diff", "--quiet")
	switch {
	case err == nil:
	case isExitCode(err, 1):
		parts = append(parts, "unstaged changes")
	default:
		return "", &RepositoryError{Msg: fmt.Sprintf("checking unstaged changes: %v", err), Err: err}
	}

	untracked, err := git(repoPath, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return "", &RepositoryError{Msg: fmt.Sprintf("checking untracked files: %v", err), Err: err}
	}
	if untracked != "" {
		parts = append(parts, "untracked files")
	}

	if len(parts) == 0 {
		return "", nil
	}
	return "repository has " + strings.Join(parts, ", "), nil
}

func validateRepo(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return &RepositoryError{Msg: fmt.Sprintf("path does not exist: %s", path), Err: err}
	}
	if !fi.IsDir() {
		return &RepositoryError{Msg: fmt.Sprintf("path is not a directory: %s", path)}
	}
	// .git is a directory in a normal checkout and a file in a linked worktree
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return &RepositoryError{Msg: fmt.Sprintf("not a git repository: %s", path), Err: err}
	}
	if _, err := exec.LookPath("git"); err != nil {
		return &RepositoryError{Msg: "git command not found", Err: err}
	}
	return nil
}

func currentBranch(repo string) (string, error) {
	branch, err := git(repo, "branch", "--show-current")
	if err != nil {
		return "", &RepositoryError{Msg: fmt.Sprintf("resolving current branch: %v", err), Err: err}
	}
	if branch == "" {
		branch, err = git(repo, "rev-parse", "--abbrev-ref", "HEAD")
		if err != nil {
			return "", &RepositoryError{Msg: fmt.Sprintf("resolving current branch: %v", err), Err: err}
		}
		if branch == "HEAD" {
			return "", &RepositoryError{Msg: "repository is in detached HEAD state"}
		}
	}
	return branch, nil
}

// resolveBaseRef picks the ref used as the diff baseline. The remote-tracked
// branch wins so a stale local pointer does not shrink the diff.
func resolveBaseRef(repo, base string) (string, error) {
	for _, ref := range []string{"origin/" + base, base} {
		if _, err := git(repo, "rev-parse", "--verify", "--quiet", ref); err == nil {
			return ref, nil
		}
	}
	branches, _ := listBranches(repo)
	return "", &RepositoryError{
		Msg:      fmt.Sprintf("base branch %q not found locally or on origin", base),
		Branches: branches,
	}
}

func listBranches(repo string) ([]string, error) {
	out, err := git(repo, "branch", "--all", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "origin" {
			continue
		}
		branches = append(branches, line)
	}
	return branches, nil
}

func mergeBase(repo, baseRef string) (string, error) {
	out, err := git(repo, "merge-base", "HEAD", baseRef)
	if err != nil {
		if isExitCode(err, 1) {
			return "", &RepositoryError{
				Msg: fmt.Sprintf("no common ancestor between HEAD and %s; did the branches diverge from different roots?", baseRef),
				Err: err,
			}
		}
		return "", &RepositoryError{Msg: fmt.Sprintf("finding merge base with %s: %v", baseRef, err), Err: err}
	}
	return out, nil
}

func diffStats(repo, mergeBase string) (Stats, error) {
	out, err := git(repo, "diff", "--shortstat", mergeBase+"..HEAD")
	if err != nil {
		return Stats{}, &RepositoryError{Msg: fmt.Sprintf("collecting diff stats: %v", err), Err: err}
	}
	return parseShortStat(out), nil
}

// parseShortStat parses a line like
// "3 files changed, 12 insertions(+), 4 deletions(-)".
func parseShortStat(s string) Stats {
	var st Stats
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(part)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(fields[1], "file"):
			st.Files = n
		case strings.HasPrefix(fields[1], "insertion"):
			st.Insertions = n
		case strings.HasPrefix(fields[1], "deletion"):
			st.Deletions = n
		}
	}
	return st
}

func git(repo string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repo
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func isExitCode(err error, code int) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == code
}
