package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/revmux/internal/config"
	"github.com/dshills/revmux/internal/output"
	"github.com/dshills/revmux/internal/review"
)

var (
	flagModels       []string
	flagContextFiles []string
	flagOutputDir    string
	flagBaseBranch   string
	flagContextLines int
	flagDiffScope    string
	flagTimeout      int
	flagRetries      int
	flagTemplate     string
	flagVerbose      bool
)

var reviewCmd = &cobra.Command{
	Use:   "review [repo-path]",
	Short: "Review changes with all configured models",
	Long: "Review assembles a prompt from the repository's diff against its base\n" +
		"branch and submits it to every configured model in parallel. Exits 0 when\n" +
		"at least one model returns a result.",
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo := "."
		if len(args) == 1 {
			repo = args[0]
		}

		if flagDiffScope != "" && flagDiffScope != config.ScopeAll && flagDiffScope != config.ScopeCommitted {
			fail(fmt.Errorf("invalid --diff-scope %q: must be %q or %q",
				flagDiffScope, config.ScopeAll, config.ScopeCommitted))
			return
		}

		rs, err := review.Run(cmd.Context(), review.Request{
			RepoPath:     repo,
			Models:       flagModels,
			ContextFiles: flagContextFiles,
			OutputDir:    flagOutputDir,
			BaseBranch:   flagBaseBranch,
			TemplatePath: flagTemplate,
			Overrides:    buildOverrides(cmd),
			Verbose:      flagVerbose,
			Log:          os.Stderr,
		})
		if err != nil {
			fail(err)
			return
		}

		if err := output.Present(os.Stdout, rs, flagVerbose); err != nil {
			fail(err)
			return
		}
		if rs.Succeeded() == 0 {
			fail(fmt.Errorf("all %d model(s) failed", len(rs.Results)))
		}
	},
}

func init() {
	addReviewFlags(reviewCmd)
}

func addReviewFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringArrayVarP(&flagModels, "model", "m", nil, "Model to run (repeatable; default: all configured)")
	f.StringArrayVarP(&flagContextFiles, "context-file", "c", nil, "Extra context file for the prompt (repeatable)")
	f.StringVarP(&flagOutputDir, "output-dir", "o", "", "Directory for raw model outputs")
	f.StringVar(&flagBaseBranch, "base-branch", "", "Base branch to diff against")
	f.IntVar(&flagContextLines, "context-lines", 0, "Number of context lines in the diff")
	f.StringVar(&flagDiffScope, "diff-scope", "", "Diff scope: all or committed")
	f.IntVar(&flagTimeout, "timeout", 0, "Per-model timeout in seconds")
	f.IntVar(&flagRetries, "retries", 0, "Extra attempts per failing model")
	f.StringVar(&flagTemplate, "template", "", "Prompt template file")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose status output and untruncated results")
}

// buildOverrides maps flags the user actually set onto config keys. Unset
// flags must not shadow file-level settings, hence the Changed checks.
func buildOverrides(cmd *cobra.Command) map[string]any {
	defaults := make(map[string]any)
	git := make(map[string]any)

	if cmd.Flags().Changed("timeout") {
		defaults["timeout"] = flagTimeout
	}
	if cmd.Flags().Changed("retries") {
		defaults["retries"] = flagRetries
	}
	if cmd.Flags().Changed("context-lines") {
		git["context_lines"] = flagContextLines
	}
	if cmd.Flags().Changed("diff-scope") {
		git["diff_scope"] = flagDiffScope
	}

	m := make(map[string]any)
	if len(defaults) > 0 {
		m["defaults"] = defaults
	}
	if len(git) > 0 {
		m["git"] = git
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
