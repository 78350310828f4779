package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/revmux/internal/config"
	"github.com/dshills/revmux/internal/dispatch"
	"github.com/dshills/revmux/internal/gitctx"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration, model CLI, and current repository",
	Run: func(cmd *cobra.Command, args []string) {
		ok := true

		cwd, err := os.Getwd()
		if err != nil {
			fail(err)
			return
		}

		baseBranch := "main"
		cfg, err := config.Load(config.Source{Dir: cwd}, nil)
		switch {
		case err != nil:
			report(false, "configuration: %v", err)
			ok = false
		case len(cfg.Models) == 0:
			report(false, "configuration loaded but no models configured; run revmux init-config")
			ok = false
			baseBranch = cfg.Git.BaseBranch
		default:
			report(true, "configuration loaded (%d model(s))", len(cfg.Models))
			baseBranch = cfg.Git.BaseBranch
		}

		runner := &dispatch.Runner{Bin: dispatch.DefaultBin}
		if err := runner.Available(); err != nil {
			report(false, "%v", err)
			ok = false
		} else {
			report(true, "%s CLI found on PATH", dispatch.DefaultBin)
		}

		if info, err := gitctx.Prepare(cwd, baseBranch); err != nil {
			report(false, "repository: %v", err)
			ok = false
		} else {
			report(true, "git repository on branch %s (base %s)", info.Branch, info.BaseRef)
		}

		if !ok {
			exitCode = ExitError
		}
	},
}

func report(ok bool, format string, args ...interface{}) {
	mark := "ok  "
	if !ok {
		mark = "FAIL"
	}
	fmt.Fprintf(os.Stdout, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}
