// Revmux is a CLI that reviews git changes with several language models at
// once.
//
// It diffs the current branch against its base branch, folds in optional
// context files, populates a YAML prompt template, and submits the result to
// every configured model in parallel through the llm CLI, saving the raw
// outputs alongside a rendered comparison.
//
// Usage:
//
//	revmux init-config                # write a starter global config
//	revmux review                     # review the current repository
//	revmux review ~/src/proj -m gpt-4.1 --diff-scope committed
//	revmux config show                # print the effective configuration
//	revmux check                      # verify config, git repo, and llm CLI
package main
