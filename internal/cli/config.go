package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/revmux/internal/config"
)

var flagForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a starter global configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := config.Init(flagForce)
		if err != nil {
			fail(err)
			return
		}
		fmt.Fprintf(os.Stdout, "Wrote starter config to %s\n", path)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show [dir]",
	Short: "Print the effective configuration for a directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}

		globalPath, err := config.GlobalPath()
		if err != nil {
			fail(err)
			return
		}
		cfg, err := config.Load(config.Source{Dir: dir}, nil)
		if err != nil {
			fail(err)
			return
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fail(err)
			return
		}
		fmt.Fprintf(os.Stdout, "# global: %s\n# local:  %s\n%s", globalPath, config.LocalPath(dir), data)
	},
}

func init() {
	initConfigCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
}
