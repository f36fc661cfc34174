package main

import (
	"github.com/spf13/cobra"

	"github.com/MrEthical07/docportal/internal/bootstrap"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func (f *rootFlags) load() (bootstrap.Config, error) {
	return bootstrap.LoadConfig(f.configPath, f.envFile)
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "docportal",
		Short: "Event documentation portal",
		Long: `docportal serves a catalog of periods, events and resource links.
Anyone can browse the catalog; signed-in admins edit it.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading DOCPORTAL_* variables")

	cmd.AddCommand(
		newServeCmd(flags),
		newConfigCmd(flags),
		newLoadtestCmd(),
	)
	return cmd
}
