package root

import (
	"github.com/spf13/cobra"

	"ccs-host/internal/env"
)

var RootCmd = &cobra.Command{
	Use:   "ccs",
	Short: "Launcher for the shared ccs-proxy",
	Long: `ccs acquires the ccs-proxy binary, coordinates a single shared proxy
process across concurrent invocations, and assembles the local request
transformation chain in front of it`,
}

func init() {
	RootCmd.PersistentFlags().BoolVar(&env.Verbose, "verbose", false, "Enable verbose diagnostics")
}
