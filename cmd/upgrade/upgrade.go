package upgrade

import (
	"fmt"

	"github.com/spf13/cobra"

	"ccs-host/cmd/root"
	"ccs-host/internal/config"
	"ccs-host/services"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Re-acquire the proxy binary",
	Long: `The 'upgrade' command downloads and verifies the proxy binary again
even when one is already installed. A running proxy keeps its current
binary until it is restarted.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Config
		if optVersion != "" {
			cfg.Release.Version = optVersion
		}
		svc := services.NewRunService(&cfg)
		path, err := svc.UpgradeBinary(cmd.Context())
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("Proxy binary upgraded at %s\n", path)
	},
}

var optVersion string

func init() {
	upgradeCmd.Flags().StringVarP(&optVersion, "version", "v", "", "Target version, empty for latest")
	root.RootCmd.AddCommand(upgradeCmd)

	upgradeCmd.Example = `  ccs upgrade
  ccs upgrade --version 1.3.0`
}
