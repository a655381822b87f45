package stop

import (
	"fmt"

	"github.com/spf13/cobra"

	"ccs-host/cmd/root"
	"ccs-host/internal/config"
	"ccs-host/services"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the shared proxy",
	Long: `The 'stop' command tears down the shared proxy for the configured port.
It refuses while sessions still depend on the proxy unless --force is
given, and never kills a process that is not the proxy.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Config
		m := services.NewLifecycleManager(cfg.Proxy, "", "")
		if err := m.StopProxy(optForce); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("Proxy stopped")
	},
}

var optForce bool

func init() {
	stopCmd.Flags().BoolVarP(&optForce, "force", "f", false, "Stop even while sessions remain registered")
	root.RootCmd.AddCommand(stopCmd)

	stopCmd.Example = `  ccs stop
  ccs stop --force`
}
