package run

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ccs-host/cmd/root"
	"ccs-host/internal/config"
	"ccs-host/internal/logger"
	"ccs-host/services"
)

var runCmd = &cobra.Command{
	Use:   "run [-- command args...]",
	Short: "Obtain a proxy and run the transformation chain",
	Long: `The 'run' command acquires the proxy binary if needed, spawns or joins
the shared proxy for the configured port, starts the transformation
links and prints the effective endpoint. With a trailing command, that
command is launched with CCS_BASE_URL pointing at the endpoint.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc := services.NewRunService(&config.Config)
		if err := svc.Run(ctx, services.RunOptions{DownstreamArgs: args}); err != nil {
			logger.Fatal(err)
		}
	},
}

func init() {
	root.RootCmd.AddCommand(runCmd)

	runCmd.Example = `  ccs run
  ccs run -- my-cli --model gpt-5.2-codex-xhigh`
}
