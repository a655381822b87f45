package status

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ccs-host/cmd/root"
	"ccs-host/internal/config"
	"ccs-host/internal/detect"
	"ccs-host/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the shared proxy",
	Run: func(cmd *cobra.Command, args []string) {
		printStatus(cmd.Context())
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printStatus(ctx context.Context) {
	cfg := config.Config
	d := detect.NewDetector(cfg.Proxy.ProcessName, cfg.Proxy.HealthPath)
	st := d.Detect(ctx, cfg.Proxy.Port)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Port", "Running", "Verified", "Method", "PID", "Version", "Blocked"})
	pid := ""
	if st.Pid > 0 {
		pid = fmt.Sprintf("%d", st.Pid)
	}
	t.AppendRow(table.Row{cfg.Proxy.Port, yesNo(st.Running), yesNo(st.Verified), st.Method, pid, st.Version, yesNo(st.Blocked)})
	t.Render()

	if st.Blocked {
		fmt.Printf("Port %d is occupied by %s\n", cfg.Proxy.Port, st.Blocker)
	}

	lock, err := session.GetTracker().Read(cfg.Proxy.Port)
	if err != nil || lock == nil {
		fmt.Println("No sessions registered")
		return
	}
	fmt.Printf("%d session(s) registered since %s\n",
		len(lock.SessionIds), lock.StartedAt.Format("2006-01-02 15:04:05"))
}

func init() {
	root.RootCmd.AddCommand(statusCmd)

	statusCmd.Example = `  ccs status`
}
