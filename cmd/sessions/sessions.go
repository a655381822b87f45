package sessions

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ccs-host/cmd/root"
	"ccs-host/internal/config"
	"ccs-host/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions registered against the shared proxy",
	Run: func(cmd *cobra.Command, args []string) {
		listSessions()
	},
}

func listSessions() {
	port := config.Config.Proxy.Port
	lock, err := session.GetTracker().Read(port)
	if err != nil {
		fmt.Printf("Cannot read session ledger: %v\n", err)
		return
	}
	if lock == nil {
		fmt.Printf("No session ledger for port %d\n", port)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Session", "Port", "PID", "Version", "Backend", "Started"})
	for _, id := range lock.SessionIds {
		t.AppendRow(table.Row{id, lock.Port, lock.Pid, lock.Version, lock.Backend,
			lock.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}

func init() {
	root.RootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Example = `  ccs sessions`
}
