package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/daemon"
	"github.com/fakeyudi/shellguard/internal/monitor"
)

var sessionsWatch bool

// sessionsTimeout is generous: listing is not on the interactive path.
const sessionsTimeout = 2 * time.Second

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active shell sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return err
		}
		c := client.New(sockPath, sessionsTimeout)

		if sessionsWatch {
			return monitor.Run(c)
		}

		sessions, err := c.Sessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			cmd.Println("no active sessions")
			return nil
		}
		cmd.Printf("%-38s %-6s %-7s %-5s %-9s %s\n", "SESSION", "SHELL", "PID", "EXIT", "ACTIVE", "CWD")
		for _, s := range sessions {
			cmd.Printf("%-38s %-6s %-7d %-5d %-9s %s\n",
				s.ID, s.Shell, s.Pid, s.LastExitCode,
				s.LastActivity.Format("15:04:05"), s.Cwd)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsWatch, "watch", false, "live TUI view that refreshes automatically")
	rootCmd.AddCommand(sessionsCmd)
}
