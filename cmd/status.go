package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/daemon"
	"github.com/fakeyudi/shellguard/internal/shell"
)

const statusTimeout = 2 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon liveness and the active policy version",
	RunE: func(cmd *cobra.Command, args []string) error {
		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return err
		}
		c := client.New(sockPath, statusTimeout)

		version, err := c.Ping()
		if err != nil {
			cmd.Println("daemon: not running")
			cmd.Printf("socket: %s\n", sockPath)
			printAdapters(cmd)
			return nil
		}

		sessions, _ := c.Sessions()
		cmd.Println("daemon: running")
		cmd.Printf("socket: %s\n", sockPath)
		cmd.Printf("policy version: %s\n", version)
		cmd.Printf("safety level: %s\n", GetConfig().SafetyLevel)
		cmd.Printf("active sessions: %d\n", len(sessions))
		printAdapters(cmd)
		return nil
	},
}

func printAdapters(cmd *cobra.Command) {
	for _, sh := range []string{"zsh", "bash"} {
		state := "not installed"
		if shell.IsInstalled(sh) {
			state = "installed"
		}
		cmd.Printf("%s adapter: %s\n", sh, state)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
