package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/daemon"
	"github.com/fakeyudi/shellguard/internal/protocol"
)

var (
	sessionShell string
	sessionPid   int
	sessionID    string
)

const sessionTimeout = time.Second

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the shell adapter's session lifecycle",
}

// sessionStartCmd prints the new session id on stdout; the plugin captures
// it. An unreachable daemon prints nothing and exits 0, and the adapter runs
// unregistered until the daemon appears.
var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Register a new shell session and print its id",
	RunE: func(cmd *cobra.Command, args []string) error {
		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return nil
		}
		c := client.New(sockPath, sessionTimeout)
		resp, err := c.Do(&protocol.Request{
			Event: protocol.EventSessionStart,
			Shell: protocol.ShellKind(sessionShell),
			Pid:   sessionPid,
		})
		if err != nil || resp.Error != "" {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.SessionID)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "Deregister a shell session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sessionID == "" {
			return nil
		}
		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return nil
		}
		c := client.New(sockPath, sessionTimeout)
		c.Do(&protocol.Request{Event: protocol.EventSessionEnd, SessionID: sessionID})
		return nil
	},
}

func init() {
	sessionStartCmd.Flags().StringVar(&sessionShell, "shell", "other", "shell flavor (zsh, bash, fish, sh)")
	sessionStartCmd.Flags().IntVar(&sessionPid, "pid", 0, "the shell's process id")
	sessionEndCmd.Flags().StringVar(&sessionID, "session", "", "session id to deregister")
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}
