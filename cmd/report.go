package cmd

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/daemon"
)

var suggestStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("86"))

var (
	reportSession    string
	reportExitCode   int
	reportDurationMs int64
	reportDiagnostic string
)

var reportCmd = &cobra.Command{
	Use:   "report <command>",
	Short: "Report a finished command's outcome and print any correction",
	Long: `Report a command's exit code to the daemon. On a failure the daemon
may answer with a corrected command, printed to stdout for the shell
adapter to offer. Reporting is best effort: when the daemon is away the
command exits silently with status 0.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")

		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return nil
		}
		timeout := time.Duration(0)
		if ms := GetConfig().RequestDeadlineMs; ms > 0 {
			timeout = time.Duration(ms+5) * time.Millisecond
		}
		c := client.New(sockPath, timeout)

		sg := c.Report(reportSession, command, reportExitCode, reportDurationMs, reportDiagnostic)
		if sg != nil {
			cmd.Println(sg.Command)
			cmd.PrintErrln(suggestStyle.Render("did you mean: "+sg.Command) + "  (" + sg.Explanation + ")")
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportSession, "session", "", "session id from the shell adapter")
	reportCmd.Flags().IntVar(&reportExitCode, "exit", 0, "the command's exit code")
	reportCmd.Flags().Int64Var(&reportDurationMs, "duration-ms", 0, "how long the command ran")
	reportCmd.Flags().StringVar(&reportDiagnostic, "diagnostic", "", "stderr snippet from the failure")
	rootCmd.AddCommand(reportCmd)
}
