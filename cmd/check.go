package cmd

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/shellguard/internal/client"
	"github.com/fakeyudi/shellguard/internal/daemon"
)

var (
	blockStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	confirmStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("178"))
)

var checkSession string

// Exit codes of the check command. Shell adapters branch on these.
const (
	exitAllow        = 0
	exitBlocked      = 1
	exitNeedsConfirm = 2
)

var checkCmd = &cobra.Command{
	Use:   "check <command>",
	Short: "Validate a command before running it",
	Long: `Validate a command against the daemon's safety policy.

Exits 0 when the command may run, 1 when it is blocked, and 2 when it
requires confirmation but stdin is not a terminal. If the daemon is
unreachable or slow, the command is allowed: shellguard never breaks a
shell it cannot protect.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		cwd, err := os.Getwd()
		if err != nil {
			cwd = ""
		}

		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return nil // fail open
		}
		timeout := time.Duration(0)
		if ms := GetConfig().RequestDeadlineMs; ms > 0 {
			// Client budget sits just above the daemon's processing deadline.
			timeout = time.Duration(ms+5) * time.Millisecond
		}
		c := client.New(sockPath, timeout)

		decision, _ := c.Check(checkSession, command, cwd)

		for _, w := range decision.Warnings {
			cmd.PrintErrln(warnStyle.Render("warning: " + w))
		}

		if !decision.Allow {
			cmd.PrintErrln(blockStyle.Render("blocked: " + decision.BlockedReason))
			os.Exit(exitBlocked)
		}

		if decision.RequireConfirmation {
			if !term.IsTerminal(os.Stdin.Fd()) {
				cmd.PrintErrln(confirmStyle.Render("confirmation required; refusing non-interactively"))
				os.Exit(exitNeedsConfirm)
			}
			cmd.PrintErr(confirmStyle.Render("run anyway? [y/N] "))
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			answer := strings.ToLower(strings.TrimSpace(line))
			if answer != "y" && answer != "yes" {
				cmd.PrintErrln("aborted")
				os.Exit(exitBlocked)
			}
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkSession, "session", "", "session id from the shell adapter")
	rootCmd.AddCommand(checkCmd)
}
