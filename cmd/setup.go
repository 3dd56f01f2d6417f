package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/shellguard/internal/shell"
)

var setupShell string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install the shell adapter plugin (re-run anytime to refresh it)",
	RunE: func(cmd *cobra.Command, args []string) error {
		sh := setupShell
		if sh == "" {
			sh = detectShell()
		}
		if sh == "" {
			return fmt.Errorf("could not detect your shell; pass --shell zsh or --shell bash")
		}

		if err := shell.Install(sh); err != nil {
			return err
		}
		fmt.Println("  Run 'shellguard daemon' (or add it to your session startup) to activate protection.")
		fmt.Println()
		return nil
	},
}

// detectShell reads $SHELL, which is set to the login shell.
func detectShell() string {
	switch filepath.Base(os.Getenv("SHELL")) {
	case "zsh":
		return "zsh"
	case "bash":
		return "bash"
	}
	return ""
}

func init() {
	setupCmd.Flags().StringVar(&setupShell, "shell", "", "which shell to install for (zsh or bash)")
	rootCmd.AddCommand(setupCmd)
}
