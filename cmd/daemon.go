package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/shellguard/internal/backend"
	"github.com/fakeyudi/shellguard/internal/daemon"
	"github.com/fakeyudi/shellguard/internal/learning"
	"github.com/fakeyudi/shellguard/internal/redact"
)

var daemonDebug bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the supervisory daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := buildLogger(daemonDebug)
		if err != nil {
			return err
		}
		defer log.Sync()
		// The startup environment is diagnostic-only and passes through the
		// secret-bearing-variable filter before it can reach the log.
		log.Debug("startup environment", zap.Strings("env", redact.FilterEnv(os.Environ())))

		var store *learning.Store
		if GetConfig().LearningEnabled {
			path, err := learningPath()
			if err != nil {
				return err
			}
			store, err = learning.Open(path)
			if err != nil {
				return fmt.Errorf("opening learning store: %w", err)
			}
			defer store.Close()
		}

		srv, err := daemon.New(GetConfig(), log, store, backend.Disabled{})
		if err != nil {
			return fmt.Errorf("building daemon: %w", err)
		}

		sockPath, err := daemon.SocketPath(GetConfig().SocketPath)
		if err != nil {
			return err
		}
		ln, err := daemon.Listen(sockPath)
		if err != nil {
			return err
		}
		log.Info("daemon listening", zap.String("socket", sockPath))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = srv.Run(ctx, ln)
		os.Remove(sockPath)
		log.Info("daemon stopped")
		return err
	},
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func learningPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "shellguard", "learned.db"), nil
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonDebug, "debug", false, "log at debug level, human-readable")
	rootCmd.AddCommand(daemonCmd)
}
