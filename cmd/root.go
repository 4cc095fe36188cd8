package cmd

import (
	"fmt"
	"os"

	"media-janitor/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "media-janitor",
	Short: "Media Janitor Service",
	Long: `Media Janitor keeps a media library tidy. It reconciles a catalog from
Radarr, Sonarr and Tautulli, evaluates deletion rules against it, and drives
every removal through a propose-approve-execute workflow.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format so CLI errors read naturally.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
