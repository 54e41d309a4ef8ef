package cmd

import (
	"github.com/spf13/cobra"

	"syncfm/config"
	"syncfm/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "syncfm",
	Short: "Synchronized music listening rooms",
	Long: `syncfm runs listening rooms where everyone hears the same track at the
same position. The server owns the playlist and the playback clock; clients
follow it and correct their own drift.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
