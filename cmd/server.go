package cmd

import (
	"github.com/spf13/cobra"

	"syncfm/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the room server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.New(cfg).Run()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
