package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"syncfm/core/musicapi"
	"syncfm/core/player"
)

var (
	listenServerURL string
	listenRoomID    string
	listenUserName  string
)

// listenCmd joins a room as a headless follower. It exercises the same
// reconciliation a real player runs, with a simulated engine, which makes it
// useful for soak-testing a room from the command line.
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Join a room as a headless listener",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		engine := player.NewClockEngine(nil)
		resolver := musicapi.NewClient(cfg.MusicAPIURL)
		rec := player.NewReconciler(engine, resolver, nil)

		listener := player.NewListener(player.ListenerOptions{
			ServerURL: listenServerURL,
			RoomID:    listenRoomID,
			UserName:  listenUserName,
		}, rec)

		err := listener.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func init() {
	listenCmd.Flags().StringVar(&listenServerURL, "server", "ws://127.0.0.1:8080/ws", "websocket endpoint of the room server")
	listenCmd.Flags().StringVar(&listenRoomID, "room", "MAIN", "room id to join")
	listenCmd.Flags().StringVar(&listenUserName, "name", "listener", "display name")
	rootCmd.AddCommand(listenCmd)
}
