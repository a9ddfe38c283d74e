package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VibeQ/client/media"
	"VibeQ/client/player"
	"VibeQ/client/syncloop"
	"VibeQ/logger"

	"github.com/spf13/cobra"
)

var (
	simulatedLength time.Duration
	statusInterval  time.Duration
	noWatch         bool
)

var playerCmd = &cobra.Command{
	Use:   "player",
	Short: "Run a headless playback client",
	Long: `Follow the shared queue and play through it on a simulated player,
publishing the now-playing pointer as tracks change.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := newClient()
		token := loadToken()

		loop := syncloop.New(client, token, cfg.SyncInterval)
		driver := player.New(player.Options{
			Provider:         &media.SimulatedProvider{Duration: simulatedLength},
			Pointer:          loop,
			SettleDelay:      cfg.SettleDelay,
			PositionInterval: cfg.PositionInterval,
			Context:          ctx,
		})
		defer driver.Close()
		loop.Subscribe(driver.OnView)

		go func() {
			_ = loop.Run(ctx)
		}()
		if !noWatch {
			go func() {
				_ = loop.Watch(ctx, client.EventsURL())
			}()
		}

		logger.Info("Player started", logger.String("identity", token))

		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Player stopped")
				return
			case <-ticker.C:
				snap := driver.Snapshot()
				title := ""
				if snap.Track != nil {
					title = snap.Track.Title
				}
				logger.Info("Player status",
					logger.String("state", snap.State.String()),
					logger.String("position", snap.Label()),
					logger.String("title", title),
					logger.Float64("elapsed", snap.Position),
					logger.Float64("duration", snap.Duration))
			}
		}
	},
}

func init() {
	playerCmd.Flags().StringVar(&serverURL, "server", "", "server URL (defaults to VIBEQ_SERVER)")
	playerCmd.Flags().DurationVar(&simulatedLength, "track-length", 3*time.Minute, "length of every simulated track")
	playerCmd.Flags().DurationVar(&statusInterval, "status-interval", 5*time.Second, "how often to log player status")
	playerCmd.Flags().BoolVar(&noWatch, "no-watch", false, "poll only, without the event stream")
	rootCmd.AddCommand(playerCmd)
}
