package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"VibeQ/client/api"
	"VibeQ/core/errs"
	"VibeQ/core/identity"
	"VibeQ/core/locator"

	"github.com/spf13/cobra"
)

var (
	serverURL      string
	trackTitle     string
	trackPerformer string
	trackThumbnail string
	trackDuration  int
)

func newClient() *api.Client {
	url := serverURL
	if url == "" {
		url = cfg.ServerURL
	}
	return api.New(url)
}

func loadToken() string {
	token, err := identity.LoadOrCreateToken(cfg.IdentityFile)
	if err != nil {
		log.Fatalf("Cannot load identity: %v", err)
	}
	return token
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and edit the shared queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tracks in play order",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := requestContext()
		defer cancel()

		client := newClient()
		tracks, err := client.ListTracks(ctx)
		if err != nil {
			log.Fatalf("Failed to list tracks: %v", err)
		}
		current, err := client.NowPlaying(ctx)
		if err != nil {
			log.Printf("Failed to read now playing: %v", err)
		}

		if len(tracks) == 0 {
			fmt.Println("Queue is empty.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\t#\tID\tTITLE\tPERFORMER\tSOURCE\tADDED BY")
		for i := len(tracks) - 1; i >= 0; i-- {
			t := tracks[i]
			marker := ""
			if current != nil && *current == t.ID {
				marker = ">"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				marker, len(tracks)-i, t.ID, t.Title, t.Performer, t.SourceKind, t.OwnerDisplayName)
		}
		_ = w.Flush()
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <locator>",
	Short: "Append a track",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, ok := locator.DetectSourceKind(args[0])
		if !ok {
			log.Fatalf("Unsupported link: %s", args[0])
		}
		title := trackTitle
		if title == "" {
			title = args[0]
		}

		req := api.AppendRequest{
			Title:      title,
			Performer:  trackPerformer,
			SourceKind: kind,
			Locator:    args[0],
			Thumbnail:  trackThumbnail,
			Identity:   loadToken(),
		}
		if trackDuration > 0 {
			req.DurationSeconds = &trackDuration
		}

		ctx, cancel := requestContext()
		defer cancel()

		entry, err := newClient().AppendTrack(ctx, req)
		if err != nil {
			if rl, ok := errs.AsRateLimit(err); ok {
				fmt.Println(rl.Error())
				os.Exit(2)
			}
			log.Fatalf("Failed to add track: %v", err)
		}
		fmt.Printf("Added %q as %s (%s).\n", entry.Title, entry.OwnerDisplayName, entry.ID)
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <track-id>",
	Short: "Remove one of your tracks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := requestContext()
		defer cancel()

		err := newClient().RemoveTrack(ctx, args[0], loadToken())
		switch {
		case err == nil:
			fmt.Println("Removed.")
		case errors.Is(err, errs.ErrForbidden):
			log.Fatal("You can only remove tracks you added.")
		case errors.Is(err, errs.ErrNotFound):
			log.Fatal("No such track.")
		default:
			log.Fatalf("Failed to remove track: %v", err)
		}
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show this client's identity",
	Run: func(cmd *cobra.Command, args []string) {
		token := loadToken()
		fmt.Printf("%s (%s)\n", identity.ResolveDisplayName(token), token)
	},
}

func init() {
	queueCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (defaults to VIBEQ_SERVER)")

	queueAddCmd.Flags().StringVarP(&trackTitle, "title", "t", "", "track title")
	queueAddCmd.Flags().StringVarP(&trackPerformer, "performer", "p", "", "performer")
	queueAddCmd.Flags().StringVar(&trackThumbnail, "thumbnail", "", "thumbnail URL")
	queueAddCmd.Flags().IntVarP(&trackDuration, "duration", "d", 0, "duration in seconds")

	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueRemoveCmd)
	rootCmd.AddCommand(queueCmd, whoamiCmd)

	queueCmd.Example = `  # Show the queue, oldest first
  vibeq queue list

  # Add a track
  vibeq queue add "https://www.youtube.com/watch?v=dQw4w9WgXcQ" -t "Never Gonna Give You Up" -p "Rick Astley"

  # Remove a track you added
  vibeq queue remove 3f1c...`
}
