package cmd

import (
	"VibeQ/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the queue server",
	Long:  `Start the HTTP server that stores the shared queue and the now-playing pointer and pushes change events to clients.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
