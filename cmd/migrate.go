package cmd

import (
	"fmt"
	"log"

	"VibeQ/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Database: %s %s:%s/%s\n", cfg.DBDriver, cfg.DBHost, cfg.DBPort, cfg.DBName)

		if err := db.ConnectGormDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(db.GormDB); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Migration complete.")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
