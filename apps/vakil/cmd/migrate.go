package cmd

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/localvakil/vakil/pkg/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
	Long:  `Reads DB_* variables and applies pending migrations, or rolls back the last group with --rollback.`,
	Run:   migrate,
}

var migrateRollback bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateRollback, "rollback", false, "Roll back the last migration group")
}

func migrate(cmd *cobra.Command, args []string) {
	if err := godotenv.Load(); err == nil {
		log.Println("✓ Loaded .env file")
	}

	ctx := context.Background()

	var cfg db.Config
	if err := envconfig.Process("DB", &cfg); err != nil {
		log.Fatalf("failed to process env vars: %v", err)
	}

	database, err := db.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if migrateRollback {
		if err := db.Rollback(ctx, database); err != nil {
			log.Fatalf("failed to roll back: %v", err)
		}
		return
	}

	if err := db.Migrate(ctx, database); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}
}
