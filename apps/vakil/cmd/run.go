package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/localvakil/vakil/pkg/db"
	"github.com/localvakil/vakil/pkg/kv"
	"github.com/localvakil/vakil/pkg/vapi"
	"github.com/localvakil/vakil/pkg/vapi/config"
	"github.com/localvakil/vakil/pkg/vapi/routes"
	"github.com/localvakil/vakil/pkg/vapi/services"
	"github.com/localvakil/vakil/pkg/vlog"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the HTTP server",
	Long: `Loads configuration from the environment (and .env in development),
connects to the database and the session store, and serves the API.`,
	Run: run,
}

var runMigrate bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "Apply pending migrations before serving")
}

func run(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	cfg, err := config.ValidateEnv()
	if err != nil {
		log.Fatalf("❌ %v\n", err)
	}

	cfg.Print(log.Printf)
	logger := vlog.ForEnvironment(cfg.Environment)

	database, err := db.New(ctx, cfg.Database())
	if err != nil {
		logger.Fatal("failed to initialize database", "error", err)
	}
	defer database.Close()

	if runMigrate {
		if err := db.Migrate(ctx, database); err != nil {
			logger.Fatal("failed to migrate", "error", err)
		}
	}

	var store kv.Store
	if cfg.ValkeyAddr != "" {
		store, err = kv.NewValkeyStore(ctx, kv.ValkeyConfig{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			DB:       cfg.ValkeyDB,
			Prefix:   "vakil:",
		})
		if err != nil {
			logger.Fatal("failed to connect to valkey", "addr", cfg.ValkeyAddr, "error", err)
		}
	} else {
		logger.Warn("VALKEY_ADDR not set, sessions are kept in memory")
		store = kv.NewMemoryStore()
	}
	defer store.Close()

	svcs, err := services.NewServices(cfg, database, store, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", "error", err)
	}

	// Refuse to start without a usable encryption key.
	if err := svcs.Keys.Check(); err != nil {
		logger.Fatal("encryption key unavailable", "path", cfg.EncryptionKeyPath, "error", err)
	}

	api := vapi.NewApi(svcs.Sessions.CookieName(), svcs.Sessions.Middleware)
	routes.RegisterRoutes(api.Api, svcs)

	addr := fmt.Sprintf(":%s", cfg.Port)

	log.Printf("🚀 Vakil starting on %s\n", addr)
	log.Printf("📚 OpenAPI docs: %s/docs\n", cfg.BaseURL)
	log.Printf("📄 OpenAPI spec: %s/openapi.json\n", cfg.BaseURL)
	if svcs.Identity.Configured() {
		log.Printf("🔐 Google login: %s/auth/google (callback %s)\n", cfg.BaseURL, cfg.RedirectURI())
	}

	if err := http.ListenAndServe(addr, api.Router); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
