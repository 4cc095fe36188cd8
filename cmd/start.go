package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"media-janitor/core/config"
	"media-janitor/core/database"
	"media-janitor/core/loader"
	"media-janitor/core/logger"
	"media-janitor/core/middleware/auth"
	"media-janitor/core/middleware/rayid"
	"media-janitor/core/remote"
	"media-janitor/core/storage"

	"media-janitor/feature/catalog"
	catalogmodels "media-janitor/feature/catalog/models"
	"media-janitor/feature/deletion"
	deletionmodels "media-janitor/feature/deletion/models"
	"media-janitor/feature/rules"
	rulesmodels "media-janitor/feature/rules/models"
	"media-janitor/feature/sync"
	syncmodels "media-janitor/feature/sync/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "media-janitor/docs/swagger"
)

// @title Media Janitor API
// @version 1.0
// @description API for rule-driven media library cleanup.
// @host localhost:8080
// @BasePath /

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the media janitor server",
	Long:  `Starts the HTTP server, connects the configured services and arms the schedulers.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := migrate(db); err != nil {
			logg.Fatal("Failed to migrate database", zap.Error(err))
		}

		// 4. Remote Clients (nil when unconfigured)
		radarr := remote.NewRadarr(cfg.Radarr, logg)
		sonarr := remote.NewSonarr(cfg.Sonarr, logg)
		plex := remote.NewPlex(cfg.Plex, logg)
		tautulli := remote.NewTautulli(cfg.Tautulli, logg)
		logg.Info("Remote services",
			zap.Bool("radarr", radarr != nil),
			zap.Bool("sonarr", sonarr != nil),
			zap.Bool("plex", plex != nil),
			zap.Bool("tautulli", tautulli != nil),
		)

		// 5. Optional Archive Storage
		var archive storage.Client
		if cfg.Storage.Configured() {
			archive, err = storage.NewClient(cfg.Storage)
			if err != nil {
				logg.Fatal("Failed to create storage client", zap.Error(err))
			}
		}

		// 6. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 7. Features
		catalogFeature := catalog.NewFeature(db, cfg.Janitor.UpsertBatchSize, logg)
		deletionFeature := deletion.NewFeature(db, radarr, sonarr, plex, cfg.Janitor.PlexSection, archive, cfg.Storage.Bucket, logg)
		rulesFeature := rules.NewFeature(db, catalogFeature.Store(), deletionFeature.Service().Workflow(), logg)
		syncFeature := sync.NewFeature(db, catalogFeature.Store(), deletionFeature.Service().Workflow(), radarr, sonarr, tautulli, cfg.Janitor.SourceConcurrency, logg)

		mgr := loader.NewManager()
		mgr.Register(catalogFeature)
		mgr.Register(deletionFeature)
		mgr.Register(rulesFeature)
		mgr.Register(syncFeature)

		// Middleware Registration
		// 1. RayID (Must be first to trace everything)
		app.Use(rayid.New())

		// 2. Logging Middleware (Zap + RayID)
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// 2.5 Swagger Documentation (Public)
		app.Get("/swagger/*", swagger.HandlerDefault)

		// 3. Auth (Protect API)
		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

		// Load Features
		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 8. Schedulers
		if err := rulesFeature.Service().StartSchedules(context.Background()); err != nil {
			logg.Error("Failed to arm rule schedules", zap.Error(err))
		}
		if cfg.Janitor.SyncIntervalMinutes > 0 {
			syncFeature.Engine().StartSchedule(cfg.Janitor.SyncIntervalMinutes)
			logg.Info("Sync schedule armed", zap.Int("interval_minutes", cfg.Janitor.SyncIntervalMinutes))
		}
		if cfg.Janitor.ExecutionIntervalMinutes > 0 {
			deletionFeature.Service().StartSchedule(cfg.Janitor.ExecutionIntervalMinutes)
			logg.Info("Execution schedule armed", zap.Int("interval_minutes", cfg.Janitor.ExecutionIntervalMinutes))
		}

		// 9. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 10. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		syncFeature.Engine().StopSchedule()
		deletionFeature.Service().StopSchedule()
		rulesFeature.Service().StopSchedules()
		_ = app.Shutdown()
	},
}

// migrate creates or updates every table the features own.
func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&catalogmodels.Entry{},
		&rulesmodels.Rule{},
		&deletionmodels.Request{},
		&deletionmodels.HistoryRecord{},
		&syncmodels.Run{},
	)
}

func init() {
	RootCmd.AddCommand(startCmd)
}
