// Command server runs the sales progression API, the reward announcer and
// the scheduled jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimd54/sales-quest/internal/api/dashboard"
	progressionapi "github.com/aimd54/sales-quest/internal/api/progression"
	"github.com/aimd54/sales-quest/internal/auth"
	"github.com/aimd54/sales-quest/internal/cache"
	"github.com/aimd54/sales-quest/internal/catalog"
	"github.com/aimd54/sales-quest/internal/config"
	"github.com/aimd54/sales-quest/internal/mattermost"
	"github.com/aimd54/sales-quest/internal/metrics"
	"github.com/aimd54/sales-quest/internal/repository"
	"github.com/aimd54/sales-quest/internal/service/achievements"
	"github.com/aimd54/sales-quest/internal/service/leaderboard"
	"github.com/aimd54/sales-quest/internal/service/levels"
	"github.com/aimd54/sales-quest/internal/service/progression"
	"github.com/aimd54/sales-quest/internal/service/rewards"
	"github.com/aimd54/sales-quest/internal/service/scheduler"
	"github.com/aimd54/sales-quest/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.Postgres.RunMigrations {
		if err := repository.Migrate(cfg.Database.Postgres.URL(), log); err != nil {
			return err
		}
	}

	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis")
		}
	}()

	table, err := levels.FromConfig(cfg.Progression.LevelThresholds)
	if err != nil {
		return fmt.Errorf("invalid level table: %w", err)
	}
	location, err := cfg.Progression.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid progression timezone: %w", err)
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	achievementRepo := repository.NewAchievementRepository(db)
	progressionRepo := repository.NewProgressionRepository(db)
	progressionRepo.SetMaxRetries(cfg.Progression.MaxUpdateRetries)
	progressionRepo.OnConflict(metrics.RecordVersionConflict)

	// Services
	queue := rewards.NewQueue(0)
	progressionService := progression.NewService(progressionRepo, redisCache, queue, progression.Options{
		Table:      table,
		Activities: cfg.Progression.Activities,
		Location:   location,
		CacheTTL:   cfg.Progression.CacheExpiration(),
	}, log.Component("progression"))

	achievementService := achievements.NewService(
		achievementRepo, progressionRepo, progressionService, userRepo,
		redisCache, cfg.Progression.CacheExpiration(), log.Component("achievements"),
	)
	progressionService.SetAchievementChecker(achievementService)

	if _, err := catalog.LoadAndSeed(ctx, cfg.Progression.CatalogFile, achievementRepo, log.Component("catalog")); err != nil {
		return err
	}
	achievementService.RefreshHolderMetrics(ctx)

	leaderboardService := leaderboard.NewService(progressionRepo, achievementRepo, userRepo, log.Component("leaderboard"))

	notifier := mattermost.NewClient(&cfg.Mattermost, log.Component("mattermost"))
	if notifier.Enabled() {
		announcer := rewards.NewAnnouncer(notifier, userRepo, 0, log.Component("announcer"))
		announcer.Attach(queue)
		go announcer.Run(ctx)
	}

	sched := scheduler.NewService(cfg, achievementService, leaderboardService, notifier, log.Component("scheduler"))
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// HTTP
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		if err := db.Health(); err != nil {
			status = http.StatusServiceUnavailable
			body = gin.H{"status": "degraded", "database": err.Error()}
		} else if err := redisCache.Health(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = gin.H{"status": "degraded", "redis": err.Error()}
		}
		c.JSON(status, body)
	})

	if cfg.Metrics.Prometheus.Enabled {
		router.GET(cfg.Metrics.Prometheus.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(auth.NewMiddleware(&cfg.Auth, userRepo, log.Component("auth")).Handler())
	dashboard.NewHandler(achievementService, leaderboardService, progressionService, userRepo, log.Component("dashboard")).RegisterRoutes(api)
	progressionapi.NewHandler(progressionService, achievementService, log.Component("api")).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	return nil
}

// requestLogger logs one line per request.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
