package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"puzzletrainer/internal/config"
	"puzzletrainer/internal/database"
	"puzzletrainer/internal/event"
	"puzzletrainer/internal/handlers"
	"puzzletrainer/internal/logger"
	"puzzletrainer/internal/repository"
	"puzzletrainer/internal/service"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 1. Initialize our external connections
	ctx := context.Background()
	stores, err := database.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open stores", "error", err)
	}
	defer stores.Close()

	publisher, err := event.NewEventPublisher(cfg.RabbitMQURI, cfg.RabbitMQExchange, log)
	if err != nil {
		log.Fatal("failed to init event publisher", "error", err)
	}
	defer publisher.Close()

	// 2. Initialize repos, services, and handlers
	cycleRepo := repository.NewCycleRepository(stores.DB)
	ratingRepo := repository.NewRatingRepository(stores.DB)
	retryRepo := repository.NewRetryRepository(stores.DB)
	progressRepo := repository.NewProgressRepository(stores.DB)
	themeRepo := repository.NewThemeRepository(stores.DB)
	leaderboardRepo := repository.NewLeaderboardRepository(stores.Redis)
	puzzles := repository.NewCachedPuzzleStore(
		repository.NewPuzzleRepository(stores.Corpus),
		repository.NewPuzzleCacheRepository(stores.Redis, cfg.PuzzleCacheTTL),
		log,
	)

	scheduler := service.NewCycleScheduler(stores.DB, cycleRepo, ratingRepo, cfg.PriorityWeights(), cfg.DefaultCycleTarget, log)
	ratingService := service.NewRatingService(ratingRepo, themeRepo, log)
	leaderboardService := service.NewLeaderboardService(ratingRepo, leaderboardRepo, log)
	sessionService := service.NewSessionService(service.SessionDeps{
		DB:          stores.DB,
		Puzzles:     puzzles,
		Exercises:   repository.NewExerciseRepository(stores.DB),
		Retries:     retryRepo,
		Cycles:      cycleRepo,
		Progress:    progressRepo,
		Scheduler:   scheduler,
		Ratings:     ratingService,
		Leaderboard: leaderboardRepo,
		Publisher:   publisher,
		Rand:        service.NewRand(time.Now().UnixNano()),
		Log:         log,
	}, service.SessionConfig{
		RetryProbability: cfg.RetryProbability,
		BandSteps:        cfg.RatingBandSteps,
		StoreTimeout:     cfg.PuzzleStoreTimeout,
	})
	trainingService := service.NewTrainingService(stores.DB, cycleRepo, repository.NewUserDataRepository(stores.DB),
		scheduler, ratingService, leaderboardService, cfg.DefaultCycleTarget, nil, log)
	progressService := service.NewProgressService(cycleRepo, ratingRepo, retryRepo, progressRepo, leaderboardService, nil)
	themeService := service.NewThemeService(stores.DB, themeRepo)

	// 3. Warm the rating leaderboard from the database
	if n, err := leaderboardService.Rebuild(ctx); err != nil {
		log.Warn("leaderboard rebuild failed", "error", err)
	} else {
		log.Info("leaderboard rebuilt", "users", n)
	}

	trainerHandlers := handlers.NewTrainerHandlers(sessionService, trainingService, progressService, themeService, leaderboardService, log)

	// 4. Create a new Fiber instance
	app := fiber.New(fiber.Config{
		AppName: "PuzzleTrainer_v1",
	})

	// 5. Middleware for better observability
	app.Use(fiberlogger.New()) // Logs every request to console
	app.Use(recover.New())     // Prevents the app from crashing on panics
	app.Use(cors.New())

	// 5.1 Simple middleware to track app-side latency
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start).Microseconds()
		c.Response().Header.Set("X-App-Latency-US", fmt.Sprintf("%d", duration))
		return err
	})

	// 6. Route Definitions
	trainerHandlers.Register(app, handlers.NewRateLimiter(cfg.RateLimitMax))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// 7. Start the server
	go func() {
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			log.Fatal("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
