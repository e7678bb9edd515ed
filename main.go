package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/mindmentor/internal/ai"
	"github.com/example/mindmentor/internal/analytics"
	"github.com/example/mindmentor/internal/api"
	"github.com/example/mindmentor/internal/bot"
	"github.com/example/mindmentor/internal/cache"
	"github.com/example/mindmentor/internal/config"
	"github.com/example/mindmentor/internal/database"
	"github.com/example/mindmentor/internal/excel"
	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/internal/quiz"
	"github.com/example/mindmentor/internal/scheduler"
	"github.com/example/mindmentor/pkg/models"
)

func main() {
	envFile := flag.String("env", ".env", "environment file to load before reading variables")
	importTopics := flag.String("import-topics", "", "import the topic catalog from an xlsx or csv file and exit")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger, *importTopics); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, importPath string) error {
	// Cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBType, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	topics := database.NewTopicRepository(db)
	if importPath != "" {
		return runImport(ctx, importPath, topics, logger)
	}

	store, closeStore, err := openCache(ctx, cfg, database.NewCacheRepository(db))
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		return err
	}
	client := ai.NewClient(store, provider, ai.Options{
		Models: ai.ModelCatalog{
			models.TierEconomy:  cfg.ModelEconomy,
			models.TierStandard: cfg.ModelStandard,
			models.TierPremium:  cfg.ModelPremium,
		},
		Timeout:     cfg.ProviderTimeout,
		Attempts:    cfg.ProviderAttempts,
		BackoffBase: cfg.ProviderBackoff,
		Logger:      logger.With("component", "ai"),
	})

	model := mastery.NewModel(database.NewMasteryRepository(db), nil, logger.With("component", "mastery"))
	plans := scheduler.NewService(topics, database.NewScheduleRepository(db), model, logger.With("component", "scheduler"))
	attempts := database.NewAttemptRepository(db)
	quizzes := quiz.NewService(client, topics, model, attempts, logger.With("component", "quiz"))
	quizzes.Numeric = quiz.NumericPolicy{
		FullTolerance:    cfg.NumericFullTolerance,
		PartialTolerance: cfg.NumericPartialTolerance,
		PartialCredit:    cfg.NumericPartialCredit,
	}
	prefs := database.NewPreferencesRepository(db)
	insights := analytics.NewService(model, topics, attempts, logger.With("component", "analytics"))

	var notifier scheduler.Notifier
	var tg *bot.Bot
	if cfg.TelegramToken != "" {
		botCfg := bot.DefaultConfig()
		botCfg.DefaultMinutes = cfg.DefaultDailyMinutes
		botCfg.PlanDays = cfg.PlanDays
		botCfg.AdminUserIDs = cfg.AdminUserIDs
		tg, err = bot.New(cfg.TelegramToken, plans, prefs, store, botCfg, logger.With("component", "bot"))
		if err != nil {
			return err
		}
		notifier = tg
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, bot disabled")
	}

	if cfg.EnableScheduler {
		jobs := scheduler.NewJobs(plans, prefs, notifier, store, scheduler.JobsConfig{
			PlanDays:       cfg.PlanDays,
			DefaultMinutes: cfg.DefaultDailyMinutes,
			Logger:         logger.With("component", "jobs"),
		})
		if err := jobs.Start(); err != nil {
			return err
		}
		defer jobs.Stop()
	}

	handler := api.NewHandler(api.Deps{
		Generator: client,
		Cache:     store,
		Mastery:   model,
		Plans:     plans,
		Quiz:      quizzes,
		Analytics: insights,
		Attempts:  attempts,
		Logger:    logger.With("component", "http"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	if tg != nil {
		go func() {
			if err := tg.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
		logger.Error("component failed, shutting down", "error", err)
	}

	// Даем время на graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown", "error", serr)
	}
	return err
}

// openCache picks the response store backend
func openCache(ctx context.Context, cfg *config.Config, sqlStore cache.Store) (cache.Store, func(), error) {
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rs, err := cache.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() { rs.Close() }, nil
	case config.CacheMemory:
		return cache.NewMemoryStore(), func() {}, nil
	default:
		return sqlStore, func() {}, nil
	}
}

func runImport(ctx context.Context, path string, repo excel.TopicUpserter, logger *slog.Logger) error {
	importCfg := excel.DefaultImportConfig()
	importCfg.FilePath = path
	res, err := excel.ImportTopics(ctx, importCfg, repo)
	if err != nil {
		return err
	}
	for _, msg := range res.Errors {
		logger.Warn("import row skipped", "detail", msg)
	}
	logger.Info("topics imported", "file", path, "rows", res.TotalProcessed, "imported", res.Imported, "skipped", res.Skipped)
	return nil
}
