package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"remindbot/internal/ai"
	"remindbot/internal/bot"
	"remindbot/internal/bot/handlers"
	"remindbot/internal/config"
	"remindbot/internal/database"
	"remindbot/internal/repository"
	"remindbot/internal/scheduler"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer db.Close()
	logger.Info().Msg("connected to database")

	if err := db.Migrate(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		logger.Info().Str("model", cfg.AIModel).Msg("ai client initialized")
	} else {
		logger.Warn().Msg("ai client not configured, natural language input disabled")
	}

	// The client timeout backstops connections abandoned by the notifier;
	// it must stay above the 60s long-poll window of GetUpdates.
	httpClient := &http.Client{Timeout: 90 * time.Second}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("create telegram api")
	}

	reminderRepo := repository.NewReminderRepository(db, logger)
	repos := &handlers.Repositories{
		Reminder: reminderRepo,
		Event:    repository.NewEventRepository(db),
		Response: repository.NewResponseRepository(db),
	}

	notifier := bot.NewNotifier(api, logger)
	sched := scheduler.New(reminderRepo, notifier, scheduler.Config{
		ScanInterval:  cfg.ScanInterval,
		RecoveryGrace: cfg.RecoveryGrace,
		OverduePolicy: cfg.OverduePolicy,
		NotifyTimeout: cfg.NotifyTimeout,
	}, logger)
	go sched.Run(ctx)

	b := bot.New(api, repos, aiClient, sched, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutting down")
		cancel()
	}()

	logger.Info().Msg("starting bot")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
}
