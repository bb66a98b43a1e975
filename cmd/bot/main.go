package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"subscription_reminder_bot/internal/app"
	domaindelivery "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/infra/config"
	idb "subscription_reminder_bot/internal/infra/database"
	"subscription_reminder_bot/internal/infra/delivery"
	"subscription_reminder_bot/internal/infra/httpapi"
	"subscription_reminder_bot/internal/infra/logger"
	"subscription_reminder_bot/internal/infra/metrics"
	"subscription_reminder_bot/internal/infra/paidlink"
	"subscription_reminder_bot/internal/infra/scheduler"
	"subscription_reminder_bot/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	_ "time/tzdata" // Subscription timezones must resolve on minimal images
)

const (
	sweepTimeout    = 2 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Subscription Reminder Bot starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	mainLogger.Info("Database connection established successfully.")

	// Initialize Repositories
	subscriptionRepo := idb.NewPostgresSubscriptionRepository(db)
	userRepo := idb.NewPostgresUserRepository(db)

	registry := prometheus.NewRegistry()
	reminderMetrics := metrics.NewReminderMetrics(registry)
	signer := paidlink.NewSigner(cfg.SubscriptionJWTSecret, cfg.PublicURL)

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.Component("telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Bot handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	// Delivery channels
	poster := delivery.NewPoster(cfg.WebhookRatePerSec, cfg.DeliveryTimeout, logger.Component("http_delivery"))
	senders := []domaindelivery.Sender{
		delivery.NewTelegramPushSender(telegram.NewTelebotAdapter(bot)),
		delivery.NewWebhookSender(poster),
		delivery.NewNtfySender(poster),
		delivery.NewDiscordSender(poster),
		delivery.NewSlackSender(poster),
	}
	if cfg.EmailEnabled() {
		dialer := delivery.NewSMTPDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		senders = append(senders, delivery.NewEmailSender(dialer, cfg.SMTPFrom))
		mainLogger.WithField("smtp_host", cfg.SMTPHost).Info("Email delivery enabled.")
	} else {
		mainLogger.Warn("SMTP is not configured, EMAIL reminders will be counted as undeliverable.")
	}

	// Services
	subscriptionService := app.NewSubscriptionService(subscriptionRepo, userRepo, logrus.NewEntry(logger.Log))
	reminderService := app.NewReminderService(
		subscriptionRepo,
		userRepo,
		senders,
		signer,
		reminderMetrics,
		logger.Component("reminder_service"),
		cfg.RepeatReminderInterval,
		cfg.PublicURL,
	)

	// Initialize ReminderScheduler
	reminderScheduler := scheduler.NewReminderScheduler(reminderService, logger.Component("scheduler"), cfg.CronSpecSweep, sweepTimeout)
	if err := reminderScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start reminder scheduler")
	}

	// Register Handlers
	botLogger := logger.Component("telegram")
	telegram.RegisterBotCommands(ctx, bot, userRepo, botLogger)
	telegram.RegisterSubscriptionHandlers(ctx, bot, subscriptionService, userRepo, cfg.UpcomingHorizon, botLogger)
	telegram.RegisterSubscriptionEditHandlers(ctx, bot, subscriptionService, userRepo, botLogger)
	telegram.RegisterPaymentCallbackHandlers(ctx, bot, subscriptionService, userRepo, botLogger)
	mainLogger.Info("Telegram handlers registered.")

	// HTTP API
	handler := httpapi.NewHandler(subscriptionService, signer, reminderScheduler, reminderMetrics, cfg.CronSecret, logger.Component("http"))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	mainLogger.Info("Application setup complete. Bot and Scheduler are running.")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	bot.Stop()
	reminderScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
}
