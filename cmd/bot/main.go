package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_funnel_bot/internal/api"
	"tg_funnel_bot/internal/config"
	"tg_funnel_bot/internal/domain"
	"tg_funnel_bot/internal/funnel"
	"tg_funnel_bot/internal/gateway"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/notify"
	"tg_funnel_bot/internal/relay"
	"tg_funnel_bot/internal/settings"
	"tg_funnel_bot/internal/store"
	"tg_funnel_bot/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	httpShutdownTimeout     = 10 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"mongo_db": cfg.MongoDB,
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		logger.WithError(err).Error("mongo connection error")
		fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	if err := mongoManager.EnsureBaseIndexes(indexCtx); err != nil {
		cancelIndexes()
		logger.WithError(err).Error("mongo index setup error")
		fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
		os.Exit(1)
	}
	cancelIndexes()

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	sessionRepo := domain.NewSessionRepository(mongoManager.Sessions())
	paymentRepo := domain.NewPaymentRepository(mongoManager.Payments())
	ticketRepo := domain.NewTicketRepository(mongoManager.Tickets())
	replyRepo := domain.NewReplyRepository(mongoManager.Replies())
	resolver := settings.NewResolver(mongoManager.Settings(), logger)
	statsProvider := store.NewStatsProvider(mongoManager.Sessions(), mongoManager.Payments(), mongoManager.Tickets())

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}
	botAPI := tgClient.Bot()

	messageRelay := relay.NewRelay(botAPI, ticketRepo, replyRepo, sessionRepo, resolver, logger)
	dispatcher := notify.NewDispatcher(botAPI, resolver, cfg.UploadDir, logger)
	paymentGateway := gateway.NewAdapter(resolver, nil, logger)

	router := telegram.NewRouter(
		sessionRepo,
		paymentRepo,
		paymentGateway,
		funnel.NewMachine(),
		dispatcher,
		messageRelay,
		botAPI,
		logger,
	)
	tgClient.AttachRouter(router)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	apiServer := api.NewServer(cfg.HTTPPort, api.Deps{
		Sessions: sessionRepo,
		Payments: paymentRepo,
		Tickets:  ticketRepo,
		Replies:  replyRepo,
		Config:   resolver,
		Relay:    messageRelay,
		Notifier: dispatcher,
		Stats:    statsProvider,
		Mongo:    mongoManager,
	}, cfg.UploadDir, cfg.PublicBaseURL, logger)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})
	apiDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	go func() {
		if err := apiServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("http server error")
		}
		close(apiDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	case <-apiDone:
		logger.WithField("event", "api_stopped_early").Warn("http server stopped before shutdown signal")
	}

	cancelTelegram()

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := apiServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown error")
	}
	cancelHTTP()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
