package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hedge_copier/internal/api"
	"hedge_copier/internal/auth"
	"hedge_copier/internal/config"
	"hedge_copier/internal/copier"
	"hedge_copier/internal/diff"
	"hedge_copier/internal/identity"
	"hedge_copier/internal/notify"
	"hedge_copier/internal/terminal"
	"hedge_copier/storage"

	"github.com/lmittmann/tint"
)

func main() {
	// Bootstrap-логгер для загрузки конфигурации: файл логов еще не известен
	bootstrapLogger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))

	cfg := config.Load(bootstrapLogger)

	// Конфигурация slog для вывода в файл и stdout
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatal("Failed to open log file:", err)
	}
	defer logFile.Close()

	// Pretty handler для stdout с цветами
	prettyHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen, // "3:04PM"
		AddSource:  false,
		NoColor:    false,
	})

	// Обычный текстовый handler для файла
	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	// Мультиплексируем логи в оба handler'а
	logger := slog.New(&multiHandler{
		handlers: []slog.Handler{prettyHandler, fileHandler},
	})

	logger.Info("=== Hedge Copier ===")

	// Инициализация хранилища
	store, err := storage.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	// Alert bot опционален: без токена алерты идут только в лог
	alertBot, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
	if err != nil {
		logger.Error("Failed to initialize alert bot", slog.Any("error", err))
		os.Exit(1)
	}

	authService, err := auth.NewService(cfg.JWTSecret, cfg.OperatorPassword, 24*time.Hour)
	if err != nil {
		logger.Error("Failed to initialize auth service", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Сборка конвейера: терминалы → дифференцер → движок
	manager := terminal.NewManager(ctx, terminal.Options{
		PollInterval:      cfg.PollInterval,
		StaleAfter:        cfg.StaleAfter,
		ReconnectInterval: cfg.ReconnectInterval,
		CommandTimeout:    cfg.CommandTimeout,
		Logger:            logger,
	}, logger)

	idmap := identity.NewMap(logger)
	differ := diff.New(nil, logger)
	daily := copier.NewDailyLossMonitor(cfg.DailyLossPct, store, logger)
	aggregator := copier.NewAggregator(store, logger)

	engine := copier.New(manager, idmap, differ, daily, aggregator, alertBot, store, copier.Options{
		BreakerThreshold: cfg.BreakerThreshold,
		CommandTimeout:   cfg.CommandTimeout,
	}, logger)

	go engine.Run(ctx, manager.Out())

	dispatcher := copier.NewDispatcher(idmap, manager, logger)

	handler := api.New(engine, dispatcher, manager, authService, logger)

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("🚀 Starting API server", slog.String("address", cfg.Address))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown по SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down API server", slog.Any("error", err))
	}

	cancel()

	if err := manager.Close(5 * time.Second); err != nil {
		logger.Error("Failed to close terminals", slog.Any("error", err))
	}

	logger.Info("Shutdown complete")
}

// multiHandler отправляет логи в несколько handlers одновременно
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}

	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, record); err != nil {
			return err
		}
	}

	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}

	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}

	return &multiHandler{handlers: handlers}
}
