package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Address string // Address для HTTP сервера (e.g., 0.0.0.0:8080)
	DBPath  string
	LogFile string

	JWTSecret        string
	OperatorPassword string

	// Alert bot (опционально)
	TelegramToken  string
	TelegramChatID int64

	// Терминальные соединения
	PollInterval      time.Duration // период опроса снапшот-файлов MT4/MT5
	StaleAfter        time.Duration // возраст снапшота, после которого терминал считается отключенным
	ReconnectInterval time.Duration // пауза между попытками переподключения pipe
	CommandTimeout    time.Duration

	// Защита
	BreakerThreshold int
	DailyLossPct     float64
}

// Load загружает конфигурацию из переменных окружения
func Load(logger *slog.Logger) *Config {
	address := os.Getenv("ADDRESS")
	if address == "" {
		address = "0.0.0.0:8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./hedge_copier.db"
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "./hedge_copier.log"
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "default-secret-change-me-in-production" // В продакшене использовать настоящий секрет!

		logger.Warn("⚠️  JWT_SECRET not set, using default (insecure!)")
	}

	operatorPassword := os.Getenv("OPERATOR_PASSWORD")
	if operatorPassword == "" {
		logger.Error("❌ OPERATOR_PASSWORD not set")
		os.Exit(1)
	}

	// Alert bot опционален: без токена алерты идут только в лог
	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	var telegramChatID int64
	if telegramToken != "" {
		raw := os.Getenv("TELEGRAM_CHAT_ID")
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Error("❌ TELEGRAM_CHAT_ID is not a valid chat id", slog.String("value", raw))
			os.Exit(1)
		}
		telegramChatID = parsed
	}

	return &Config{
		Address:          address,
		DBPath:           dbPath,
		LogFile:          logFile,
		JWTSecret:        jwtSecret,
		OperatorPassword: operatorPassword,
		TelegramToken:    telegramToken,
		TelegramChatID:   telegramChatID,

		PollInterval:      durationEnv(logger, "POLL_INTERVAL", time.Second),
		StaleAfter:        durationEnv(logger, "STALE_AFTER", 10*time.Second),
		ReconnectInterval: durationEnv(logger, "RECONNECT_INTERVAL", 3*time.Second),
		CommandTimeout:    durationEnv(logger, "COMMAND_TIMEOUT", 3*time.Second),

		BreakerThreshold: intEnv(logger, "BREAKER_THRESHOLD", 3),
		DailyLossPct:     floatEnv(logger, "DAILY_LOSS_PCT", 0.05),
	}
}

func durationEnv(logger *slog.Logger, name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		logger.Warn("⚠️  Invalid duration, using default",
			slog.String("name", name), slog.String("value", raw), slog.Duration("default", def))
		return def
	}

	return parsed
}

func intEnv(logger *slog.Logger, name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		logger.Warn("⚠️  Invalid integer, using default",
			slog.String("name", name), slog.String("value", raw), slog.Int("default", def))
		return def
	}

	return parsed
}

func floatEnv(logger *slog.Logger, name string, def float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 || parsed > 1 {
		logger.Warn("⚠️  Invalid fraction, using default",
			slog.String("name", name), slog.String("value", raw), slog.Float64("default", def))
		return def
	}

	return parsed
}
