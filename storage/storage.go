// Package storage - SQLite-персистентность движка: хвост журнала активности,
// состояние дневных лимитов и снимки статистики копирования, переживающие
// рестарт процесса.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"hedge_copier/internal/models"

	_ "modernc.org/sqlite"
)

// Storage управляет базой данных
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// New создает новый экземпляр Storage
func New(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	storage := &Storage{
		db:     db,
		logger: logger,
	}

	if err := storage.init(); err != nil {
		return nil, err
	}

	return storage, nil
}

// init инициализирует таблицы БД
func (s *Storage) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_log (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			follower_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			symbol TEXT,
			action TEXT,
			volume REAL,
			price REAL,
			latency_ms INTEGER,
			status TEXT NOT NULL,
			error TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity_log(timestamp);

		CREATE TABLE IF NOT EXISTS daily_limits (
			account_id TEXT PRIMARY KEY,
			server_day TEXT NOT NULL,
			start_balance REAL NOT NULL,
			current_equity REAL NOT NULL,
			high_water_mark REAL NOT NULL,
			breached INTEGER DEFAULT 0,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS group_stats (
			group_id TEXT PRIMARY KEY,
			realized_pnl REAL DEFAULT 0,
			failed_copies INTEGER DEFAULT 0,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS follower_stats (
			follower_id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL,
			stats_day TEXT,
			attempts INTEGER DEFAULT 0,
			successes INTEGER DEFAULT 0,
			trades_today INTEGER DEFAULT 0,
			trades_total INTEGER DEFAULT 0,
			total_profit REAL DEFAULT 0,
			avg_latency_ms REAL DEFAULT 0,
			failed_copies INTEGER DEFAULT 0,
			last_copy_at DATETIME,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	s.logger.Info("✅ Database initialized")

	return nil
}

// AddActivity сохраняет запись журнала и обрезает историю до keep записей
func (s *Storage) AddActivity(entry models.ActivityEntry, keep int) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO activity_log
			(id, group_id, follower_id, timestamp, event_type, symbol, action, volume, price, latency_ms, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.GroupID, entry.FollowerID, entry.Timestamp, string(entry.EventType),
		entry.Symbol, entry.Action, entry.Volume, entry.Price, entry.LatencyMs, string(entry.Status), entry.Error)
	if err != nil {
		return fmt.Errorf("failed to add activity entry: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM activity_log
		WHERE id NOT IN (SELECT id FROM activity_log ORDER BY timestamp DESC LIMIT ?)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune activity log: %w", err)
	}

	return nil
}

// RecentActivity возвращает последние limit записей, свежие первыми
func (s *Storage) RecentActivity(limit int) ([]models.ActivityEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, follower_id, timestamp, event_type,
		       COALESCE(symbol, ''), COALESCE(action, ''), COALESCE(volume, 0),
		       COALESCE(price, 0), COALESCE(latency_ms, 0), status, COALESCE(error, '')
		FROM activity_log
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActivityEntry
	for rows.Next() {
		var e models.ActivityEntry
		var eventType, status string

		err := rows.Scan(&e.ID, &e.GroupID, &e.FollowerID, &e.Timestamp, &eventType,
			&e.Symbol, &e.Action, &e.Volume, &e.Price, &e.LatencyMs, &status, &e.Error)
		if err != nil {
			continue
		}

		e.EventType = models.PositionEventType(eventType)
		e.Status = models.ActivityStatus(status)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SaveDailyLimit сохраняет состояние дневного лимита аккаунта
func (s *Storage) SaveDailyLimit(st models.DailyLimitState) error {
	breached := 0
	if st.Breached {
		breached = 1
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daily_limits
			(account_id, server_day, start_balance, current_equity, high_water_mark, breached, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, st.AccountID, st.ServerDay, st.DailyStartBalance, st.CurrentEquity, st.HighWaterMark, breached, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save daily limit: %w", err)
	}

	return nil
}

// LoadDailyLimits загружает состояния дневных лимитов всех аккаунтов
func (s *Storage) LoadDailyLimits() (map[string]models.DailyLimitState, error) {
	rows, err := s.db.Query(`
		SELECT account_id, server_day, start_balance, current_equity, high_water_mark,
		       COALESCE(breached, 0), updated_at
		FROM daily_limits
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.DailyLimitState)
	for rows.Next() {
		var st models.DailyLimitState
		var breached int
		var updatedAt time.Time

		err := rows.Scan(&st.AccountID, &st.ServerDay, &st.DailyStartBalance,
			&st.CurrentEquity, &st.HighWaterMark, &breached, &updatedAt)
		if err != nil {
			continue
		}

		st.Breached = breached == 1
		st.UpdatedAt = updatedAt
		out[st.AccountID] = st
	}

	return out, rows.Err()
}

// SaveGroupStats сохраняет снимки счётчиков копирования: по строке на группу
// и на follower'а
func (s *Storage) SaveGroupStats(groups []models.GroupStatsRecord, followers []models.FollowerStatsRecord) error {
	now := time.Now()

	for _, g := range groups {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO group_stats (group_id, realized_pnl, failed_copies, updated_at)
			VALUES (?, ?, ?, ?)
		`, g.GroupID, g.RealizedPnL, g.FailedCopies, now)
		if err != nil {
			return fmt.Errorf("failed to save group stats: %w", err)
		}
	}

	for _, f := range followers {
		_, err := s.db.Exec(`
			INSERT OR REPLACE INTO follower_stats
				(follower_id, group_id, stats_day, attempts, successes, trades_today,
				 trades_total, total_profit, avg_latency_ms, failed_copies, last_copy_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.FollowerID, f.GroupID, f.StatsDay, f.Attempts, f.Successes, f.Stats.TradesToday,
			f.Stats.TradesTotal, f.Stats.TotalProfit, f.Stats.AvgLatencyMs, f.Stats.FailedCopies,
			f.Stats.LastCopyAt, now)
		if err != nil {
			return fmt.Errorf("failed to save follower stats: %w", err)
		}
	}

	return nil
}

// LoadGroupStats загружает сохранённые снимки счётчиков копирования
func (s *Storage) LoadGroupStats() ([]models.GroupStatsRecord, []models.FollowerStatsRecord, error) {
	rows, err := s.db.Query(`SELECT group_id, realized_pnl, COALESCE(failed_copies, 0) FROM group_stats`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var groups []models.GroupStatsRecord
	for rows.Next() {
		var g models.GroupStatsRecord
		if err := rows.Scan(&g.GroupID, &g.RealizedPnL, &g.FailedCopies); err != nil {
			continue
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	frows, err := s.db.Query(`
		SELECT follower_id, group_id, COALESCE(stats_day, ''), attempts, successes,
		       trades_today, trades_total, total_profit, avg_latency_ms, failed_copies,
		       last_copy_at
		FROM follower_stats
	`)
	if err != nil {
		return nil, nil, err
	}
	defer frows.Close()

	var followers []models.FollowerStatsRecord
	for frows.Next() {
		var f models.FollowerStatsRecord
		var lastCopyAt sql.NullTime

		err := frows.Scan(&f.FollowerID, &f.GroupID, &f.StatsDay, &f.Attempts, &f.Successes,
			&f.Stats.TradesToday, &f.Stats.TradesTotal, &f.Stats.TotalProfit,
			&f.Stats.AvgLatencyMs, &f.Stats.FailedCopies, &lastCopyAt)
		if err != nil {
			continue
		}

		f.Stats.LastCopyAt = lastCopyAt.Time
		if f.Attempts > 0 {
			f.Stats.SuccessRate = float64(f.Successes) / float64(f.Attempts)
		}
		followers = append(followers, f)
	}

	return groups, followers, frows.Err()
}

// Close закрывает соединение с БД
func (s *Storage) Close() error {
	return s.db.Close()
}
