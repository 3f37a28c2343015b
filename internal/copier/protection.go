package copier

import (
	"log/slog"
	"sync"
	"time"

	"hedge_copier/internal/models"
)

// LimitStore персистит состояние дневных лимитов, чтобы рестарт процесса
// посреди торгового дня не сдвигал baseline.
type LimitStore interface {
	SaveDailyLimit(state models.DailyLimitState) error
	LoadDailyLimits() (map[string]models.DailyLimitState, error)
}

// DailyLossMonitor следит за дневным использованием капитала по каждому
// аккаунту независимо от групп.
//
// Граница дня - календарный день торгового сервера брокера (по Timestamp
// снапшота), а не локальная полночь: часы трейдера, сервера и UI могут
// расходиться на несколько часов. При пробое лимита аккаунт помечается и
// движок обращается с ним как с приостановленным до следующего серверного дня.
type DailyLossMonitor struct {
	mu         sync.Mutex
	maxLossPct float64 // доля от дневного стартового баланса, например 0.05
	states     map[string]*models.DailyLimitState
	store      LimitStore // может быть nil
	logger     *slog.Logger
}

// NewDailyLossMonitor создает монитор. При наличии store подгружает
// сохранённые состояния.
func NewDailyLossMonitor(maxLossPct float64, store LimitStore, logger *slog.Logger) *DailyLossMonitor {
	m := &DailyLossMonitor{
		maxLossPct: maxLossPct,
		states:     make(map[string]*models.DailyLimitState),
		store:      store,
		logger:     logger,
	}

	if store != nil {
		saved, err := store.LoadDailyLimits()
		if err != nil {
			logger.Error("Failed to load daily limit states", slog.Any("error", err))
		} else {
			for id, st := range saved {
				stCopy := st
				m.states[id] = &stCopy
			}

			if len(saved) > 0 {
				logger.Info("Daily limit states restored", slog.Int("accounts", len(saved)))
			}
		}
	}

	return m
}

// serverDay - маркер серверного дня из таймстемпа снапшота
func serverDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// Observe обновляет состояние лимита по свежему снапшоту.
// Возвращает true, если этим снапшотом лимит был пробит впервые за день.
func (m *DailyLossMonitor) Observe(accountID string, snap models.AccountSnapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := serverDay(snap.Timestamp)

	st, ok := m.states[accountID]
	if !ok || st.ServerDay != day {
		// Новый серверный день: baseline сбрасывается на текущий баланс,
		// пробой прошлого дня не переносится
		st = &models.DailyLimitState{
			AccountID:         accountID,
			ServerDay:         day,
			DailyStartBalance: snap.Balance,
			HighWaterMark:     snap.Equity,
		}
		m.states[accountID] = st
	}

	st.CurrentEquity = snap.Equity
	if snap.Equity > st.HighWaterMark {
		st.HighWaterMark = snap.Equity
	}

	st.UsedAmount = st.DailyStartBalance - snap.Equity
	if st.UsedAmount < 0 {
		st.UsedAmount = 0
	}

	limit := st.DailyStartBalance * m.maxLossPct
	st.RemainingAmount = limit - st.UsedAmount
	if st.RemainingAmount < 0 {
		st.RemainingAmount = 0
	}

	st.UpdatedAt = time.Now()

	justBreached := false
	if !st.Breached && m.maxLossPct > 0 && st.UsedAmount >= limit && limit > 0 {
		st.Breached = true
		justBreached = true

		m.logger.Warn("Daily loss limit breached",
			slog.String("account", accountID),
			slog.String("server_day", day),
			slog.Float64("used", st.UsedAmount),
			slog.Float64("limit", limit))
	}

	if m.store != nil {
		if err := m.store.SaveDailyLimit(*st); err != nil {
			m.logger.Error("Failed to persist daily limit state", slog.Any("error", err))
		}
	}

	return justBreached
}

// Breached сообщает, пробит ли дневной лимит аккаунта
func (m *DailyLossMonitor) Breached(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[accountID]
	return ok && st.Breached
}

// State возвращает копию состояния лимита по аккаунту
func (m *DailyLossMonitor) State(accountID string) (models.DailyLimitState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[accountID]; ok {
		return *st, true
	}

	return models.DailyLimitState{}, false
}
