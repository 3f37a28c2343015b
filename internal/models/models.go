package models

import "time"

// Platform - тип торгового терминала
type Platform string

const (
	PlatformMT4     Platform = "mt4"
	PlatformMT5     Platform = "mt5"
	PlatformCTrader Platform = "ctrader"
)

// Side - направление сделки
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite возвращает противоположное направление (hedge-режим)
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}

	return SideBuy
}

// GroupStatus - статус копир-группы
type GroupStatus string

const (
	GroupActive GroupStatus = "active"
	GroupPaused GroupStatus = "paused"
	GroupError  GroupStatus = "error"
)

// FollowerStatus - статус follower-аккаунта в группе
type FollowerStatus string

const (
	FollowerActive  FollowerStatus = "active"
	FollowerPaused  FollowerStatus = "paused"
	FollowerError   FollowerStatus = "error"
	FollowerPending FollowerStatus = "pending"
)

// SymbolAlias - соответствие символа leader → follower
type SymbolAlias struct {
	MasterSymbol  string  `json:"masterSymbol"`
	SlaveSymbol   string  `json:"slaveSymbol"`
	LotMultiplier float64 `json:"lotMultiplier,omitempty"` // переопределяет множитель follower'а, 0 = не задан
}

// FollowerConfig - настройки одного follower-аккаунта в группе
type FollowerConfig struct {
	ID              string         `json:"id"`
	AccountID       string         `json:"accountId"` // постоянный UUID аккаунта
	Platform        Platform       `json:"platform"`
	Phase           string         `json:"phase"`
	Status          FollowerStatus `json:"status"`
	SizingMode      string         `json:"sizingMode"`
	LotMultiplier   float64        `json:"lotMultiplier"` // допустимо 0.01..100
	ReverseMode     bool           `json:"reverseMode"`   // true = открывать противоположное направление
	SymbolWhitelist []string       `json:"symbolWhitelist,omitempty"`
	SymbolBlacklist []string       `json:"symbolBlacklist,omitempty"`
	SymbolSuffix    string         `json:"symbolSuffix,omitempty"`
	SymbolAliases   []SymbolAlias  `json:"symbolAliases,omitempty"`
	MagicWhitelist  []int64        `json:"magicWhitelist,omitempty"`
	MagicBlacklist  []int64        `json:"magicBlacklist,omitempty"`
	BaselineBalance float64        `json:"baselineBalance"` // баланс на момент подключения
	LotStep         float64        `json:"lotStep"`         // шаг лота брокера, 0 = 0.01
	Stats           FollowerStats  `json:"stats"`
}

// CopierGroup - группа копирования: ровно один leader, список followers
type CopierGroup struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Status            GroupStatus      `json:"status"`
	LeaderAccountID   string           `json:"leaderAccountId"` // постоянный UUID
	LeaderPlatform    Platform         `json:"leaderPlatform"`
	LeaderPhase       string           `json:"leaderPhase"`
	LeaderSuffixStrip string           `json:"leaderSuffixStrip,omitempty"` // суффикс, отрезаемый от символов leader'а
	BaselinePnL       float64          `json:"baselinePnL"`                 // P&L аккаунта на момент создания группы
	Followers         []FollowerConfig `json:"followers"`
	Stats             GroupStats       `json:"stats"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
	TotalFailedCopies int              `json:"totalFailedCopies"`
}

// FollowerStats - статистика по follower'у. Производные данные: пересчитываются
// движком при каждой мутации, напрямую не изменяются.
type FollowerStats struct {
	TradesToday  int       `json:"tradesToday"`
	TradesTotal  int       `json:"tradesTotal"`
	TotalProfit  float64   `json:"totalProfit"`
	AvgLatencyMs float64   `json:"avgLatencyMs"`
	SuccessRate  float64   `json:"successRate"`
	FailedCopies int       `json:"failedCopies"`
	LastCopyAt   time.Time `json:"lastCopyAt,omitempty"`
}

// GroupStats - агрегированная статистика группы
type GroupStats struct {
	TradesToday  int       `json:"tradesToday"`
	TradesTotal  int       `json:"tradesTotal"`
	TotalProfit  float64   `json:"totalProfit"`
	AvgLatencyMs float64   `json:"avgLatencyMs"`
	SuccessRate  float64   `json:"successRate"`
	FailedCopies int       `json:"failedCopies"`
	LastCopyAt   time.Time `json:"lastCopyAt,omitempty"`
}

// ActivityStatus - исход одной попытки копирования
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
	ActivitySkipped ActivityStatus = "skipped"
)

// ActivityEntry - неизменяемая запись одной попытки копирования
type ActivityEntry struct {
	ID         string            `json:"id"`
	GroupID    string            `json:"groupId"`
	FollowerID string            `json:"followerId"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  PositionEventType `json:"eventType"`
	Symbol     string            `json:"symbol"`
	Action     string            `json:"action"`
	Volume     float64           `json:"volume"`
	Price      float64           `json:"price"`
	LatencyMs  int64             `json:"latencyMs"`
	Status     ActivityStatus    `json:"status"`
	Error      string            `json:"error,omitempty"`
}

// DailyLimitState - состояние дневного лимита потерь по аккаунту.
// ServerDay привязан к календарному дню торгового сервера брокера,
// а не к локальным часам клиента.
type DailyLimitState struct {
	AccountID         string    `json:"accountId"`
	ServerDay         string    `json:"serverDay"` // YYYY-MM-DD по времени сервера
	DailyStartBalance float64   `json:"dailyStartBalance"`
	CurrentEquity     float64   `json:"currentEquity"`
	HighWaterMark     float64   `json:"highWaterMark"`
	UsedAmount        float64   `json:"usedAmount"`
	RemainingAmount   float64   `json:"remainingAmount"`
	Breached          bool      `json:"breached"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// GroupStatsRecord - персистентный снимок счётчиков уровня группы
type GroupStatsRecord struct {
	GroupID      string
	RealizedPnL  float64
	FailedCopies int
}

// FollowerStatsRecord - персистентный снимок runtime-счётчиков follower'а.
// Attempts/Successes сохраняются отдельно: без них после рестарта нельзя
// продолжить бегущие средние latency и success rate.
type FollowerStatsRecord struct {
	FollowerID string
	GroupID    string
	StatsDay   string // серверный день, к которому относится TradesToday
	Attempts   int
	Successes  int
	Stats      FollowerStats
}

// CircuitBreakerState - состояние предохранителя по follower'у.
// Сбрасывается только явным действием оператора, не по таймеру.
type CircuitBreakerState struct {
	GroupID             string    `json:"groupId"`
	FollowerID          string    `json:"followerId"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Tripped             bool      `json:"tripped"`
	TrippedAt           time.Time `json:"trippedAt,omitempty"`
}

// CopierEventKind - вид события в потоке телеметрии
type CopierEventKind string

const (
	EventStatsUpdate    CopierEventKind = "statsUpdate"
	EventActivity       CopierEventKind = "activity"
	EventCopyError      CopierEventKind = "copyError"
	EventCircuitBreaker CopierEventKind = "circuitBreaker"
)

// CopierEvent - одно событие потока телеметрии для подписчиков (UI)
type CopierEvent struct {
	Kind       CopierEventKind       `json:"kind"`
	GroupID    string                `json:"groupId,omitempty"`
	FollowerID string                `json:"followerId,omitempty"`
	Activity   *ActivityEntry        `json:"activity,omitempty"`
	Stats      map[string]GroupStats `json:"stats,omitempty"` // groupID → stats
	Message    string                `json:"message,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}
