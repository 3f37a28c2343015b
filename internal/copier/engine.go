// Package copier реализует ядро зеркалирования: события позиций leader'а
// превращаются в команды follower-терминалам по настроенным правилам,
// под защитой circuit breaker'а и дневного лимита потерь.
package copier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hedge_copier/internal/diff"
	"hedge_copier/internal/identity"
	"hedge_copier/internal/models"
	"hedge_copier/internal/terminal"
)

var (
	ErrGroupNotFound    = errors.New("copier group not found")
	ErrFollowerNotFound = errors.New("follower not found")
)

// Ограничения множителя лота
const (
	minLotMultiplier = 0.01
	maxLotMultiplier = 100
)

// dedupeLimit - сколько ключей дедупликации держим, прежде чем вытеснять старые
const dedupeLimit = 8192

// TerminalChannel - то, что движку нужно от менеджера терминалов
type TerminalChannel interface {
	SendCommand(ctx context.Context, terminalID string, cmd models.TerminalCommand) (models.TerminalResponse, error)
}

// Notifier - внешний канал алертов (telegram). Может быть nil.
type Notifier interface {
	Notify(message string)
}

// StatsStore - персистентность счётчиков копирования. Может быть nil,
// тогда статистика живёт до рестарта процесса.
type StatsStore interface {
	SaveGroupStats(groups []models.GroupStatsRecord, followers []models.FollowerStatsRecord) error
	LoadGroupStats() ([]models.GroupStatsRecord, []models.FollowerStatsRecord, error)
}

// Options - настройки движка
type Options struct {
	BreakerThreshold int
	CommandTimeout   time.Duration
	StatsInterval    time.Duration
}

func (o Options) withDefaults() Options {
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 3
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 3 * time.Second
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = 5 * time.Second
	}
	return o
}

// lineageEntry связывает позицию leader'а с зеркальной позицией follower'а.
// Тикеты на разных аккаунтах не совпадают, поэтому closes матчатся по этой
// связи, а не по сырому тикету.
type lineageEntry struct {
	TerminalID string
	PositionID string
	Volume     float64
}

// followerRuntime - runtime-состояние follower'а, переживающее пуши конфигурации
type followerRuntime struct {
	stats     models.FollowerStats
	statsDay  string // серверный день, к которому относится TradesToday
	attempts  int
	successes int
}

// Engine - ядро копирования. Конфигурация приходит целиком через UpdateGroups
// (движок не является источником истины для неё); runtime-состояние - статистика,
// предохранители, журнал - принадлежит движку и пуши конфигурации переживает.
type Engine struct {
	logger    *slog.Logger
	terminals TerminalChannel
	idmap     *identity.Map
	differ    *diff.Differ
	breaker   *CircuitBreaker
	daily     *DailyLossMonitor
	agg       *Aggregator
	notifier  Notifier
	stats     StatsStore
	opts      Options

	mu          sync.RWMutex
	groups      []models.CopierGroup
	enabled     bool
	licenseOK   bool
	connections int
	serverDay   string // последний серверный день, увиденный в снапшотах
	runtimes    map[string]*followerRuntime // followerID
	groupFailed map[string]int              // groupID → накопленные неудачные копии
	realized    map[string]float64          // groupID → накопленный hedge P&L
	lineage     map[string]*lineageEntry    // groupID|followerID|leaderTicket

	dedupeMu    sync.Mutex
	dedupeSeen  map[string]struct{}
	dedupeOrder []string

	queueMu sync.Mutex
	queues  map[string]chan terminal.Snapshot
	wg      sync.WaitGroup
}

// New создает движок копирования. Статистика и hedge P&L восстанавливаются
// из stats, если он задан.
func New(
	terminals TerminalChannel,
	idmap *identity.Map,
	differ *diff.Differ,
	daily *DailyLossMonitor,
	agg *Aggregator,
	notifier Notifier,
	stats StatsStore,
	opts Options,
	logger *slog.Logger,
) *Engine {
	opts = opts.withDefaults()

	e := &Engine{
		logger:      logger,
		terminals:   terminals,
		idmap:       idmap,
		differ:      differ,
		breaker:     NewCircuitBreaker(opts.BreakerThreshold),
		daily:       daily,
		agg:         agg,
		notifier:    notifier,
		stats:       stats,
		opts:        opts,
		licenseOK:   false, // fail closed, пока лицензионный сигнал не пришёл
		runtimes:    make(map[string]*followerRuntime),
		groupFailed: make(map[string]int),
		realized:    make(map[string]float64),
		lineage:     make(map[string]*lineageEntry),
		dedupeSeen:  make(map[string]struct{}),
		queues:      make(map[string]chan terminal.Snapshot),
	}

	e.restoreStats()

	return e
}

// restoreStats подгружает сохранённые счётчики, чтобы TradesTotal,
// TotalProfit и hedge P&L переживали рестарт процесса
func (e *Engine) restoreStats() {
	if e.stats == nil {
		return
	}

	groups, followers, err := e.stats.LoadGroupStats()
	if err != nil {
		e.logger.Warn("⚠️  Failed to restore copier stats", slog.String("error", err.Error()))
		return
	}

	for _, g := range groups {
		e.realized[g.GroupID] = g.RealizedPnL
		e.groupFailed[g.GroupID] = g.FailedCopies
	}

	for _, f := range followers {
		e.runtimes[f.FollowerID] = &followerRuntime{
			stats:     f.Stats,
			statsDay:  f.StatsDay,
			attempts:  f.Attempts,
			successes: f.Successes,
		}
	}

	if len(groups) > 0 || len(followers) > 0 {
		e.logger.Info("✅ Copier stats restored",
			slog.Int("groups", len(groups)),
			slog.Int("followers", len(followers)))
	}
}

// Run потребляет поток снапшотов до отмены контекста.
//
// Каждый терминал обрабатывается собственной горутиной строго в порядке
// прихода; между терминалами порядок не гарантируется и не требуется -
// группы ключуются разными leader-аккаунтами.
func (e *Engine) Run(ctx context.Context, snapshots <-chan terminal.Snapshot) {
	statsTicker := time.NewTicker(e.opts.StatsInterval)
	defer statsTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				e.publishStats()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.drainQueues()
			return
		case snap, ok := <-snapshots:
			if !ok {
				e.drainQueues()
				return
			}
			e.route(ctx, snap)
		}
	}
}

// route направляет снапшот в последовательную очередь его терминала
func (e *Engine) route(ctx context.Context, snap terminal.Snapshot) {
	e.queueMu.Lock()
	q, ok := e.queues[snap.TerminalID]
	if !ok {
		q = make(chan terminal.Snapshot, 64)
		e.queues[snap.TerminalID] = q

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for s := range q {
				e.processSnapshot(ctx, s)
			}
		}()
	}
	e.queueMu.Unlock()

	select {
	case q <- snap:
	default:
		// Очередь забита: терминал шлёт быстрее, чем follower'ы отвечают.
		// Снапшот пропускаем - следующий несёт полное состояние.
		e.logger.Warn("Snapshot queue full, dropping snapshot", slog.String("terminal", snap.TerminalID))
	}
}

func (e *Engine) drainQueues() {
	e.queueMu.Lock()
	for _, q := range e.queues {
		close(q)
	}
	e.queues = make(map[string]chan terminal.Snapshot)
	e.queueMu.Unlock()

	e.wg.Wait()
}

func (e *Engine) processSnapshot(ctx context.Context, snap terminal.Snapshot) {
	accountID := snap.TerminalID
	if pid, ok := e.idmap.Persistent(snap.TerminalID); ok {
		accountID = pid
	}

	if !snap.Timestamp.IsZero() {
		day := serverDay(snap.Timestamp)
		e.mu.Lock()
		if day > e.serverDay {
			e.serverDay = day
		}
		e.mu.Unlock()
	}

	if e.daily.Observe(accountID, snap.AccountSnapshot) {
		msg := fmt.Sprintf("Daily loss limit breached on account %s - mirroring suspended until next server day", accountID)
		e.agg.Alert(models.EventCopyError, "", "", msg)
		e.notify(msg)
	}

	for _, ev := range e.differ.Diff(snap.TerminalID, snap.AccountSnapshot) {
		e.handleEvent(ctx, ev)
	}
}

// handleEvent прогоняет одно событие leader'а через полный конвейер копирования
func (e *Engine) handleEvent(ctx context.Context, ev models.PositionEvent) {
	if !e.markSeen(ev) {
		e.logger.Debug("Duplicate position event dropped",
			slog.String("terminal", ev.TerminalID),
			slog.String("ticket", ev.Ticket),
			slog.String("type", string(ev.Type)))
		return
	}

	leaderID, ok := e.idmap.Persistent(ev.TerminalID)
	if !ok {
		// Промах identity map не фатален: событие логируется и отбрасывается
		e.logger.Warn("Position event for unmapped terminal dropped",
			slog.String("terminal", ev.TerminalID),
			slog.String("ticket", ev.Ticket))
		return
	}

	e.mu.RLock()
	enabled := e.enabled && e.licenseOK
	var matched []models.CopierGroup
	for _, g := range e.groups {
		if g.LeaderAccountID == leaderID && g.Status == models.GroupActive {
			matched = append(matched, g)
		}
	}
	e.mu.RUnlock()

	// Выключенный глобальный флаг или пауза - тихий дроп, без ошибок
	if !enabled || len(matched) == 0 {
		return
	}

	if e.daily.Breached(leaderID) {
		for _, g := range matched {
			e.agg.Alert(models.EventCopyError, g.ID, "",
				"daily loss limit reached for leader account, event skipped")
		}
		return
	}

	for _, group := range matched {
		e.mirrorToGroup(ctx, group, ev)
	}
}

// mirrorToGroup раздаёт событие всем follower'ам группы параллельно
func (e *Engine) mirrorToGroup(ctx context.Context, group models.CopierGroup, ev models.PositionEvent) {
	var wg sync.WaitGroup

	for _, follower := range group.Followers {
		if follower.Status != models.FollowerActive {
			continue
		}

		wg.Add(1)
		go func(f models.FollowerConfig) {
			defer wg.Done()
			e.mirrorToFollower(ctx, group, f, ev)
		}(follower)
	}

	wg.Wait()
}

func (e *Engine) mirrorToFollower(ctx context.Context, group models.CopierGroup, f models.FollowerConfig, ev models.PositionEvent) {
	pos := ev.Position()
	if pos == nil {
		return
	}

	// Фильтры: magic → symbol. Отсев фильтром - штатная ситуация, не ошибка.
	// Проверяются раньше защит: событие, которое follower всё равно бы не
	// копировал, не должно оставлять skipped-записей и алертов.
	if !matchMagic(f, pos.Magic) || !matchSymbol(f, pos.Symbol) {
		return
	}

	if e.daily.Breached(f.AccountID) {
		e.recordSkip(group, f, ev, *pos, "daily loss limit reached for follower account")
		return
	}

	symbol, override := resolveSymbol(group, f, pos.Symbol)
	if symbol == "" {
		e.logger.Warn("Symbol resolution produced empty symbol",
			slog.String("group", group.ID),
			slog.String("follower", f.ID),
			slog.String("leader_symbol", pos.Symbol))
		return
	}

	if e.breaker.IsOpen(group.ID, f.ID) {
		e.recordSkip(group, f, ev, *pos, "circuit breaker open")
		return
	}

	cmd, volume, ok := e.buildCommand(group, f, ev, symbol, override)
	if !ok {
		return
	}

	terminalID, ok := e.idmap.Transport(f.AccountID)
	if !ok {
		e.recordFailure(group, f, ev, *pos, cmd, volume, 0, "follower terminal is not mapped")
		return
	}

	cmdCtx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.terminals.SendCommand(cmdCtx, terminalID, cmd)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		reason := err.Error()
		if errors.Is(err, terminal.ErrCommandTimeout) || errors.Is(err, context.DeadlineExceeded) {
			reason = "command timed out"
		}
		e.recordFailure(group, f, ev, *pos, cmd, volume, latency, reason)
		return
	}

	if !resp.Success {
		e.recordFailure(group, f, ev, *pos, cmd, volume, latency, resp.Error)
		return
	}

	e.recordSuccess(group, f, ev, *pos, cmd, volume, latency, resp)
}

// buildCommand собирает команду follower-терминалу для конкретного типа события
func (e *Engine) buildCommand(
	group models.CopierGroup,
	f models.FollowerConfig,
	ev models.PositionEvent,
	symbol string,
	override float64,
) (models.TerminalCommand, float64, bool) {
	pos := ev.Position()
	side := mapSide(pos.Side, f.ReverseMode)
	sl, tp := mapStops(pos.StopLoss, pos.TakeProfit, f.ReverseMode)
	comment := fmt.Sprintf("hc:%s:%s", group.ID, ev.Ticket)

	switch ev.Type {
	case models.EventOpened:
		volume := computeVolume(pos.Volume, f, override)
		if volume <= 0 {
			e.logger.Warn("Computed follower volume is zero, skipping",
				slog.String("follower", f.ID),
				slog.Float64("leader_volume", pos.Volume))
			return models.TerminalCommand{}, 0, false
		}

		return models.TerminalCommand{
			Action:     models.ActionOpenPosition,
			Symbol:     symbol,
			Side:       side,
			Volume:     volume,
			StopLoss:   sl,
			TakeProfit: tp,
			Comment:    comment,
		}, volume, true

	case models.EventModified:
		entry := e.getLineage(group.ID, f.ID, ev.Ticket)
		if entry == nil {
			e.logger.Warn("Modify event without mapped follower position",
				slog.String("follower", f.ID),
				slog.String("ticket", ev.Ticket))
			return models.TerminalCommand{}, 0, false
		}

		return models.TerminalCommand{
			Action:     models.ActionModify,
			PositionID: entry.PositionID,
			Symbol:     symbol,
			StopLoss:   sl,
			TakeProfit: tp,
		}, entry.Volume, true

	case models.EventPartiallyClosed, models.EventClosed:
		entry := e.getLineage(group.ID, f.ID, ev.Ticket)
		if entry == nil {
			e.logger.Warn("Close event without mapped follower position",
				slog.String("follower", f.ID),
				slog.String("ticket", ev.Ticket))
			return models.TerminalCommand{}, 0, false
		}

		volume := entry.Volume
		if ev.Type == models.EventPartiallyClosed {
			volume = computeVolume(ev.ClosedVolume, f, override)
		}

		// Пропущенное ранее событие могло оставить у follower'а иной объём:
		// зеркальное закрытие ограничиваем фактическим открытым объёмом
		if volume > entry.Volume {
			e.logger.Warn("Mirrored close volume exceeds follower position, clamping",
				slog.String("follower", f.ID),
				slog.Float64("requested", volume),
				slog.Float64("open", entry.Volume))
			volume = entry.Volume
		}

		return models.TerminalCommand{
			Action:     models.ActionClosePosition,
			PositionID: entry.PositionID,
			Symbol:     symbol,
			Volume:     volume,
		}, volume, true
	}

	return models.TerminalCommand{}, 0, false
}

// mapStops переставляет SL и TP местами в hedge-режиме: стоп зеркальной
// позиции стоит там, где у исходной был тейк
func mapStops(sl, tp float64, reverse bool) (float64, float64) {
	if reverse {
		return tp, sl
	}

	return sl, tp
}

func lineageKey(groupID, followerID, ticket string) string {
	return groupID + "|" + followerID + "|" + ticket
}

func (e *Engine) getLineage(groupID, followerID, ticket string) *lineageEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if entry, ok := e.lineage[lineageKey(groupID, followerID, ticket)]; ok {
		entryCopy := *entry
		return &entryCopy
	}

	return nil
}

// markSeen дедуплицирует события: повторно доставленный диф снапшота никогда
// не приводит ко второй отправке того же зеркального ордера
func (e *Engine) markSeen(ev models.PositionEvent) bool {
	key := fmt.Sprintf("%s|%s|%s|%d", ev.TerminalID, ev.Ticket, ev.Type, ev.Sequence)

	e.dedupeMu.Lock()
	defer e.dedupeMu.Unlock()

	if _, seen := e.dedupeSeen[key]; seen {
		return false
	}

	e.dedupeSeen[key] = struct{}{}
	e.dedupeOrder = append(e.dedupeOrder, key)

	if len(e.dedupeOrder) > dedupeLimit {
		oldest := e.dedupeOrder[0]
		e.dedupeOrder = e.dedupeOrder[1:]
		delete(e.dedupeSeen, oldest)
	}

	return true
}

func (e *Engine) notify(message string) {
	if e.notifier != nil {
		e.notifier.Notify(message)
	}
}
