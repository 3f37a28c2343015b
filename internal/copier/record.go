package copier

import (
	"fmt"
	"log/slog"
	"time"

	"hedge_copier/internal/models"

	"github.com/google/uuid"
)

// Учёт исходов попыток копирования. Каждый неуспешный зеркальный ордер
// оставляет ровно одну activity/copyError запись - молча не глотается ничего.

func (e *Engine) activityEntry(
	group models.CopierGroup,
	f models.FollowerConfig,
	ev models.PositionEvent,
	pos models.PositionData,
	action string,
	volume float64,
	latency int64,
	status models.ActivityStatus,
	errMsg string,
) models.ActivityEntry {
	return models.ActivityEntry{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		FollowerID: f.ID,
		Timestamp:  time.Now(),
		EventType:  ev.Type,
		Symbol:     pos.Symbol,
		Action:     action,
		Volume:     volume,
		Price:      pos.CurrentPrice,
		LatencyMs:  latency,
		Status:     status,
		Error:      errMsg,
	}
}

// recordSkip - детерминированный пропуск (breaker открыт, дневной лимит).
// Запись попадает и в журнал, и в out-of-band поток copyError.
func (e *Engine) recordSkip(group models.CopierGroup, f models.FollowerConfig, ev models.PositionEvent, pos models.PositionData, reason string) {
	entry := e.activityEntry(group, f, ev, pos, string(pos.Side), 0, 0, models.ActivitySkipped, reason)
	e.agg.Activity(entry)
	e.agg.Alert(models.EventCopyError, group.ID, f.ID, reason)
}

func (e *Engine) recordSuccess(
	group models.CopierGroup,
	f models.FollowerConfig,
	ev models.PositionEvent,
	pos models.PositionData,
	cmd models.TerminalCommand,
	volume float64,
	latency int64,
	resp models.TerminalResponse,
) {
	e.breaker.RecordSuccess(group.ID, f.ID)
	e.updateLineage(group, f, ev, cmd, volume, resp)

	e.mu.Lock()

	rt := e.runtime(f.ID)
	day := serverDay(ev.CurrTime)
	if day > e.serverDay {
		e.serverDay = day
	}
	if rt.statsDay != day {
		rt.statsDay = day
		rt.stats.TradesToday = 0
	}

	rt.attempts++
	rt.successes++
	rt.stats.TradesToday++
	rt.stats.TradesTotal++
	rt.stats.AvgLatencyMs += (float64(latency) - rt.stats.AvgLatencyMs) / float64(rt.attempts)
	rt.stats.SuccessRate = float64(rt.successes) / float64(rt.attempts)
	rt.stats.LastCopyAt = time.Now()

	// Realized P&L follower'а приходит в ответе на закрытие
	if cmd.Action == models.ActionClosePosition {
		rt.stats.TotalProfit += resp.Profit
		e.realized[group.ID] += resp.Profit
	}

	e.mu.Unlock()

	entry := e.activityEntry(group, f, ev, pos, string(cmd.Action), volume, latency, models.ActivitySuccess, "")
	e.agg.Activity(entry)

	e.logger.Info("Order mirrored",
		slog.String("group", group.ID),
		slog.String("follower", f.ID),
		slog.String("action", string(cmd.Action)),
		slog.String("symbol", cmd.Symbol),
		slog.Float64("volume", volume),
		slog.Int64("latency_ms", latency))
}

func (e *Engine) recordFailure(
	group models.CopierGroup,
	f models.FollowerConfig,
	ev models.PositionEvent,
	pos models.PositionData,
	cmd models.TerminalCommand,
	volume float64,
	latency int64,
	reason string,
) {
	tripped, failures := e.breaker.RecordFailure(group.ID, f.ID)

	e.mu.Lock()
	rt := e.runtime(f.ID)
	rt.attempts++
	rt.stats.FailedCopies++
	if rt.attempts > 0 {
		rt.stats.SuccessRate = float64(rt.successes) / float64(rt.attempts)
	}
	e.groupFailed[group.ID]++
	e.mu.Unlock()

	entry := e.activityEntry(group, f, ev, pos, string(cmd.Action), volume, latency, models.ActivityFailed, reason)
	e.agg.Activity(entry)
	e.agg.Alert(models.EventCopyError, group.ID, f.ID, reason)

	e.logger.Error("Failed to mirror order",
		slog.String("group", group.ID),
		slog.String("follower", f.ID),
		slog.String("action", string(cmd.Action)),
		slog.String("reason", reason),
		slog.Int("consecutive_failures", failures))

	if tripped {
		msg := fmt.Sprintf("Circuit breaker tripped for follower %s in group %s after %d consecutive failures", f.ID, group.Name, failures)
		e.agg.Alert(models.EventCircuitBreaker, group.ID, f.ID, msg)
		e.notify(msg)
	}
}

// updateLineage поддерживает связь leader-позиция → follower-позиция
func (e *Engine) updateLineage(group models.CopierGroup, f models.FollowerConfig, ev models.PositionEvent, cmd models.TerminalCommand, volume float64, resp models.TerminalResponse) {
	key := lineageKey(group.ID, f.ID, ev.Ticket)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Type {
	case models.EventOpened:
		terminalID, _ := e.idmap.Transport(f.AccountID)
		e.lineage[key] = &lineageEntry{
			TerminalID: terminalID,
			PositionID: resp.PositionID,
			Volume:     volume,
		}
	case models.EventPartiallyClosed:
		if entry, ok := e.lineage[key]; ok {
			entry.Volume -= volume
			if entry.Volume <= 0 {
				delete(e.lineage, key)
			}
		}
	case models.EventClosed:
		delete(e.lineage, key)
	}
}

// runtime возвращает (создавая при необходимости) runtime-состояние follower'а.
// Вызывается под e.mu.
func (e *Engine) runtime(followerID string) *followerRuntime {
	rt, ok := e.runtimes[followerID]
	if !ok {
		rt = &followerRuntime{}
		e.runtimes[followerID] = rt
	}

	return rt
}
