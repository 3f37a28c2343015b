// Package diff восстанавливает дискретные события по позициям из
// последовательных полных снапшотов состояния терминала.
//
// Сравнение идёт по тикетам: появился тикет - opened, пропал - closed,
// уменьшился объём - partiallyClosed, изменились SL/TP при том же объёме -
// modified. Повтор идентичного снапшота событий не порождает.
//
// Известное ограничение polling-транспорта: если позиция открылась и закрылась
// внутри одного интервала между снапшотами, события не будет. Там, где это
// критично, полагаться надо на streaming-транспорт с коротким интервалом.
package diff

import (
	"log/slog"
	"sync"

	"hedge_copier/internal/models"
)

// HistoryLookup запрашивает realized P&L закрытой сделки из истории терминала.
// Используется, когда терминал не сообщает P&L закрытия прямо в снапшоте.
type HistoryLookup func(terminalID, ticket string) (float64, bool)

type terminalState struct {
	prev *models.AccountSnapshot
	seq  int64
}

// Differ ведёт по каждому терминалу последний снапшот и выводит события
// из каждой следующей пары. Потокобезопасен.
type Differ struct {
	mu      sync.Mutex
	states  map[string]*terminalState
	history HistoryLookup // может быть nil
	logger  *slog.Logger
}

// New создает Differ. history может быть nil - тогда P&L закрытия берётся
// из последнего известного floating profit позиции.
func New(history HistoryLookup, logger *slog.Logger) *Differ {
	return &Differ{
		states:  make(map[string]*terminalState),
		history: history,
		logger:  logger,
	}
}

// Reset забывает состояние терминала (например, после переподключения с нуля)
func (d *Differ) Reset(terminalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.states, terminalID)
}

// Diff сравнивает снапшот с предыдущим для этого терминала и возвращает
// список событий. Первый снапшот терминала событий не порождает - он
// становится базой для сравнения.
func (d *Differ) Diff(terminalID string, snap models.AccountSnapshot) []models.PositionEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[terminalID]
	if !ok {
		st = &terminalState{}
		d.states[terminalID] = st
	}

	st.seq++

	prev := st.prev
	snapCopy := snap
	st.prev = &snapCopy

	if prev == nil {
		return nil
	}

	return d.compare(terminalID, st.seq, prev, &snapCopy)
}

func (d *Differ) compare(terminalID string, seq int64, prev, curr *models.AccountSnapshot) []models.PositionEvent {
	prevByTicket := make(map[string]*models.PositionData, len(prev.Positions))
	for i := range prev.Positions {
		prevByTicket[prev.Positions[i].ID] = &prev.Positions[i]
	}

	var events []models.PositionEvent

	seen := make(map[string]bool, len(curr.Positions))

	for i := range curr.Positions {
		after := &curr.Positions[i]
		seen[after.ID] = true

		before, existed := prevByTicket[after.ID]
		if !existed {
			events = append(events, d.event(models.EventOpened, terminalID, seq, prev, curr, nil, after))
			continue
		}

		// Тикет переиспользован другим символом или направлением: это не
		// modified, а закрытие старой позиции плюс открытие новой
		if before.Symbol != after.Symbol || before.Side != after.Side {
			d.logger.Warn("Ticket reused with different symbol/direction",
				slog.String("terminal", terminalID),
				slog.String("ticket", after.ID),
				slog.String("was", before.Symbol+"/"+string(before.Side)),
				slog.String("now", after.Symbol+"/"+string(after.Side)))

			closedEv := d.event(models.EventClosed, terminalID, seq, prev, curr, before, nil)
			closedEv.ClosedVolume = before.Volume
			closedEv.RealizedPnL = d.closedPnL(terminalID, before)
			events = append(events, closedEv)
			events = append(events, d.event(models.EventOpened, terminalID, seq, prev, curr, nil, after))
			continue
		}

		if after.Volume < before.Volume {
			ev := d.event(models.EventPartiallyClosed, terminalID, seq, prev, curr, before, after)
			ev.ClosedVolume = before.Volume - after.Volume
			// Пропорциональная доля realized P&L от закрытой части
			if before.Volume > 0 {
				ev.RealizedPnL = before.Profit * (ev.ClosedVolume / before.Volume)
			}
			events = append(events, ev)
			continue
		}

		if after.StopLoss != before.StopLoss || after.TakeProfit != before.TakeProfit {
			events = append(events, d.event(models.EventModified, terminalID, seq, prev, curr, before, after))
		}
	}

	for i := range prev.Positions {
		before := &prev.Positions[i]
		if seen[before.ID] {
			continue
		}

		ev := d.event(models.EventClosed, terminalID, seq, prev, curr, before, nil)
		ev.ClosedVolume = before.Volume
		ev.RealizedPnL = d.closedPnL(terminalID, before)
		events = append(events, ev)
	}

	return events
}

func (d *Differ) closedPnL(terminalID string, before *models.PositionData) float64 {
	if d.history != nil {
		if pnl, ok := d.history(terminalID, before.ID); ok {
			return pnl
		}
	}

	// Fallback: последний известный floating profit позиции
	return before.Profit
}

func (d *Differ) event(
	t models.PositionEventType,
	terminalID string,
	seq int64,
	prev, curr *models.AccountSnapshot,
	before, after *models.PositionData,
) models.PositionEvent {
	ticket := ""
	if after != nil {
		ticket = after.ID
	} else if before != nil {
		ticket = before.ID
	}

	return models.PositionEvent{
		Type:       t,
		TerminalID: terminalID,
		Ticket:     ticket,
		Sequence:   seq,
		Before:     before,
		After:      after,
		PrevTime:   prev.Timestamp,
		CurrTime:   curr.Timestamp,
	}
}
