package copier

import (
	"log/slog"
	"sync"
	"time"

	"hedge_copier/internal/models"
)

// activityRingSize - сколько записей держим в памяти для UI
const activityRingSize = 500

// persistedActivity - сколько последних записей переживает рестарт
const persistedActivity = 100

// ActivityStore персистит хвост журнала активности
type ActivityStore interface {
	AddActivity(entry models.ActivityEntry, keep int) error
	RecentActivity(limit int) ([]models.ActivityEntry, error)
}

// Aggregator копит журнал активности и раздаёт события подписчикам.
//
// Один поток, три вида событий: statsUpdate, activity и out-of-band алерты
// copyError/circuitBreaker. В пределах группы записи доставляются в порядке
// обработки событий движком. Медленный подписчик теряет старые события, но
// никогда не блокирует движок.
type Aggregator struct {
	mu      sync.Mutex
	entries []models.ActivityEntry // свежие в начале
	subs    map[int]chan models.CopierEvent
	nextSub int
	store   ActivityStore // может быть nil
	logger  *slog.Logger
}

// NewAggregator создает агрегатор; при наличии store восстанавливает
// сохранённый хвост журнала.
func NewAggregator(store ActivityStore, logger *slog.Logger) *Aggregator {
	a := &Aggregator{
		subs:   make(map[int]chan models.CopierEvent),
		store:  store,
		logger: logger,
	}

	if store != nil {
		saved, err := store.RecentActivity(persistedActivity)
		if err != nil {
			logger.Error("Failed to restore activity log", slog.Any("error", err))
		} else if len(saved) > 0 {
			a.entries = saved
			logger.Info("Activity log restored", slog.Int("entries", len(saved)))
		}
	}

	return a
}

// Subscribe подписывает потребителя на поток событий.
// Возвращённая функция отписывает и закрывает канал.
func (a *Aggregator) Subscribe() (<-chan models.CopierEvent, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++

	ch := make(chan models.CopierEvent, 128)
	a.subs[id] = ch

	unsubscribe := func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		if ch, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Activity добавляет запись в журнал и публикует её подписчикам
func (a *Aggregator) Activity(entry models.ActivityEntry) {
	a.mu.Lock()

	a.entries = append([]models.ActivityEntry{entry}, a.entries...)
	if len(a.entries) > activityRingSize {
		a.entries = a.entries[:activityRingSize]
	}

	a.publishLocked(models.CopierEvent{
		Kind:       models.EventActivity,
		GroupID:    entry.GroupID,
		FollowerID: entry.FollowerID,
		Activity:   &entry,
		Timestamp:  entry.Timestamp,
	})

	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.AddActivity(entry, persistedActivity); err != nil {
			a.logger.Error("Failed to persist activity entry", slog.Any("error", err))
		}
	}
}

// Alert публикует out-of-band событие (copyError / circuitBreaker)
func (a *Aggregator) Alert(kind models.CopierEventKind, groupID, followerID, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.publishLocked(models.CopierEvent{
		Kind:       kind,
		GroupID:    groupID,
		FollowerID: followerID,
		Message:    message,
		Timestamp:  time.Now(),
	})
}

// StatsUpdate публикует перерасчитанную статистику всех групп
func (a *Aggregator) StatsUpdate(stats map[string]models.GroupStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.publishLocked(models.CopierEvent{
		Kind:      models.EventStatsUpdate,
		Stats:     stats,
		Timestamp: time.Now(),
	})
}

// publishLocked рассылает событие без блокировки: переполненному подписчику
// выталкиваем самое старое событие и кладём новое
func (a *Aggregator) publishLocked(ev models.CopierEvent) {
	for id, ch := range a.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- ev:
			default:
				a.logger.Warn("Dropping copier event for slow subscriber", slog.Int("subscriber", id))
			}
		}
	}
}

// ActivityLog возвращает последние limit записей (свежие первыми)
func (a *Aggregator) ActivityLog(limit int) []models.ActivityEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || limit > len(a.entries) {
		limit = len(a.entries)
	}

	out := make([]models.ActivityEntry, limit)
	copy(out, a.entries[:limit])

	return out
}
