package copier

import (
	"fmt"
	"log/slog"

	"hedge_copier/internal/models"
)

// Внешний API движка. Конфигурация приходит целиком на каждое изменение;
// все мутации разделяемого состояния сериализуются здесь, UI - чистый клиент.

// UpdateGroups заменяет полный набор групп. Runtime-состояние (статистика,
// предохранители, журнал) при этом сохраняется - оно сбрасывается только
// явным reset'ом.
func (e *Engine) UpdateGroups(groups []models.CopierGroup) error {
	if err := validateGroups(groups); err != nil {
		return err
	}

	e.mu.Lock()
	e.groups = groups
	e.mu.Unlock()

	e.logger.Info("Copier groups updated", slog.Int("groups", len(groups)))

	return nil
}

// validateGroups отвергает конфигурацию, нарушающую инварианты
func validateGroups(groups []models.CopierGroup) error {
	pairs := make(map[string]bool)

	for _, g := range groups {
		if g.ID == "" {
			return fmt.Errorf("group without id")
		}
		if g.LeaderAccountID == "" {
			return fmt.Errorf("group %s: leader account is required", g.ID)
		}

		for _, f := range g.Followers {
			if f.LotMultiplier < minLotMultiplier || f.LotMultiplier > maxLotMultiplier {
				return fmt.Errorf("group %s: follower %s: lot multiplier %.4f out of range [%.2f, %d]",
					g.ID, f.ID, f.LotMultiplier, minLotMultiplier, maxLotMultiplier)
			}

			// Follower-аккаунт может состоять максимум в одной активной группе
			// данного leader'а: дубликаты пар leader→follower отвергаются
			if g.Status == models.GroupActive {
				pair := g.LeaderAccountID + "→" + f.AccountID
				if pairs[pair] {
					return fmt.Errorf("duplicate leader→follower pair: %s", pair)
				}
				pairs[pair] = true
			}
		}
	}

	return nil
}

// Groups возвращает копию текущего набора групп
func (e *Engine) Groups() []models.CopierGroup {
	e.mu.RLock()
	defer e.mu.RUnlock()

	groups := make([]models.CopierGroup, len(e.groups))
	copy(groups, e.groups)

	return groups
}

// UpdateAccountMap обновляет соответствие постоянных и транспортных
// идентификаторов аккаунтов
func (e *Engine) UpdateAccountMap(persistentToTransport map[string]string) {
	e.idmap.Update(persistentToTransport)
}

// SetGlobalEnabled включает/выключает зеркалирование целиком
func (e *Engine) SetGlobalEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()

	e.logger.Info("Global copier flag changed", slog.Bool("enabled", enabled))
}

// IsGlobalEnabled возвращает состояние глобального флага
func (e *Engine) IsGlobalEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.enabled
}

// SetLicense принимает сигнал лицензионного шлюза. Движок не интерпретирует
// семантику лицензии: valid=false мгновенно останавливает зеркалирование
// (fail closed).
func (e *Engine) SetLicense(valid bool, connections int) {
	e.mu.Lock()
	wasValid := e.licenseOK
	e.licenseOK = valid
	e.connections = connections
	e.mu.Unlock()

	if wasValid && !valid {
		e.logger.Warn("License signal went invalid - mirroring stopped")
	} else if !wasValid && valid {
		e.logger.Info("License signal valid - mirroring permitted", slog.Int("connections", connections))
	}
}

// ResetCircuitBreaker - явный сброс предохранителя оператором
func (e *Engine) ResetCircuitBreaker(groupID, followerID string) error {
	e.mu.RLock()
	var group *models.CopierGroup
	for i := range e.groups {
		if e.groups[i].ID == groupID {
			group = &e.groups[i]
			break
		}
	}
	e.mu.RUnlock()

	if group == nil {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}

	found := false
	for _, f := range group.Followers {
		if f.ID == followerID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s in group %s", ErrFollowerNotFound, followerID, groupID)
	}

	e.breaker.Reset(groupID, followerID)

	e.logger.Info("Circuit breaker reset",
		slog.String("group", groupID),
		slog.String("follower", followerID))

	return nil
}

// GroupStats возвращает агрегированную статистику группы,
// пересчитанную из текущего состояния follower'ов
func (e *Engine) GroupStats(groupID string) (models.GroupStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, g := range e.groups {
		if g.ID == groupID {
			return e.groupStatsLocked(g), nil
		}
	}

	return models.GroupStats{}, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
}

// tradesTodayLocked возвращает дневной счётчик follower'а с поправкой на
// смену серверного дня: после ролловера счётчик читается как ноль, даже если
// нового успешного копирования ещё не было. Под e.mu.
func (e *Engine) tradesTodayLocked(rt *followerRuntime) int {
	if e.serverDay != "" && rt.statsDay != e.serverDay {
		return 0
	}

	return rt.stats.TradesToday
}

// groupStatsLocked агрегирует статистику группы из follower'ов. Под e.mu.
func (e *Engine) groupStatsLocked(g models.CopierGroup) models.GroupStats {
	var stats models.GroupStats

	var latencySum float64
	var latencyN int
	var attempts, successes int

	for _, f := range g.Followers {
		rt, ok := e.runtimes[f.ID]
		if !ok {
			continue
		}

		stats.TradesToday += e.tradesTodayLocked(rt)
		stats.TradesTotal += rt.stats.TradesTotal
		stats.TotalProfit += rt.stats.TotalProfit
		stats.FailedCopies += rt.stats.FailedCopies

		if rt.stats.LastCopyAt.After(stats.LastCopyAt) {
			stats.LastCopyAt = rt.stats.LastCopyAt
		}
		if rt.attempts > 0 {
			latencySum += rt.stats.AvgLatencyMs * float64(rt.attempts)
			latencyN += rt.attempts
		}

		attempts += rt.attempts
		successes += rt.successes
	}

	if latencyN > 0 {
		stats.AvgLatencyMs = latencySum / float64(latencyN)
	}
	if attempts > 0 {
		stats.SuccessRate = float64(successes) / float64(attempts)
	}

	return stats
}

// FollowerStats возвращает статистику одного follower'а
func (e *Engine) FollowerStats(followerID string) models.FollowerStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if rt, ok := e.runtimes[followerID]; ok {
		stats := rt.stats
		stats.TradesToday = e.tradesTodayLocked(rt)
		return stats
	}

	return models.FollowerStats{}
}

// HedgePnLByLeader возвращает накопленный hedge P&L по каждому leader-аккаунту.
// Считается от момента создания группы (накапливаются только события её
// жизни), то есть baseline группы соблюдается по построению.
func (e *Engine) HedgePnLByLeader() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]float64)
	for _, g := range e.groups {
		out[g.LeaderAccountID] += e.realized[g.ID]
	}

	return out
}

// ActivityLog возвращает последние записи журнала
func (e *Engine) ActivityLog(limit int) []models.ActivityEntry {
	return e.agg.ActivityLog(limit)
}

// Subscribe подписывает на поток событий копировщика
func (e *Engine) Subscribe() (<-chan models.CopierEvent, func()) {
	return e.agg.Subscribe()
}

// BreakerState возвращает состояние предохранителя follower'а
func (e *Engine) BreakerState(groupID, followerID string) models.CircuitBreakerState {
	return e.breaker.State(groupID, followerID)
}

// DailyLimit возвращает состояние дневного лимита аккаунта
func (e *Engine) DailyLimit(accountID string) (models.DailyLimitState, bool) {
	return e.daily.State(accountID)
}

// publishStats пересчитывает статистику всех групп, публикует statsUpdate
// и сохраняет снимок счётчиков в хранилище
func (e *Engine) publishStats() {
	e.mu.RLock()

	stats := make(map[string]models.GroupStats, len(e.groups))
	var groupRecs []models.GroupStatsRecord
	var followerRecs []models.FollowerStatsRecord

	for _, g := range e.groups {
		s := e.groupStatsLocked(g)
		s.FailedCopies = e.groupFailed[g.ID]
		stats[g.ID] = s

		if e.stats == nil {
			continue
		}

		groupRecs = append(groupRecs, models.GroupStatsRecord{
			GroupID:      g.ID,
			RealizedPnL:  e.realized[g.ID],
			FailedCopies: e.groupFailed[g.ID],
		})

		for _, f := range g.Followers {
			rt, ok := e.runtimes[f.ID]
			if !ok {
				continue
			}

			followerRecs = append(followerRecs, models.FollowerStatsRecord{
				FollowerID: f.ID,
				GroupID:    g.ID,
				StatsDay:   rt.statsDay,
				Attempts:   rt.attempts,
				Successes:  rt.successes,
				Stats:      rt.stats,
			})
		}
	}

	e.mu.RUnlock()

	if e.stats != nil && (len(groupRecs) > 0 || len(followerRecs) > 0) {
		if err := e.stats.SaveGroupStats(groupRecs, followerRecs); err != nil {
			e.logger.Warn("Failed to persist copier stats", slog.String("error", err.Error()))
		}
	}

	if len(stats) > 0 {
		e.agg.StatsUpdate(stats)
	}
}
